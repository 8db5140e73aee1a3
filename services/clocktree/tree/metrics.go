// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tree

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for clock operations.
var (
	tracer = otel.Tracer("clocktree.tree")
	meter  = otel.Meter("clocktree.tree")
)

// OpenTelemetry instruments, created on first use.
var (
	opLatency metric.Float64Histogram
	opTotal   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	// clockRate tracks the last observed rate of each touched clock.
	// Labels: clock
	clockRate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "clocktree",
		Subsystem: "clock",
		Name:      "rate_hz",
		Help:      "Current clock rate in Hz",
	}, []string{"clock"})

	// operationsTotal counts public clock operations.
	// Labels: op, result (ok, invalid_rate, not_supported, ...)
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clocktree",
		Name:      "operations_total",
		Help:      "Clock operations by operation and result",
	}, []string{"op", "result"})

	// sharedBusUpdates counts rate changes applied by a shared bus.
	// Labels: bus
	sharedBusUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clocktree",
		Subsystem: "shared_bus",
		Name:      "updates_total",
		Help:      "Shared bus rate changes applied",
	}, []string{"bus"})
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		opLatency, err = meter.Float64Histogram(
			"clocktree_operation_duration_seconds",
			metric.WithDescription("Duration of clock operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		opTotal, err = meter.Int64Counter(
			"clocktree_operation_total",
			metric.WithDescription("Total number of clock operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// opSpan is a started operation span plus its start time.
type opSpan struct {
	trace.Span
	start time.Time
}

// startOpSpan creates a span for a clock operation. c may be nil for
// whole-tree operations.
func startOpSpan(ctx context.Context, op string, c *Clock) (context.Context, opSpan) {
	attrs := []attribute.KeyValue{attribute.String("clock.op", op)}
	if c != nil {
		attrs = append(attrs,
			attribute.String("clock.name", c.name),
			attribute.String("clock.kind", c.kind.String()),
		)
	}
	ctx, span := tracer.Start(ctx, "Graph."+op, trace.WithAttributes(attrs...))
	return ctx, opSpan{Span: span, start: time.Now()}
}

// finishOp ends the span and records metrics. The caller holds the tree
// lock.
func (g *Graph) finishOp(ctx context.Context, s opSpan, op string, c *Clock, err error) {
	defer s.End()

	result := errorClass(err)
	if err != nil {
		s.RecordError(err)
		s.SetStatus(codes.Error, err.Error())
	}
	if c != nil {
		rate := g.rateLocked(c)
		s.SetAttributes(attribute.Int64("clock.rate_hz", int64(rate)))
		clockRate.WithLabelValues(c.name).Set(float64(rate))
	} else if err == nil {
		for _, c := range g.clocks {
			clockRate.WithLabelValues(c.name).Set(float64(g.rateLocked(c)))
		}
	}
	operationsTotal.WithLabelValues(op, result).Inc()

	if initMetrics() != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("result", result),
	)
	opLatency.Record(ctx, time.Since(s.start).Seconds(), attrs)
	opTotal.Add(ctx, 1, attrs)
}
