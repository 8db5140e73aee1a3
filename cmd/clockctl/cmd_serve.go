// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/clocktree/services/clocktree/telemetry"
	"github.com/AleutianAI/clocktree/services/clocktree/tree"
)

func newServeCmd(a *app) *cobra.Command {
	var listen string
	var noWatch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve Prometheus metrics and the clock tree over HTTP",
		Long: `Serve Prometheus metrics and the clock tree over HTTP.

The config file, the register image and the vote file are watched; when
another clockctl invocation changes them the served tree is rebuilt.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotMetrics: "prometheus"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen == "" {
				listen = a.cfg.Metrics.Listen
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// Write a synthesized image out now so the watcher has
			// something to watch and close has nothing left to save.
			if err := a.flush(); err != nil {
				return err
			}
			if !noWatch {
				w, err := a.watch(ctx)
				if err != nil {
					return err
				}
				defer w.Stop()
			}

			ln, err := net.Listen("tcp", listen)
			if err != nil {
				return err
			}
			a.log.Info("serving", "addr", ln.Addr().String(), "watch", !noWatch)
			return serve(ctx, ln, a.handler())
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from config)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload when the register image or config changes")
	return cmd
}

// handler routes /metrics, /healthz, /clocks and /clocks/:name.
func (a *app) handler() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("clockctl"))

	metrics := telemetry.MetricsHandler()
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	router.GET("/metrics", gin.WrapH(metrics))
	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok\n")
	})
	router.GET("/clocks", func(c *gin.Context) {
		infos := []tree.Info{}
		a.graph().Walk(func(_ int, info tree.Info) { infos = append(infos, info) })
		c.JSON(http.StatusOK, infos)
	})
	router.GET("/clocks/:name", func(c *gin.Context) {
		g := a.graph()
		clk, err := g.Lookup(c.Param("name"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, g.Info(clk))
	})
	return router
}

// serve runs an HTTP server on ln until ctx is done.
func serve(ctx context.Context, ln net.Listener, h http.Handler) error {
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
