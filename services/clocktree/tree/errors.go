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
	"errors"
	"fmt"
)

// Sentinel errors for clock operations.
var (
	// ErrNotSupported is returned when the clock's kind does not define
	// the requested operation, such as SetParent on a non-muxed clock.
	ErrNotSupported = errors.New("operation not supported")

	// ErrInvalidRate is returned when no divider or multiplier setting
	// reaches the requested rate within the clock's encoding range or its
	// [min, max] bounds.
	ErrInvalidRate = errors.New("invalid rate")

	// ErrUnknownParent is returned when SetParent names a clock that is
	// not in the candidate input list.
	ErrUnknownParent = errors.New("unknown parent")

	// ErrParentCycle is returned when SetParent would make a clock its
	// own ancestor.
	ErrParentCycle = fmt.Errorf("%w: parent would create a cycle", ErrUnknownParent)

	// ErrBusy is returned when a dependent clock block reports it is not
	// ready yet.
	ErrBusy = errors.New("clock busy")

	// ErrFatalConfiguration is returned when hardware or topology data
	// describes a state the model cannot interpret. Initialization stops
	// at the first such error.
	ErrFatalConfiguration = errors.New("fatal clock configuration")

	// ErrNotFound is returned when a lookup matches no clock.
	ErrNotFound = errors.New("clock not found")
)

// Operation names used in errors, spans and metrics.
const (
	opInit       = "init"
	opEnable     = "enable"
	opDisable    = "disable"
	opSetRate    = "set_rate"
	opRoundRate  = "round_rate"
	opSetParent  = "set_parent"
	opReset      = "reset"
	opTapDelay   = "tap_delay"
	opBusUpdate  = "shared_bus_update"
	opInitialize = "initialize"
)

// ClockError attaches the clock and operation to a sentinel error.
//
// Description:
//
//	Errors are created where they originate, so a failure deep inside a
//	composite operation (a CPU rate change failing in the PLL) names the
//	clock that actually failed. Engine code returns them unchanged.
//
// Thread Safety: Immutable after creation.
type ClockError struct {
	// Clock is the name of the clock that failed.
	Clock string

	// Op is the operation that failed, e.g. "set_rate".
	Op string

	// Err is the underlying error. It wraps one of the sentinels above.
	Err error
}

// Error implements the error interface.
func (e *ClockError) Error() string {
	return fmt.Sprintf("clock %s: %s: %v", e.Clock, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is and errors.As.
func (e *ClockError) Unwrap() error {
	return e.Err
}

// newError wraps a sentinel with clock context.
func newError(c *Clock, op string, err error) error {
	return &ClockError{Clock: c.name, Op: op, Err: err}
}

// errorf wraps a sentinel with clock context and a detail message.
func errorf(c *Clock, op string, sentinel error, format string, args ...any) error {
	return &ClockError{
		Clock: c.name,
		Op:    op,
		Err:   fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...)),
	}
}

// errorClass maps an error to a short label for metrics.
func errorClass(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotSupported):
		return "not_supported"
	case errors.Is(err, ErrInvalidRate):
		return "invalid_rate"
	case errors.Is(err, ErrUnknownParent):
		return "unknown_parent"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrFatalConfiguration):
		return "fatal"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
