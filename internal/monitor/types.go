// SPDX-FileCopyrightText: 2025 The Pmugov Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import "sync/atomic"

// Status is the per-CPU record handed to reporting surfaces. The core
// computes it; formatting and publishing belong to the callers.
type Status struct {
	CPU int `json:"cpu"`
	// Disabled is true while user-mode counter access makes the readings
	// untrustworthy.
	Disabled bool `json:"disabled"`
	// AveragePowerNanowatts is the last completed window's average power.
	// Zero while Disabled is true.
	AveragePowerNanowatts int64 `json:"averagePowerNanowatts"`
}

// accumulator is one CPU's energy accounting state.
//
// The owning CPU's tick is the only writer. The power limiter and the
// throttle gate read concurrently, so the fields they touch are atomics:
// a reader may observe a window mid-update (integral already reset, average
// not yet stored, or vice versa), which is at worst a one-window-stale
// reading, never a torn word or a wrong sign.
type accumulator struct {
	// energy is the current window's integral in picojoules (model weight
	// units). Signed; may be negative while negative-weight events
	// dominate. Wraps on overflow.
	energy atomic.Int64
	// power is the last completed window's energy over duration, in
	// nanowatts (picojoules per millisecond). Stale between window closes.
	power atomic.Int64
	// windowStart is the current window's first sample time in
	// milliseconds of the monitor clock.
	windowStart atomic.Int64
	// disabled is set while the counters are under user-mode control.
	disabled atomic.Bool
}
