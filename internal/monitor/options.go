// SPDX-FileCopyrightText: 2025 The Pmugov Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"log/slog"
	"time"

	"k8s.io/utils/clock"
)

type Opts struct {
	logger         *slog.Logger
	clock          clock.PassiveClock
	windowDuration time.Duration

	windowedAveraging   bool
	userAccessDetection bool
	throttleGate        bool
}

// DefaultOpts returns a new Opts with defaults set
func DefaultOpts() Opts {
	return Opts{
		logger:              slog.Default(),
		clock:               clock.RealClock{},
		windowDuration:      1000 * time.Millisecond,
		windowedAveraging:   true,
		userAccessDetection: true,
		throttleGate:        true,
	}
}

// OptionFn is a function that sets one or more options in Opts
type OptionFn func(*Opts)

// WithLogger sets the logger for the EnergyMonitor
func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

// WithClock sets the clock for the EnergyMonitor
func WithClock(c clock.PassiveClock) OptionFn {
	return func(o *Opts) {
		o.clock = c
	}
}

// WithWindowDuration sets the averaging window duration
func WithWindowDuration(d time.Duration) OptionFn {
	return func(o *Opts) {
		o.windowDuration = d
	}
}

// WithWindowedAveraging selects between windowed average power (default) and
// the instantaneous variant that recomputes power on every tick
func WithWindowedAveraging(enabled bool) OptionFn {
	return func(o *Opts) {
		o.windowedAveraging = enabled
	}
}

// WithUserAccessDetection controls whether ticks check for user-mode counter
// access before trusting the bank
func WithUserAccessDetection(enabled bool) OptionFn {
	return func(o *Opts) {
		o.userAccessDetection = enabled
	}
}

// WithThrottleGate controls whether HasEnergyLeft consults the accumulators;
// with the gate off it always reports energy left
func WithThrottleGate(enabled bool) OptionFn {
	return func(o *Opts) {
		o.throttleGate = enabled
	}
}
