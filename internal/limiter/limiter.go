// SPDX-FileCopyrightText: 2025 The Pmugov Authors
// SPDX-License-Identifier: Apache-2.0

// Package limiter runs one power-limiting control loop per frequency domain.
package limiter

import (
	"context"
	"log/slog"
	"time"

	"k8s.io/utils/clock"

	"github.com/pmu-energy/pmugov/internal/cpufreq"
	"github.com/pmu-energy/pmugov/internal/monitor"
)

// PowerLimiter compares a frequency domain's aggregate power draw against the
// summed per-CPU budgets and drives the domain's actuator between its minimum
// and maximum operating points. It is a two-point controller: either the
// domain is over budget and gets pinned low, or it is within budget and runs
// free. Deliberately not proportional; the simplicity removes any need for
// oscillation analysis and a missed decision self-corrects within one polling
// period.
type PowerLimiter struct {
	logger   *slog.Logger
	domain   cpufreq.Domain
	actuator cpufreq.Actuator
	usage    monitor.UsageReader
	clock    clock.WithTicker

	pollInterval   time.Duration
	windowDuration time.Duration
}

// Opts holds the configurable options of a PowerLimiter
type Opts struct {
	logger         *slog.Logger
	clock          clock.WithTicker
	pollInterval   time.Duration
	windowDuration time.Duration
}

// DefaultOpts returns the defaults: a 100ms polling period against a 1s
// accounting window.
func DefaultOpts() Opts {
	return Opts{
		logger:         slog.Default(),
		clock:          clock.RealClock{},
		pollInterval:   100 * time.Millisecond,
		windowDuration: 1000 * time.Millisecond,
	}
}

// OptionFn is a functional option for configuring a PowerLimiter
type OptionFn func(*Opts)

// WithLogger sets the logger of the limiter
func WithLogger(l *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = l
	}
}

// WithClock sets the clock driving the polling loop
func WithClock(c clock.WithTicker) OptionFn {
	return func(o *Opts) {
		o.clock = c
	}
}

// WithPollInterval sets the polling period of the control loop
func WithPollInterval(d time.Duration) OptionFn {
	return func(o *Opts) {
		o.pollInterval = d
	}
}

// WithWindowDuration sets the accounting window the usage rate is computed
// over. It must match the monitor's window duration for the rate to carry
// nanowatt semantics.
func WithWindowDuration(d time.Duration) OptionFn {
	return func(o *Opts) {
		o.windowDuration = d
	}
}

// NewPowerLimiter creates a limiter for one frequency domain.
func NewPowerLimiter(domain cpufreq.Domain, actuator cpufreq.Actuator, usage monitor.UsageReader, applyOpts ...OptionFn) (*PowerLimiter, error) {
	if err := domain.Validate(); err != nil {
		return nil, err
	}

	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	return &PowerLimiter{
		logger:         opts.logger.With("service", "limiter", "domain", domain.Name),
		domain:         domain,
		actuator:       actuator,
		usage:          usage,
		clock:          opts.clock,
		pollInterval:   opts.pollInterval,
		windowDuration: opts.windowDuration,
	}, nil
}

func (l *PowerLimiter) Name() string {
	return "limiter-" + l.domain.Name
}

// Init requests the domain's maximum frequency so the rail starts out
// unthrottled before the loop makes its first decision.
func (l *PowerLimiter) Init() error {
	return l.actuator.Target(l.domain.MaxKHz, cpufreq.RelationLow)
}

// Run polls until the context is cancelled. Cancellation is honored during
// the sleep as well, so a stop takes effect within one polling period.
func (l *PowerLimiter) Run(ctx context.Context) error {
	l.logger.Info("Power limiter is running", "interval", l.pollInterval, "domain", l.domain.String())
	ticker := l.clock.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C():
			if ctx.Err() != nil {
				l.logger.Info("Power limiter has terminated")
				return nil
			}
			l.decide()

		case <-ctx.Done():
			l.logger.Info("Power limiter has terminated")
			return nil
		}
	}
}

// Shutdown leaves the rail at its maximum frequency so a stopped limiter
// never pins the domain throttled for whatever policy takes over next.
func (l *PowerLimiter) Shutdown() error {
	return l.actuator.Target(l.domain.MaxKHz, cpufreq.RelationLow)
}

// decide performs one control iteration. The energy integrals it reads may
// belong to a window still in progress; at worst the decision is one window
// stale and the next iteration corrects it.
func (l *PowerLimiter) decide() {
	var limit, total int64
	for _, cpu := range l.domain.CPUs {
		limit += l.usage.PowerBudget(cpu)
		total += l.usage.CurrentEnergy(cpu)
	}

	target := l.domain.MaxKHz
	if limit > 0 {
		// picojoules over milliseconds is nanowatts, same unit as the
		// budgets
		rate := total / l.windowDuration.Milliseconds()
		if rate > limit {
			target = l.domain.MinKHz
		}
	}

	if err := l.actuator.Target(target, cpufreq.RelationLow); err != nil {
		// A missed adjustment self-corrects at the next period.
		l.logger.Warn("frequency request failed", "target_khz", target, "error", err)
	}
}
