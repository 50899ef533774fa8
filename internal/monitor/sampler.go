// SPDX-FileCopyrightText: 2025 The Pmugov Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"context"
	"log/slog"
	"time"

	"k8s.io/utils/clock"
)

// Sampler drives EvaluateTick for every CPU at a fixed interval. It stands
// in for the scheduler-tick hook the accounting was designed around: the
// tick handler stays callable from any periodic context, the sampler is just
// the built-in one.
type Sampler struct {
	logger   *slog.Logger
	monitor  *EnergyMonitor
	interval time.Duration
	clock    clock.WithTicker
}

// SamplerOptFn is a functional option for configuring a Sampler
type SamplerOptFn func(*Sampler)

// WithSamplerLogger sets the logger for the Sampler
func WithSamplerLogger(logger *slog.Logger) SamplerOptFn {
	return func(s *Sampler) {
		s.logger = logger.With("service", "sampler")
	}
}

// WithSamplerClock sets the clock driving the sampling ticker
func WithSamplerClock(c clock.WithTicker) SamplerOptFn {
	return func(s *Sampler) {
		s.clock = c
	}
}

// NewSampler creates a sampler ticking every interval.
func NewSampler(m *EnergyMonitor, interval time.Duration, opts ...SamplerOptFn) *Sampler {
	s := &Sampler{
		logger:   slog.Default().With("service", "sampler"),
		monitor:  m,
		interval: interval,
		clock:    clock.RealClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sampler) Name() string {
	return "sampler"
}

// Run ticks until the context is cancelled.
func (s *Sampler) Run(ctx context.Context) error {
	s.logger.Info("Sampler is running", "interval", s.interval, "cpus", s.monitor.CPUs())
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C():
			for cpu := 0; cpu < s.monitor.CPUs(); cpu++ {
				s.monitor.EvaluateTick(cpu)
			}

		case <-ctx.Done():
			s.logger.Info("Sampler has terminated")
			return nil
		}
	}
}
