// SPDX-FileCopyrightText: 2025 The Pmugov Authors
// SPDX-License-Identifier: Apache-2.0

package limiter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/pmu-energy/pmugov/internal/cpufreq"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeUsage is a canned UsageReader.
type fakeUsage struct {
	budgets  map[int]int64
	energies map[int]int64
}

func (f *fakeUsage) PowerBudget(cpu int) int64 {
	return f.budgets[cpu]
}

func (f *fakeUsage) CurrentEnergy(cpu int) int64 {
	return f.energies[cpu]
}

// failingActuator rejects every request.
type failingActuator struct {
	calls int
}

func (a *failingActuator) Name() string { return "failing" }

func (a *failingActuator) Target(khz uint64, rel cpufreq.Relation) error {
	a.calls++
	return errors.New("driver rejected request")
}

func testDomain() cpufreq.Domain {
	return cpufreq.Domain{Name: "big", CPUs: []int{0, 1}, MinKHz: 200_000, MaxKHz: 1_200_000}
}

func TestInitRequestsMaxFrequency(t *testing.T) {
	domain := testDomain()
	actuator := cpufreq.NewFakeActuator(domain, testLogger())
	usage := &fakeUsage{budgets: map[int]int64{}, energies: map[int]int64{}}

	limiter, err := NewPowerLimiter(domain, actuator, usage, WithLogger(testLogger()))
	require.NoError(t, err)

	require.NoError(t, limiter.Init())
	last, ok := actuator.LastRequest()
	require.True(t, ok)
	assert.Equal(t, cpufreq.Request{KHz: domain.MaxKHz, Relation: cpufreq.RelationLow}, last)
}

func TestShutdownRestoresMaxFrequency(t *testing.T) {
	domain := testDomain()
	actuator := cpufreq.NewFakeActuator(domain, testLogger())
	usage := &fakeUsage{budgets: map[int]int64{}, energies: map[int]int64{}}

	limiter, err := NewPowerLimiter(domain, actuator, usage, WithLogger(testLogger()))
	require.NoError(t, err)

	require.NoError(t, limiter.Shutdown())
	last, ok := actuator.LastRequest()
	require.True(t, ok)
	assert.Equal(t, domain.MaxKHz, last.KHz)
}

func TestDecideBangBang(t *testing.T) {
	domain := testDomain()
	window := 1000 * time.Millisecond

	tt := []struct {
		name     string
		budgets  map[int]int64
		energies map[int]int64
		want     uint64
	}{
		{
			name:     "over budget throttles to min",
			budgets:  map[int]int64{0: 500, 1: 500},
			energies: map[int]int64{0: 700_000, 1: 500_000}, // 1200 nW over a 1000ms window
			want:     domain.MinKHz,
		},
		{
			name:     "within budget runs at max",
			budgets:  map[int]int64{0: 500, 1: 500},
			energies: map[int]int64{0: 400_000, 1: 400_000}, // 800 nW
			want:     domain.MaxKHz,
		},
		{
			name:     "rate equal to limit is within budget",
			budgets:  map[int]int64{0: 500, 1: 500},
			energies: map[int]int64{0: 500_000, 1: 500_000}, // exactly 1000 nW
			want:     domain.MaxKHz,
		},
		{
			name:     "zero budget means unlimited",
			budgets:  map[int]int64{0: 0, 1: 0},
			energies: map[int]int64{0: 900_000_000, 1: 900_000_000},
			want:     domain.MaxKHz,
		},
		{
			name:     "negative budget means unlimited",
			budgets:  map[int]int64{0: -1, 1: -1},
			energies: map[int]int64{0: 900_000_000, 1: 900_000_000},
			want:     domain.MaxKHz,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			actuator := cpufreq.NewFakeActuator(domain, testLogger())
			usage := &fakeUsage{budgets: tc.budgets, energies: tc.energies}
			limiter, err := NewPowerLimiter(domain, actuator, usage,
				WithLogger(testLogger()), WithWindowDuration(window))
			require.NoError(t, err)

			limiter.decide()

			last, ok := actuator.LastRequest()
			require.True(t, ok)
			assert.Equal(t, tc.want, last.KHz)
			assert.Equal(t, cpufreq.RelationLow, last.Relation)
		})
	}
}

func TestRunDecidesEveryPeriod(t *testing.T) {
	domain := testDomain()
	actuator := cpufreq.NewFakeActuator(domain, testLogger())
	usage := &fakeUsage{
		budgets:  map[int]int64{0: 500, 1: 500},
		energies: map[int]int64{0: 700_000, 1: 500_000},
	}
	fakeClock := clocktesting.NewFakeClock(time.Now())

	limiter, err := NewPowerLimiter(domain, actuator, usage,
		WithLogger(testLogger()), WithClock(fakeClock), WithPollInterval(100*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- limiter.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return fakeClock.HasWaiters()
	}, time.Second, time.Millisecond, "loop must be waiting on its ticker")

	fakeClock.Step(100 * time.Millisecond)
	require.Eventually(t, func() bool {
		return len(actuator.Requests()) >= 1
	}, time.Second, time.Millisecond)
	last, _ := actuator.LastRequest()
	assert.Equal(t, domain.MinKHz, last.KHz)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("limiter did not stop")
	}
}

func TestStopWhileSleeping(t *testing.T) {
	domain := testDomain()
	actuator := cpufreq.NewFakeActuator(domain, testLogger())
	usage := &fakeUsage{budgets: map[int]int64{}, energies: map[int]int64{}}
	fakeClock := clocktesting.NewFakeClock(time.Now())

	limiter, err := NewPowerLimiter(domain, actuator, usage,
		WithLogger(testLogger()), WithClock(fakeClock), WithPollInterval(time.Hour))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- limiter.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return fakeClock.HasWaiters()
	}, time.Second, time.Millisecond)

	// cancel mid-sleep; the loop must not wait for its full period
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("limiter kept sleeping after stop")
	}
	assert.Empty(t, actuator.Requests(), "no decision should have been made")
}

func TestActuatorFailureKeepsLooping(t *testing.T) {
	domain := testDomain()
	actuator := &failingActuator{}
	usage := &fakeUsage{
		budgets:  map[int]int64{0: 500, 1: 500},
		energies: map[int]int64{0: 700_000, 1: 500_000},
	}

	limiter, err := NewPowerLimiter(domain, actuator, usage, WithLogger(testLogger()))
	require.NoError(t, err)

	limiter.decide()
	limiter.decide()
	assert.Equal(t, 2, actuator.calls, "the loop keeps issuing requests after a failure")
}

func TestInvalidDomainRejected(t *testing.T) {
	domain := cpufreq.Domain{Name: "", CPUs: []int{0}, MinKHz: 1, MaxKHz: 2}
	actuator := cpufreq.NewFakeActuator(domain, testLogger())
	_, err := NewPowerLimiter(domain, actuator, &fakeUsage{})
	assert.Error(t, err)
}
