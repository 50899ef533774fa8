// SPDX-FileCopyrightText: 2025 The Pmugov Authors
// SPDX-License-Identifier: Apache-2.0

// Package monitor keeps per-CPU energy accounting driven by periodic counter
// evaluation ticks, and answers budget queries for the power limiter and the
// throttle gate.
package monitor

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pmu-energy/pmugov/internal/device"
	"github.com/pmu-energy/pmugov/internal/model"
	"k8s.io/utils/clock"
)

// UsageReader is the read-only view the power limiter takes on the monitor.
type UsageReader interface {
	// PowerBudget returns a CPU's configured budget in nanowatts; zero or
	// negative means unlimited.
	PowerBudget(cpu int) int64
	// CurrentEnergy returns a CPU's current-window energy integral in
	// picojoules. The window may still be in progress.
	CurrentEnergy(cpu int) int64
}

// EnergyMonitor owns one accumulator, one evaluator and one counter bank per
// CPU and advances them on EvaluateTick. Construction wires everything;
// ticks are driven externally (see Sampler for the built-in driver).
type EnergyMonitor struct {
	logger *slog.Logger
	banks  device.BankProvider
	models *model.Library
	clock  clock.PassiveClock

	windowDuration time.Duration

	windowedAveraging   bool
	userAccessDetection bool
	throttleGate        bool

	accums     []accumulator
	evaluators []*model.Evaluator
	budgets    []atomic.Int64
}

var _ UsageReader = (*EnergyMonitor)(nil)

// NewEnergyMonitor creates a monitor for CPUs 0..cpus-1.
func NewEnergyMonitor(banks device.BankProvider, models *model.Library, cpus int, applyOpts ...OptionFn) *EnergyMonitor {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	m := &EnergyMonitor{
		logger:              opts.logger.With("service", "monitor"),
		banks:               banks,
		models:              models,
		clock:               opts.clock,
		windowDuration:      opts.windowDuration,
		windowedAveraging:   opts.windowedAveraging,
		userAccessDetection: opts.userAccessDetection,
		throttleGate:        opts.throttleGate,
		accums:              make([]accumulator, cpus),
		evaluators:          make([]*model.Evaluator, cpus),
		budgets:             make([]atomic.Int64, cpus),
	}
	for cpu := range m.evaluators {
		m.evaluators[cpu] = model.NewEvaluator(models.ForCPU(cpu))
	}
	return m
}

func (m *EnergyMonitor) Name() string {
	return "monitor"
}

// CPUs returns the number of CPUs being accounted.
func (m *EnergyMonitor) CPUs() int {
	return len(m.accums)
}

// EvaluateTick advances one CPU's energy accounting by one sample. It must
// be invoked once per CPU per sampling epoch, never concurrently for the
// same CPU, and it never blocks.
//
// Except for the user-access early exit, every tick ends with the
// programmable slots and the cycle counter reset and the bank running, so
// the next interval starts from clean counters no matter which branch ran.
func (m *EnergyMonitor) EvaluateTick(cpu int) {
	acc := &m.accums[cpu]
	bank := m.banks.Bank(cpu)

	if m.userAccessDetection {
		if bank.IsUserAccessEnabled() {
			// The counters belong to user mode; nothing read from them
			// is trustworthy.
			acc.power.Store(0)
			acc.energy.Store(0)
			if !acc.disabled.Swap(true) {
				m.logger.Warn("monitoring disabled, user-mode counter access detected", "cpu", cpu)
			}
			return
		}
		if acc.disabled.Load() {
			// User access was just revoked. The bank was under foreign
			// control, so stop it and let the not-running path below
			// reprogram it from scratch.
			bank.Disable()
			acc.disabled.Store(false)
			m.logger.Info("monitoring re-enabled", "cpu", cpu)
		}
	}

	if bank.IsRunning() {
		// Stop the counters so the sample is consistent.
		bank.Disable()
		delta := m.evaluators[cpu].Evaluate(bank)
		energy := acc.energy.Load() + delta
		acc.energy.Store(energy)

		now := m.clock.Now()
		elapsed := now.UnixMilli() - acc.windowStart.Load()
		if m.windowedAveraging {
			// A window closes only when strictly longer than the
			// configured duration.
			if elapsed > m.windowDuration.Milliseconds() {
				acc.power.Store(energy / elapsed)
				acc.energy.Store(0)
				acc.windowStart.Store(now.UnixMilli())
			}
		} else if elapsed > 0 {
			// Instantaneous variant: power is the running rate since
			// accounting started; the integral never resets.
			acc.power.Store(energy / elapsed)
		}
	} else {
		// First call, or the counters were stopped externally. (Re)bind
		// the model's events and restart accounting.
		m.evaluators[cpu].Initialize(bank)
		acc.energy.Store(0)
		acc.power.Store(0)
		acc.windowStart.Store(m.clock.Now().UnixMilli())
	}

	bank.Reset()
	bank.ResetCycleCounter()
	bank.Enable()
}

// TotalEnergyUsage returns the sum of every CPU's current-window energy
// integral in picojoules.
func (m *EnergyMonitor) TotalEnergyUsage() int64 {
	var total int64
	for cpu := range m.accums {
		total += m.accums[cpu].energy.Load()
	}
	return total
}

// CurrentEnergy implements UsageReader.
func (m *EnergyMonitor) CurrentEnergy(cpu int) int64 {
	if cpu < 0 || cpu >= len(m.accums) {
		return 0
	}
	return m.accums[cpu].energy.Load()
}

// HasEnergyLeft reports whether a CPU still has power budget left in the
// current window. It is a lock-free fast path, safe to call far more often
// than the limiter iterates. Little cores are never throttled; a
// non-positive budget means unlimited.
func (m *EnergyMonitor) HasEnergyLeft(cpu int) bool {
	if !m.throttleGate {
		return true
	}
	if cpu < 0 || cpu >= len(m.accums) {
		return true
	}
	if m.models.ClassOf(cpu) == model.ClassLittle {
		return true
	}
	budget := m.budgets[cpu].Load()
	if budget <= 0 {
		return true
	}

	acc := &m.accums[cpu]
	elapsed := m.clock.Now().UnixMilli() - acc.windowStart.Load()
	if elapsed <= 0 {
		return true
	}
	return acc.energy.Load()/elapsed <= budget
}

// SetPowerBudget sets a CPU's maximum sustained power draw in nanowatts.
// Zero or a negative value lifts the limit. Budgets are last-writer-wins;
// they only gate a two-point control decision.
func (m *EnergyMonitor) SetPowerBudget(cpu int, nanowatts int64) error {
	if cpu < 0 || cpu >= len(m.budgets) {
		return fmt.Errorf("no such cpu: %d", cpu)
	}
	m.budgets[cpu].Store(nanowatts)
	m.logger.Info("power budget updated", "cpu", cpu, "nanowatts", nanowatts)
	return nil
}

// PowerBudget implements UsageReader.
func (m *EnergyMonitor) PowerBudget(cpu int) int64 {
	if cpu < 0 || cpu >= len(m.budgets) {
		return 0
	}
	return m.budgets[cpu].Load()
}

// Status returns one CPU's reporting record.
func (m *EnergyMonitor) Status(cpu int) (Status, error) {
	if cpu < 0 || cpu >= len(m.accums) {
		return Status{}, fmt.Errorf("no such cpu: %d", cpu)
	}
	acc := &m.accums[cpu]
	return Status{
		CPU:                   cpu,
		Disabled:              acc.disabled.Load(),
		AveragePowerNanowatts: acc.power.Load(),
	}, nil
}

// Statuses returns the reporting records of all CPUs.
func (m *EnergyMonitor) Statuses() []Status {
	statuses := make([]Status, len(m.accums))
	for cpu := range m.accums {
		statuses[cpu], _ = m.Status(cpu)
	}
	return statuses
}
