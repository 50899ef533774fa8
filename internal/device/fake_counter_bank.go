// SPDX-FileCopyrightText: 2025 The Pmugov Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"log/slog"
	"sync"
)

// NOTE: the fake bank is for tests and development runs only

// fakeBank implements CounterBank in memory. While the run bit is set, every
// read advances the slot by a deterministic per-event increment, so repeated
// samples look like a core doing steady work.
type fakeBank struct {
	logger *slog.Logger

	mu         sync.Mutex
	running    bool
	userAccess bool
	events     map[Slot]Event
	counts     map[Slot]uint32
	cycles     uint32
	cycleStep  uint32
}

var _ CounterBank = (*fakeBank)(nil)

// FakeOptFn is a functional option for configuring a fake bank
type FakeOptFn func(*fakeBank)

// WithFakeLogger sets the logger of the fake bank
func WithFakeLogger(l *slog.Logger) FakeOptFn {
	return func(b *fakeBank) {
		b.logger = l.With("bank", b.Name())
	}
}

// WithFakeCycleStep sets how far the cycle counter advances per read
func WithFakeCycleStep(step uint32) FakeOptFn {
	return func(b *fakeBank) {
		b.cycleStep = step
	}
}

// NewFakeBank creates a new in-memory counter bank
func NewFakeBank(opts ...FakeOptFn) CounterBank {
	bank := &fakeBank{
		logger:    slog.Default().With("bank", "fake-bank"),
		events:    map[Slot]Event{},
		counts:    map[Slot]uint32{},
		cycleStep: 10_000,
	}
	for _, opt := range opts {
		opt(bank)
	}
	return bank
}

// NewFakeBanks creates one independent fake bank per CPU
func NewFakeBanks(cpus int, opts ...FakeOptFn) BankProvider {
	banks := make(Banks, cpus)
	for i := range banks {
		banks[i] = NewFakeBank(opts...)
	}
	return banks
}

func (b *fakeBank) Name() string {
	return "fake-bank"
}

func (b *fakeBank) Enable() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = true
}

func (b *fakeBank) Disable() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = false
}

func (b *fakeBank) Program(slot Slot, event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[slot&slotMask] = event
}

func (b *fakeBank) Read(slot Slot) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	slot &= slotMask
	if b.running {
		b.counts[slot] += fakeIncrement(b.events[slot])
	}
	return b.counts[slot]
}

func (b *fakeBank) ReadCycleCounter() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		b.cycles += b.cycleStep
	}
	return b.cycles
}

func (b *fakeBank) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for slot := range b.counts {
		b.counts[slot] = 0
	}
}

func (b *fakeBank) ResetCycleCounter() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cycles = 0
}

func (b *fakeBank) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

func (b *fakeBank) IsUserAccessEnabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.userAccess
}

// SetUserAccess flips the simulated user-mode access bit; tests use it to
// drive the monitoring-disabled path.
func (b *fakeBank) SetUserAccess(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.userAccess = enabled
}

// fakeIncrement picks a per-event step so that different events advance at
// visibly different rates.
func fakeIncrement(e Event) uint32 {
	switch e {
	case EventBrMisPred:
		return 120
	case EventL1DTLBRefill:
		return 40
	case EventL2DCacheRefill:
		return 250
	case EventL2DCacheWB:
		return 90
	case EventDPSpec:
		return 4_000
	case EventASESpec:
		return 30
	case EventVFPSpec:
		return 300
	default:
		return 1
	}
}
