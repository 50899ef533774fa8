// SPDX-FileCopyrightText: 2025 The Pmugov Authors
// SPDX-License-Identifier: Apache-2.0

package device

// TODO: Move this mock to a separate testutil package

// ProgramCall records one Program invocation in order.
type ProgramCall struct {
	Slot  Slot
	Event Event
}

// MockCounterBank is a scriptable CounterBank for tests. Counts only change
// when a test sets them, so evaluation arithmetic is exact.
type MockCounterBank struct {
	running    bool
	userAccess bool

	counts map[Slot]uint32
	cycles uint32

	programmed   map[Slot]Event
	programCalls []ProgramCall

	enables     int
	disables    int
	resets      int
	cycleResets int
}

var _ CounterBank = (*MockCounterBank)(nil)

func NewMockCounterBank() *MockCounterBank {
	return &MockCounterBank{
		counts:     map[Slot]uint32{},
		programmed: map[Slot]Event{},
	}
}

func (m *MockCounterBank) Name() string {
	return "mock-bank"
}

func (m *MockCounterBank) Enable() {
	m.enables++
	m.running = true
}

func (m *MockCounterBank) Disable() {
	m.disables++
	m.running = false
}

func (m *MockCounterBank) Program(slot Slot, event Event) {
	slot &= slotMask
	m.programmed[slot] = event
	m.programCalls = append(m.programCalls, ProgramCall{Slot: slot, Event: event})
}

func (m *MockCounterBank) Read(slot Slot) uint32 {
	return m.counts[slot&slotMask]
}

func (m *MockCounterBank) ReadCycleCounter() uint32 {
	return m.cycles
}

func (m *MockCounterBank) Reset() {
	m.resets++
	for slot := range m.counts {
		m.counts[slot] = 0
	}
}

func (m *MockCounterBank) ResetCycleCounter() {
	m.cycleResets++
	m.cycles = 0
}

func (m *MockCounterBank) IsRunning() bool {
	return m.running
}

func (m *MockCounterBank) IsUserAccessEnabled() bool {
	return m.userAccess
}

// Test scripting helpers

func (m *MockCounterBank) OnCount(slot Slot, v uint32) {
	m.counts[slot&slotMask] = v
}

func (m *MockCounterBank) OnCycles(v uint32) {
	m.cycles = v
}

func (m *MockCounterBank) SetRunning(running bool) {
	m.running = running
}

func (m *MockCounterBank) SetUserAccess(enabled bool) {
	m.userAccess = enabled
}

func (m *MockCounterBank) Programmed() map[Slot]Event {
	return m.programmed
}

func (m *MockCounterBank) ProgramCalls() []ProgramCall {
	return m.programCalls
}

func (m *MockCounterBank) Enables() int {
	return m.enables
}

func (m *MockCounterBank) Disables() int {
	return m.disables
}

func (m *MockCounterBank) Resets() int {
	return m.resets
}

func (m *MockCounterBank) CycleResets() int {
	return m.cycleResets
}
