// SPDX-FileCopyrightText: 2025 The Pmugov Authors
// SPDX-License-Identifier: Apache-2.0

package device

// Slot identifies one programmable hardware counter. Only the low five bits
// are significant; the bank masks the rest (select-register width).
type Slot uint32

const slotMask = 0x1f

// CounterBank is the contract for one core's PMU counter bank. A bank is
// core-private hardware state: it must only ever be driven by code sampling
// that core, and no cross-core synchronization is provided.
//
// None of the operations return errors. Hardware access either succeeds or
// the bank reports itself as not running, which callers treat as a request
// to reinitialize.
type CounterBank interface {
	// Name returns a string identifying the bank backend
	Name() string

	// Enable sets the global run bit. Per-slot event programming is
	// untouched.
	Enable()

	// Disable clears the run bit. Counters stop advancing but keep their
	// last values.
	Disable()

	// Program binds event to the given slot.
	Program(slot Slot, event Event)

	// Read returns the current 32-bit saturating count of the slot.
	Read(slot Slot) uint32

	// ReadCycleCounter returns the dedicated cycle counter, independent of
	// the programmable slots.
	ReadCycleCounter() uint32

	// Reset zeroes all programmable slots and clears their overflow flags.
	// The cycle counter and its overflow flag are untouched.
	Reset()

	// ResetCycleCounter zeroes only the cycle counter and clears its
	// overflow flag.
	ResetCycleCounter()

	// IsRunning reports whether the run bit is set.
	IsRunning() bool

	// IsUserAccessEnabled reports whether user-mode access to the counters
	// is enabled, in which case their values cannot be trusted.
	IsUserAccessEnabled() bool
}

// BankProvider hands out the counter bank owned by a CPU.
type BankProvider interface {
	Bank(cpu int) CounterBank
}

// Banks is a BankProvider over a fixed slice indexed by CPU number.
type Banks []CounterBank

func (b Banks) Bank(cpu int) CounterBank {
	return b[cpu]
}
