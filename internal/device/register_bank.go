// SPDX-FileCopyrightText: 2025 The Pmugov Authors
// SPDX-License-Identifier: Apache-2.0

package device

// Register names one PMU coprocessor register. The raw MRC/MCR access
// primitives are platform code and live behind the RegisterFile boundary.
type Register int

const (
	// PMCR is the control register: bit 0 run, bit 1 event-counter reset,
	// bit 2 cycle-counter reset.
	PMCR Register = iota
	// PMCNTENSET enables individual counters; writing all ones enables
	// every counter the implementation has.
	PMCNTENSET
	// PMSELR selects the counter slot addressed by PMXEVTYPER/PMXEVCNTR.
	PMSELR
	// PMXEVTYPER holds the event number of the selected slot.
	PMXEVTYPER
	// PMXEVCNTR holds the count of the selected slot.
	PMXEVCNTR
	// PMCCNTR is the dedicated cycle counter.
	PMCCNTR
	// PMOVSR holds the overflow flags; bit 31 belongs to the cycle counter.
	PMOVSR
	// PMUSERENR is non-zero when user mode may access the counters.
	PMUSERENR
)

// RegisterFile is the opaque counter-bank device: register-level access to
// one core's PMU. Implementations are core-private and not race-free across
// cores.
type RegisterFile interface {
	Read(reg Register) uint32
	Write(reg Register, val uint32)
}

const (
	pmcrEnable     = 1 << 0
	pmcrEventReset = 1 << 1
	pmcrCycleReset = 1 << 2

	ovsrEventFlags = 0x7fffffff
	ovsrCycleFlag  = 0x80000000
)

// registerBank implements CounterBank over a RegisterFile.
type registerBank struct {
	regs RegisterFile
}

var _ CounterBank = (*registerBank)(nil)

// NewRegisterBank returns a CounterBank driving the given register file.
func NewRegisterBank(regs RegisterFile) CounterBank {
	return &registerBank{regs: regs}
}

func (b *registerBank) Name() string {
	return "pmu-registers"
}

func (b *registerBank) Enable() {
	// Make sure every counter is individually enabled before setting the
	// run bit.
	b.regs.Write(PMCNTENSET, 0xffffffff)
	cr := b.regs.Read(PMCR)
	b.regs.Write(PMCR, cr|pmcrEnable)
}

func (b *registerBank) Disable() {
	cr := b.regs.Read(PMCR)
	b.regs.Write(PMCR, cr&^uint32(pmcrEnable))
}

func (b *registerBank) Program(slot Slot, event Event) {
	b.regs.Write(PMSELR, uint32(slot)&slotMask)
	b.regs.Write(PMXEVTYPER, uint32(event))
}

func (b *registerBank) Read(slot Slot) uint32 {
	b.regs.Write(PMSELR, uint32(slot)&slotMask)
	return b.regs.Read(PMXEVCNTR)
}

func (b *registerBank) ReadCycleCounter() uint32 {
	return b.regs.Read(PMCCNTR)
}

func (b *registerBank) Reset() {
	cr := b.regs.Read(PMCR)
	b.regs.Write(PMCR, cr|pmcrEventReset)
	// Clear every overflow flag except the cycle counter's.
	b.regs.Write(PMOVSR, ovsrEventFlags)
}

func (b *registerBank) ResetCycleCounter() {
	cr := b.regs.Read(PMCR)
	b.regs.Write(PMCR, cr|pmcrCycleReset)
	b.regs.Write(PMOVSR, ovsrCycleFlag)
}

func (b *registerBank) IsRunning() bool {
	return b.regs.Read(PMCR)&pmcrEnable != 0
}

func (b *registerBank) IsUserAccessEnabled() bool {
	return b.regs.Read(PMUSERENR) != 0
}
