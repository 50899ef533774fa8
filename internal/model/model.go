// SPDX-FileCopyrightText: 2025 The Pmugov Authors
// SPDX-License-Identifier: Apache-2.0

// Package model holds the per-core-class linear energy models and their
// evaluation over a counter bank.
//
// A model is an ordered list of terms; each term pairs a counter source with
// a fitted energy coefficient. Weights are signed integers in units of
// WeightScale joules per event occurrence (or per cycle), so an evaluated sum
// of weight×count is an energy in picojoules and an energy divided by
// milliseconds is a power in nanowatts. All arithmetic stays in int64; the
// fixed-point scale was folded into the weight literals when the models were
// fitted and never reappears at evaluation time.
package model

import (
	"github.com/pmu-energy/pmugov/internal/device"
)

// WeightScale is the fixed-point scale of model weights: one weight unit is
// 1e-12 J (a picojoule).
const WeightScale = 1e-12

// Source is the counter a term is sampled from: an architectural event
// number bound to a programmable slot, or CycleCounter for the dedicated
// cycle counter.
type Source int64

// CycleCounter marks the term sampled from the dedicated cycle counter.
const CycleCounter Source = -1

// Event returns the architectural event number of a non-cycle source.
func (s Source) Event() device.Event {
	return device.Event(s)
}

// Term is one model term: energy contribution = Weight × sampled count.
// Weights may be negative; a negative term models an event whose marginal
// energy came out below the baseline in the fit.
type Term struct {
	Source Source
	Weight int64 // WeightScale joules per occurrence
}

// Model is an immutable, ordered energy model for one core class.
type Model struct {
	Name  string
	Terms []Term
}

// Slots returns how many programmable slots the model occupies. The
// cycle-counter term consumes no slot.
func (m Model) Slots() int {
	n := 0
	for _, t := range m.Terms {
		if t.Source != CycleCounter {
			n++
		}
	}
	return n
}

// Weight literals are the fitted floating-point coefficients divided by
// WeightScale, truncated toward zero. The original coefficients are kept in
// the comments so the models can be re-derived against the fitting data.

// bigCoreModel is the fitted model for the high-performance core class.
var bigCoreModel = Model{
	Name: "big",
	Terms: []Term{
		{Source: Source(device.EventASESpec), Weight: 6448446679},         // 6.448446679859954e-06
		{Source: Source(device.EventBrMisPred), Weight: -131163},          // -1.3116397823286028e-07
		{Source: Source(device.EventDPSpec), Weight: 246},                 // 2.4606358411235e-10
		{Source: Source(device.EventL2DCacheRefill), Weight: 1581324},     // 1.5813244507839535e-06
		{Source: Source(device.EventL2DCacheWB), Weight: -8824135},        // -8.824135849354271e-06
		{Source: CycleCounter, Weight: 760},                               // 7.601199539578169e-10
		{Source: Source(device.EventVFPSpec), Weight: 1584},               // 1.5849463107519799e-09
	},
}

// littleCoreModel is the fitted model for the low-power core class.
var littleCoreModel = Model{
	Name: "little",
	Terms: []Term{
		{Source: Source(device.EventBrMisPred), Weight: 616},          // 6.166023259107466e-10
		{Source: Source(device.EventL1DTLBRefill), Weight: 32521},     // 3.252129874527141e-08
		{Source: Source(device.EventL2DCacheRefill), Weight: -55918},  // -5.591860964520609e-08
		{Source: Source(device.EventL2DCacheWB), Weight: 181504},      // 1.8150459114876734e-07
		{Source: CycleCounter, Weight: 101},                           // 1.0141460676251428e-10
	},
}

// CoreClass partitions CPUs into the two modeled core types.
type CoreClass int

const (
	ClassLittle CoreClass = iota
	ClassBig
)

func (c CoreClass) String() string {
	if c == ClassLittle {
		return "little"
	}
	return "big"
}

// Library selects the model for a CPU. Exactly one model instance exists per
// core class; selection is a pure function of the CPU index.
type Library struct {
	little Model
	big    Model

	littleCPUs map[int]bool
}

// NewLibrary returns a Library with the shipped models. littleCPUs lists the
// CPU indices of the low-power class; every other CPU is of the big class.
func NewLibrary(littleCPUs []int) *Library {
	set := make(map[int]bool, len(littleCPUs))
	for _, cpu := range littleCPUs {
		set[cpu] = true
	}
	return &Library{
		little:     littleCoreModel,
		big:        bigCoreModel,
		littleCPUs: set,
	}
}

// ClassOf returns the core class of a CPU.
func (l *Library) ClassOf(cpu int) CoreClass {
	if l.littleCPUs[cpu] {
		return ClassLittle
	}
	return ClassBig
}

// ForCPU returns the energy model of a CPU's core class.
func (l *Library) ForCPU(cpu int) Model {
	if l.ClassOf(cpu) == ClassLittle {
		return l.little
	}
	return l.big
}
