// SPDX-FileCopyrightText: 2025 The Pmugov Authors
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"github.com/pmu-energy/pmugov/internal/device"
)

// Evaluator binds one model to a counter bank and computes the model's
// weighted sum from sampled counts.
//
// Slot indices are derived from term position, shifted down by one once the
// cycle-counter term has been passed, so the cycle-counter term consumes no
// programmable slot. The fitted weights assume exactly this binding;
// Initialize and Evaluate must keep using the same arithmetic.
type Evaluator struct {
	model Model
}

// NewEvaluator returns an evaluator for the given model.
func NewEvaluator(m Model) *Evaluator {
	return &Evaluator{model: m}
}

// Model returns the model being evaluated.
func (e *Evaluator) Model() Model {
	return e.model
}

// Initialize programs one slot per non-cycle term, in term order. It must be
// called with the bank stopped; callers reset and re-enable afterwards.
func (e *Evaluator) Initialize(bank device.CounterBank) {
	shift := 0
	for i, t := range e.model.Terms {
		if t.Source == CycleCounter {
			// shift fixes the slot indexing of the remaining terms
			shift = -1
			continue
		}
		bank.Program(device.Slot(i+shift), t.Source.Event())
	}
}

// Evaluate reads every term's counter and returns the signed weighted sum in
// WeightScale energy units (picojoules). The sum may be negative: some
// fitted weights are below zero and the sign is preserved, never clamped.
// Arithmetic is fixed-width int64 and wraps on overflow; over long uptimes a
// wrapped integral is a bounded inaccuracy, not an error.
func (e *Evaluator) Evaluate(bank device.CounterBank) int64 {
	var result int64
	shift := 0
	for i, t := range e.model.Terms {
		var count uint32
		if t.Source == CycleCounter {
			count = bank.ReadCycleCounter()
			shift = -1
		} else {
			count = bank.Read(device.Slot(i + shift))
		}
		result += t.Weight * int64(count)
	}
	return result
}
