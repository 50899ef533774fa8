// SPDX-FileCopyrightText: 2025 The Pmugov Authors
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"math"
	"testing"

	"github.com/pmu-energy/pmugov/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeProgramsTermsInOrder(t *testing.T) {
	bank := device.NewMockCounterBank()
	ev := NewEvaluator(bigCoreModel)
	ev.Initialize(bank)

	want := []device.ProgramCall{
		{Slot: 0, Event: device.EventASESpec},
		{Slot: 1, Event: device.EventBrMisPred},
		{Slot: 2, Event: device.EventDPSpec},
		{Slot: 3, Event: device.EventL2DCacheRefill},
		{Slot: 4, Event: device.EventL2DCacheWB},
		// the cycle-counter term consumes no programmable slot
		{Slot: 5, Event: device.EventVFPSpec},
	}
	assert.Equal(t, want, bank.ProgramCalls())
	assert.Equal(t, bigCoreModel.Slots(), len(bank.ProgramCalls()))
}

func TestInitializeLittleModel(t *testing.T) {
	bank := device.NewMockCounterBank()
	NewEvaluator(littleCoreModel).Initialize(bank)

	want := []device.ProgramCall{
		{Slot: 0, Event: device.EventBrMisPred},
		{Slot: 1, Event: device.EventL1DTLBRefill},
		{Slot: 2, Event: device.EventL2DCacheRefill},
		{Slot: 3, Event: device.EventL2DCacheWB},
	}
	assert.Equal(t, want, bank.ProgramCalls())
}

func TestEvaluateExactWeightedSum(t *testing.T) {
	m := Model{
		Name: "test",
		Terms: []Term{
			{Source: Source(device.EventBrMisPred), Weight: 3},
			{Source: CycleCounter, Weight: 7},
			{Source: Source(device.EventL2DCacheWB), Weight: -5},
		},
	}

	bank := device.NewMockCounterBank()
	bank.OnCount(0, 10)  // BR_MIS_PRED at slot 0
	bank.OnCount(1, 100) // L2D_CACHE_WB at slot 1 (shifted past the cycle term)
	bank.OnCycles(1000)

	got := NewEvaluator(m).Evaluate(bank)
	assert.Equal(t, int64(3*10+7*1000-5*100), got)
}

// The weighted sum must not depend on term order: permuted models over the
// same per-event counts yield identical results.
func TestEvaluateOrderInsensitive(t *testing.T) {
	counts := map[device.Event]uint32{
		device.EventBrMisPred:      41,
		device.EventL2DCacheRefill: 97,
		device.EventL2DCacheWB:     13,
	}
	cycles := uint32(50_000)

	weights := map[Source]int64{
		Source(device.EventBrMisPred):      616,
		Source(device.EventL2DCacheRefill): -55918,
		Source(device.EventL2DCacheWB):     181504,
		CycleCounter:                       101,
	}

	permutations := [][]Source{
		{Source(device.EventBrMisPred), Source(device.EventL2DCacheRefill), Source(device.EventL2DCacheWB), CycleCounter},
		{CycleCounter, Source(device.EventBrMisPred), Source(device.EventL2DCacheRefill), Source(device.EventL2DCacheWB)},
		{Source(device.EventL2DCacheWB), CycleCounter, Source(device.EventL2DCacheRefill), Source(device.EventBrMisPred)},
	}

	var results []int64
	for _, order := range permutations {
		m := Model{Name: "perm"}
		for _, src := range order {
			m.Terms = append(m.Terms, Term{Source: src, Weight: weights[src]})
		}

		bank := device.NewMockCounterBank()
		ev := NewEvaluator(m)
		ev.Initialize(bank)
		// bind counts to whatever slot each event landed in
		for slot, event := range bank.Programmed() {
			bank.OnCount(slot, counts[event])
		}
		bank.OnCycles(cycles)

		results = append(results, ev.Evaluate(bank))
	}

	require.Len(t, results, 3)
	assert.Equal(t, results[0], results[1])
	assert.Equal(t, results[0], results[2])
}

func TestEvaluatePreservesNegativeSign(t *testing.T) {
	m := Model{
		Name: "negative",
		Terms: []Term{
			{Source: Source(device.EventL2DCacheWB), Weight: -8824135},
		},
	}
	bank := device.NewMockCounterBank()
	bank.OnCount(0, 1000)

	got := NewEvaluator(m).Evaluate(bank)
	assert.Equal(t, int64(-8824135000), got)
	assert.Negative(t, got)
}

func TestEvaluateWrapsOnOverflow(t *testing.T) {
	m := Model{
		Name: "overflow",
		Terms: []Term{
			{Source: Source(device.EventDPSpec), Weight: math.MaxInt64},
		},
	}
	bank := device.NewMockCounterBank()
	bank.OnCount(0, 2)

	// wraparound-safe fixed-width arithmetic: the result is defined, not a
	// panic
	got := NewEvaluator(m).Evaluate(bank)
	assert.Equal(t, int64(-2), got)
}
