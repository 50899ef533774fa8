// SPDX-FileCopyrightText: 2025 The Pmugov Authors
// SPDX-License-Identifier: Apache-2.0

package device

import "fmt"

// Event is an architectural PMU event number, as written to the event-type
// select register of a programmable counter slot.
type Event uint32

// Events used by the shipped energy models (ARM architectural numbering).
const (
	EventL1DTLBRefill   Event = 0x05 // L1 data TLB refill
	EventBrMisPred      Event = 0x10 // mispredicted branch
	EventL2DCacheRefill Event = 0x17 // L2 data cache refill
	EventL2DCacheWB     Event = 0x18 // L2 data cache write-back
	EventDPSpec         Event = 0x73 // integer data-processing op speculatively executed
	EventASESpec        Event = 0x74 // advanced SIMD op speculatively executed
	EventVFPSpec        Event = 0x75 // floating-point op speculatively executed
)

// String returns the event's architectural mnemonic, preferably the name
// used by perf list.
func (e Event) String() string {
	switch e {
	case EventL1DTLBRefill:
		return "L1D_TLB_REFILL"
	case EventBrMisPred:
		return "BR_MIS_PRED"
	case EventL2DCacheRefill:
		return "L2D_CACHE_REFILL"
	case EventL2DCacheWB:
		return "L2D_CACHE_WB"
	case EventDPSpec:
		return "DP_SPEC"
	case EventASESpec:
		return "ASE_SPEC"
	case EventVFPSpec:
		return "VFP_SPEC"
	default:
		return fmt.Sprintf("EVENT_0x%02X", uint32(e))
	}
}
