// SPDX-FileCopyrightText: 2025 The Pmugov Authors
// SPDX-License-Identifier: Apache-2.0

// Package cpufreq models frequency domains and the actuators that drive
// their operating points.
package cpufreq

import "fmt"

// Relation selects how a requested frequency maps onto the supported
// operating points of a domain.
type Relation int

const (
	// RelationLow rounds the request down to the nearest supported point.
	RelationLow Relation = iota
	// RelationHigh rounds the request up to the nearest supported point.
	RelationHigh
)

func (r Relation) String() string {
	if r == RelationLow {
		return "low"
	}
	return "high"
}

// Domain is a set of CPUs sharing one clock and voltage rail, and therefore
// one frequency actuator. The partition is static platform topology; it is
// never mutated at runtime.
type Domain struct {
	Name   string
	CPUs   []int
	MinKHz uint64
	MaxKHz uint64
}

func (d Domain) String() string {
	return fmt.Sprintf("%s{cpus: %v, %d-%d kHz}", d.Name, d.CPUs, d.MinKHz, d.MaxKHz)
}

// Validate checks the domain definition for obvious topology errors.
func (d Domain) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("frequency domain without a name")
	}
	if len(d.CPUs) == 0 {
		return fmt.Errorf("frequency domain %s has no CPUs", d.Name)
	}
	if d.MinKHz == 0 || d.MaxKHz < d.MinKHz {
		return fmt.Errorf("frequency domain %s has invalid range %d-%d kHz", d.Name, d.MinKHz, d.MaxKHz)
	}
	return nil
}

// Actuator drives the frequency target of one domain.
type Actuator interface {
	Name() string
	// Target requests an operating point. The request is mapped onto the
	// supported points according to rel.
	Target(khz uint64, rel Relation) error
}

// pickTarget maps a requested frequency onto the supported points.
// available must be sorted ascending and non-empty.
func pickTarget(available []uint64, khz uint64, rel Relation) uint64 {
	switch rel {
	case RelationHigh:
		for _, f := range available {
			if f >= khz {
				return f
			}
		}
		return available[len(available)-1]
	default:
		for i := len(available) - 1; i >= 0; i-- {
			if available[i] <= khz {
				return available[i]
			}
		}
		return available[0]
	}
}
