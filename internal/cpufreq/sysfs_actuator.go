// SPDX-FileCopyrightText: 2025 The Pmugov Authors
// SPDX-License-Identifier: Apache-2.0

package cpufreq

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/prometheus/procfs/sysfs"
)

const defaultSysFSPath = "/sys"

// sysfsActuator throttles a domain by capping scaling_max_freq of every CPU
// on the rail. Supported operating points come from
// scaling_available_frequencies when the driver publishes them, otherwise
// the domain's min and max are the only two points (which is all a two-point
// controller needs).
type sysfsActuator struct {
	logger    *slog.Logger
	domain    Domain
	sysfsPath string
	available []uint64 // sorted ascending
}

var _ Actuator = (*sysfsActuator)(nil)

// SysfsOptFn is a functional option for configuring the sysfs actuator
type SysfsOptFn func(*sysfsActuator)

// WithSysfsLogger sets the logger of the actuator
func WithSysfsLogger(l *slog.Logger) SysfsOptFn {
	return func(a *sysfsActuator) {
		a.logger = l.With("actuator", a.Name(), "domain", a.domain.Name)
	}
}

// WithSysfsPath overrides the sysfs mount point (for tests)
func WithSysfsPath(path string) SysfsOptFn {
	return func(a *sysfsActuator) {
		a.sysfsPath = path
	}
}

// NewSysfsActuator creates an actuator over the cpufreq sysfs interface of
// the given domain.
func NewSysfsActuator(domain Domain, opts ...SysfsOptFn) (Actuator, error) {
	if err := domain.Validate(); err != nil {
		return nil, err
	}

	a := &sysfsActuator{
		logger:    slog.Default().With("actuator", "cpufreq-sysfs", "domain", domain.Name),
		domain:    domain,
		sysfsPath: defaultSysFSPath,
	}
	for _, opt := range opts {
		opt(a)
	}

	fs, err := sysfs.NewFS(a.sysfsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sysfs: %w", err)
	}
	stats, err := fs.SystemCpufreq()
	if err != nil {
		return nil, fmt.Errorf("failed to read cpufreq state: %w", err)
	}
	known := map[string]bool{}
	for _, s := range stats {
		known[s.Name] = true
	}
	for _, cpu := range a.domain.CPUs {
		if !known[strconv.Itoa(cpu)] {
			return nil, fmt.Errorf("cpu %d of domain %s has no cpufreq interface", cpu, domain.Name)
		}
	}

	a.available = a.readAvailableFrequencies()
	a.logger.Info("cpufreq actuator ready", "operating_points", a.available)
	return a, nil
}

func (a *sysfsActuator) Name() string {
	return "cpufreq-sysfs"
}

func (a *sysfsActuator) Target(khz uint64, rel Relation) error {
	target := pickTarget(a.available, khz, rel)
	for _, cpu := range a.domain.CPUs {
		path := a.cpufreqFile(cpu, "scaling_max_freq")
		if err := os.WriteFile(path, []byte(strconv.FormatUint(target, 10)), 0o644); err != nil {
			return fmt.Errorf("failed to set frequency cap of cpu %d: %w", cpu, err)
		}
	}
	a.logger.Debug("frequency target applied", "requested_khz", khz, "target_khz", target, "relation", rel.String())
	return nil
}

func (a *sysfsActuator) cpufreqFile(cpu int, name string) string {
	return filepath.Join(a.sysfsPath, "devices", "system", "cpu", fmt.Sprintf("cpu%d", cpu), "cpufreq", name)
}

// readAvailableFrequencies parses scaling_available_frequencies of the
// domain's first CPU. Not every driver publishes the file; the domain range
// endpoints are the fallback.
func (a *sysfsActuator) readAvailableFrequencies() []uint64 {
	fallback := []uint64{a.domain.MinKHz, a.domain.MaxKHz}

	data, err := os.ReadFile(a.cpufreqFile(a.domain.CPUs[0], "scaling_available_frequencies"))
	if err != nil {
		return fallback
	}

	var freqs []uint64
	for _, field := range strings.Fields(string(data)) {
		f, err := strconv.ParseUint(field, 10, 64)
		if err != nil {
			a.logger.Warn("skipping unparsable operating point", "value", field)
			continue
		}
		freqs = append(freqs, f)
	}
	if len(freqs) == 0 {
		return fallback
	}
	slices.Sort(freqs)
	return freqs
}
