// SPDX-FileCopyrightText: 2025 The Pmugov Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"log/slog"
	"strconv"

	prom "github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/pmu-energy/pmugov/internal/monitor"
)

// PowerDataProvider is the view the collector takes on the energy monitor.
type PowerDataProvider interface {
	Statuses() []monitor.Status
	CurrentEnergy(cpu int) int64
	PowerBudget(cpu int) int64
	TotalEnergyUsage() int64
}

// cpuSample is one CPU's scrape snapshot.
type cpuSample struct {
	status monitor.Status
	energy int64
	budget int64
}

type snapshot struct {
	cpus  []cpuSample
	total int64
}

// PowerCollector exposes per-CPU power, window energy and budget metrics.
// All values of one scrape come from a single snapshot so the series are
// mutually consistent; concurrent scrapes share one snapshot computation.
type PowerCollector struct {
	provider PowerDataProvider
	logger   *slog.Logger

	snapshotGroup singleflight.Group

	cpuWattsDesc     *prom.Desc
	cpuWindowJoules  *prom.Desc
	cpuBudgetWatts   *prom.Desc
	cpuDisabledDesc  *prom.Desc
	nodeWindowJoules *prom.Desc
}

const (
	cpuLabel = "cpu"

	nanowattsPerWatt   = 1e9
	picojoulesPerJoule = 1e12
)

// NewPowerCollector creates a collector over the given provider.
func NewPowerCollector(provider PowerDataProvider, logger *slog.Logger) *PowerCollector {
	return &PowerCollector{
		provider: provider,
		logger:   logger.With("collector", "power"),

		cpuWattsDesc: prom.NewDesc(
			prom.BuildFQName(pmugovNS, "cpu", "average_watts"),
			"Average power of the last completed window in watts",
			[]string{cpuLabel}, nil),
		cpuWindowJoules: prom.NewDesc(
			prom.BuildFQName(pmugovNS, "cpu", "window_joules"),
			"Energy accumulated in the current (possibly still open) window in joules",
			[]string{cpuLabel}, nil),
		cpuBudgetWatts: prom.NewDesc(
			prom.BuildFQName(pmugovNS, "cpu", "power_budget_watts"),
			"Configured power budget in watts; 0 means unlimited",
			[]string{cpuLabel}, nil),
		cpuDisabledDesc: prom.NewDesc(
			prom.BuildFQName(pmugovNS, "cpu", "monitoring_disabled"),
			"1 while counter monitoring is suspended due to user-mode counter access",
			[]string{cpuLabel}, nil),
		nodeWindowJoules: prom.NewDesc(
			prom.BuildFQName(pmugovNS, "node", "window_joules"),
			"Sum of all CPUs' current-window energy in joules",
			nil, nil),
	}
}

func (c *PowerCollector) Describe(ch chan<- *prom.Desc) {
	ch <- c.cpuWattsDesc
	ch <- c.cpuWindowJoules
	ch <- c.cpuBudgetWatts
	ch <- c.cpuDisabledDesc
	ch <- c.nodeWindowJoules
}

func (c *PowerCollector) Collect(ch chan<- prom.Metric) {
	snap := c.snapshot()

	for _, s := range snap.cpus {
		cpu := strconv.Itoa(s.status.CPU)

		ch <- prom.MustNewConstMetric(c.cpuWattsDesc, prom.GaugeValue,
			float64(s.status.AveragePowerNanowatts)/nanowattsPerWatt, cpu)
		ch <- prom.MustNewConstMetric(c.cpuWindowJoules, prom.GaugeValue,
			float64(s.energy)/picojoulesPerJoule, cpu)

		budget := s.budget
		if budget < 0 {
			budget = 0
		}
		ch <- prom.MustNewConstMetric(c.cpuBudgetWatts, prom.GaugeValue,
			float64(budget)/nanowattsPerWatt, cpu)

		disabled := 0.0
		if s.status.Disabled {
			disabled = 1.0
		}
		ch <- prom.MustNewConstMetric(c.cpuDisabledDesc, prom.GaugeValue, disabled, cpu)
	}

	ch <- prom.MustNewConstMetric(c.nodeWindowJoules, prom.GaugeValue,
		float64(snap.total)/picojoulesPerJoule)
}

// snapshot reads every CPU's state once. Concurrent scrapes collapse into a
// single read pass.
func (c *PowerCollector) snapshot() *snapshot {
	v, _, _ := c.snapshotGroup.Do("snapshot", func() (any, error) {
		statuses := c.provider.Statuses()
		snap := &snapshot{
			cpus: make([]cpuSample, len(statuses)),
		}
		for i, status := range statuses {
			snap.cpus[i] = cpuSample{
				status: status,
				energy: c.provider.CurrentEnergy(status.CPU),
				budget: c.provider.PowerBudget(status.CPU),
			}
		}
		snap.total = c.provider.TotalEnergyUsage()
		return snap, nil
	})
	return v.(*snapshot)
}
