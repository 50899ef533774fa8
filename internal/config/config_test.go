// SPDX-FileCopyrightText: 2025 The Pmugov Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/prometheus/common/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, model.Duration(1000*time.Millisecond), cfg.Monitor.Window)
	assert.True(t, cfg.Monitor.WindowedAveraging)
	assert.True(t, cfg.Limiter.Enabled)
	assert.Equal(t, "/sys", cfg.Host.SysFS)
	require.NotNil(t, cfg.Exporter.Prometheus.Enabled)
	assert.True(t, *cfg.Exporter.Prometheus.Enabled)
}

func TestLoad(t *testing.T) {
	yamlData := `
log:
  level: debug
  format: json
monitor:
  cpus: 8
  littleCPUs: [0, 1, 2, 3]
  sampleInterval: 20ms
  window: 2s
  budgets:
    4: 500
    5: 500
limiter:
  pollInterval: 250ms
  domains:
    - name: big
      cpus: [4, 5, 6, 7]
      minKHz: 200000
      maxKHz: 1200000
host:
  sysfs: /host/sys
dev:
  fake-counters:
    enabled: true
    cycleStep: 5000
`
	cfg, err := Load(strings.NewReader(yamlData))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8, cfg.Monitor.CPUs)
	assert.Equal(t, []int{0, 1, 2, 3}, cfg.Monitor.LittleCPUs)
	assert.Equal(t, model.Duration(20*time.Millisecond), cfg.Monitor.SampleInterval)
	assert.Equal(t, model.Duration(2*time.Second), cfg.Monitor.Window)
	assert.Equal(t, int64(500), cfg.Monitor.Budgets[4])
	assert.Equal(t, model.Duration(250*time.Millisecond), cfg.Limiter.PollInterval)
	require.Len(t, cfg.Limiter.Domains, 1)
	assert.Equal(t, "big", cfg.Limiter.Domains[0].Name)
	assert.Equal(t, uint64(1_200_000), cfg.Limiter.Domains[0].MaxKHz)
	assert.Equal(t, "/host/sys", cfg.Host.SysFS)
	assert.True(t, cfg.Dev.FakeCounters.Enabled)
	assert.Equal(t, uint64(5000), cfg.Dev.FakeCounters.CycleStep)

	// untouched sections keep their defaults
	assert.True(t, cfg.Monitor.WindowedAveraging)
	assert.Equal(t, []string{":28282"}, cfg.Web.ListenAddresses)
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(strings.NewReader("log: ["))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	_, err := Load(strings.NewReader("log:\n  level: loud\n"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestValidate(t *testing.T) {
	tt := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "negative cpu count",
			mutate:  func(c *Config) { c.Monitor.CPUs = -1 },
			wantErr: "cpu count",
		},
		{
			name:    "zero sample interval",
			mutate:  func(c *Config) { c.Monitor.SampleInterval = 0 },
			wantErr: "sample interval",
		},
		{
			name:    "zero window",
			mutate:  func(c *Config) { c.Monitor.Window = 0 },
			wantErr: "window",
		},
		{
			name:    "negative little cpu",
			mutate:  func(c *Config) { c.Monitor.LittleCPUs = []int{-1} },
			wantErr: "little cpu",
		},
		{
			name:    "zero limiter interval",
			mutate:  func(c *Config) { c.Limiter.PollInterval = 0 },
			wantErr: "poll interval",
		},
		{
			name: "domain without name",
			mutate: func(c *Config) {
				c.Limiter.Domains = []Domain{{CPUs: []int{0}, MinKHz: 1, MaxKHz: 2}}
			},
			wantErr: "without a name",
		},
		{
			name: "duplicate domain",
			mutate: func(c *Config) {
				c.Limiter.Domains = []Domain{
					{Name: "big", CPUs: []int{0}, MinKHz: 1, MaxKHz: 2},
					{Name: "big", CPUs: []int{1}, MinKHz: 1, MaxKHz: 2},
				}
			},
			wantErr: "duplicate",
		},
		{
			name: "domain with bad range",
			mutate: func(c *Config) {
				c.Limiter.Domains = []Domain{{Name: "big", CPUs: []int{0}, MinKHz: 3, MaxKHz: 2}}
			},
			wantErr: "invalid range",
		},
		{
			name:    "empty sysfs path",
			mutate:  func(c *Config) { c.Host.SysFS = "" },
			wantErr: "sysfs",
		},
		{
			name:    "negative budget cpu",
			mutate:  func(c *Config) { c.Monitor.Budgets = map[int]int64{-3: 100} },
			wantErr: "negative cpu index",
		},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestRegisterFlags(t *testing.T) {
	t.Run("set flags override config", func(t *testing.T) {
		app := kingpin.New("test", "")
		updateConfig := RegisterFlags(app)

		_, err := app.Parse([]string{
			"--log.level", "debug",
			"--monitor.interval", "50ms",
			"--limiter.enabled=false",
			"--host.sysfs", "/host/sys",
			"--dev.fake-counters",
		})
		require.NoError(t, err)

		cfg := DefaultConfig()
		require.NoError(t, updateConfig(cfg))

		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, model.Duration(50*time.Millisecond), cfg.Monitor.SampleInterval)
		assert.False(t, cfg.Limiter.Enabled)
		assert.Equal(t, "/host/sys", cfg.Host.SysFS)
		assert.True(t, cfg.Dev.FakeCounters.Enabled)
	})

	t.Run("unset flags keep config values", func(t *testing.T) {
		app := kingpin.New("test", "")
		updateConfig := RegisterFlags(app)

		_, err := app.Parse([]string{})
		require.NoError(t, err)

		cfg := DefaultConfig()
		cfg.Log.Level = "warn"
		cfg.Monitor.Window = model.Duration(5 * time.Second)

		require.NoError(t, updateConfig(cfg))

		assert.Equal(t, "warn", cfg.Log.Level)
		assert.Equal(t, model.Duration(5*time.Second), cfg.Monitor.Window)
	})

	t.Run("flag values are validated", func(t *testing.T) {
		app := kingpin.New("test", "")
		updateConfig := RegisterFlags(app)

		_, err := app.Parse([]string{"--monitor.window", "0s"})
		require.NoError(t, err)

		cfg := DefaultConfig()
		assert.Error(t, updateConfig(cfg))
	})
}

func TestString(t *testing.T) {
	cfg := DefaultConfig()
	s := cfg.String()
	assert.Contains(t, s, "level: info")
	assert.Contains(t, s, "sysfs: /sys")
}
