// SPDX-FileCopyrightText: 2025 The Pmugov Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the daemon configuration from a YAML file and
// overlays command-line flags on top of it.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/prometheus/common/model"
	"gopkg.in/yaml.v3"
	"k8s.io/utils/ptr"
)

// Config represents the complete application configuration
type (
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	}

	// Monitor configures the per-CPU energy accounting.
	Monitor struct {
		// CPUs is the number of CPUs to account; 0 means all online CPUs
		CPUs int `yaml:"cpus"`
		// LittleCPUs lists the CPUs of the low-power core class
		LittleCPUs []int `yaml:"littleCPUs"`
		// SampleInterval is the counter evaluation tick period
		SampleInterval model.Duration `yaml:"sampleInterval"`
		// Window is the power averaging window duration
		Window model.Duration `yaml:"window"`
		// WindowedAveraging selects windowed (true) or instantaneous
		// (false) power accounting
		WindowedAveraging bool `yaml:"windowedAveraging"`
		// UserAccessDetection suspends accounting while the counters are
		// user-accessible
		UserAccessDetection bool `yaml:"userAccessDetection"`
		// ThrottleGate enables the per-CPU energy budget predicate
		ThrottleGate bool `yaml:"throttleGate"`
		// Budgets holds initial per-CPU power budgets in nanowatts
		Budgets map[int]int64 `yaml:"budgets"`
	}

	// Domain defines one frequency domain for the power limiter.
	Domain struct {
		Name   string `yaml:"name"`
		CPUs   []int  `yaml:"cpus"`
		MinKHz uint64 `yaml:"minKHz"`
		MaxKHz uint64 `yaml:"maxKHz"`
	}

	// Limiter configures the per-domain power limiting loops.
	Limiter struct {
		Enabled      bool           `yaml:"enabled"`
		PollInterval model.Duration `yaml:"pollInterval"`
		Domains      []Domain       `yaml:"domains"`
	}

	Host struct {
		SysFS string `yaml:"sysfs"`
	}

	Web struct {
		Config          string   `yaml:"configFile"`
		ListenAddresses []string `yaml:"listenAddresses"`
	}

	PrometheusExporter struct {
		Enabled *bool `yaml:"enabled"`
	}

	Exporter struct {
		Prometheus PrometheusExporter `yaml:"prometheus"`
	}

	// Dev settings are only meant for development
	Dev struct {
		FakeCounters FakeCounters `yaml:"fake-counters"`
	}

	// FakeCounters replaces the hardware counter banks with fakes that
	// synthesize event counts
	FakeCounters struct {
		Enabled   bool   `yaml:"enabled"`
		CycleStep uint64 `yaml:"cycleStep"`
	}

	Config struct {
		Log      Log      `yaml:"log"`
		Monitor  Monitor  `yaml:"monitor"`
		Limiter  Limiter  `yaml:"limiter"`
		Host     Host     `yaml:"host"`
		Web      Web      `yaml:"web"`
		Exporter Exporter `yaml:"exporter"`
		Dev      Dev      `yaml:"dev"`
	}
)

const (
	// Flags
	LogLevelFlag  = "log.level"
	LogFormatFlag = "log.format"

	SampleIntervalFlag = "monitor.interval"
	WindowFlag         = "monitor.window"

	LimiterEnabledFlag  = "limiter.enabled"
	LimiterIntervalFlag = "limiter.interval"

	HostSysFSFlag = "host.sysfs"

	WebConfigFlag = "web.config-file"
	WebListenFlag = "web.listen-address"

	FakeCountersFlag = "dev.fake-counters"
)

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Monitor: Monitor{
			CPUs:                0,
			SampleInterval:      model.Duration(10 * time.Millisecond),
			Window:              model.Duration(1000 * time.Millisecond),
			WindowedAveraging:   true,
			UserAccessDetection: true,
			ThrottleGate:        true,
		},
		Limiter: Limiter{
			Enabled:      true,
			PollInterval: model.Duration(100 * time.Millisecond),
		},
		Host: Host{
			SysFS: "/sys",
		},
		Web: Web{
			ListenAddresses: []string{":28282"},
		},
		Exporter: Exporter{
			Prometheus: PrometheusExporter{
				Enabled: ptr.To(true),
			},
		},
	}
}

// Load loads configuration from an io.Reader
func Load(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.sanitize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// FromFile loads configuration from a file
func FromFile(filePath string) (*Config, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return Load(file)
}

type ConfigUpdaterFn func(*Config) error

// RegisterFlags registers command-line flags with kingpin app
// and returns ConfigUpdaterFn that updates the config from parsed flags
// as command line arguments override config file settings
func RegisterFlags(app *kingpin.Application) ConfigUpdaterFn {
	// track flags that were explicitly set
	flagsSet := map[string]bool{}

	app.PreAction(func(ctx *kingpin.ParseContext) error {
		// Clear the map in case this function is called multiple times
		flagsSet = map[string]bool{}

		for _, element := range ctx.Elements {
			if flag, ok := element.Clause.(*kingpin.FlagClause); ok && element.Value != nil {
				flagsSet[flag.Model().Name] = true
			}
		}
		return nil
	})

	logLevel := app.Flag(LogLevelFlag, "Logging level: debug, info, warn, error").Default("info").Enum("debug", "info", "warn", "error")
	logFormat := app.Flag(LogFormatFlag, "Logging format: text or json").Default("text").Enum("text", "json")

	sampleInterval := app.Flag(SampleIntervalFlag, "Counter sampling interval").Default("10ms").Duration()
	window := app.Flag(WindowFlag, "Power averaging window duration").Default("1s").Duration()

	limiterEnabled := app.Flag(LimiterEnabledFlag, "Enable the power limiting loops").Default("true").Bool()
	limiterInterval := app.Flag(LimiterIntervalFlag, "Power limiter polling interval").Default("100ms").Duration()

	hostSysFS := app.Flag(HostSysFSFlag, "Path to the host sysfs mount point").Default("/sys").String()

	webConfig := app.Flag(WebConfigFlag, "Path to a web config file for TLS / basic auth").Default("").String()
	webListen := app.Flag(WebListenFlag, "Addresses for the API server to listen on").Default(":28282").Strings()

	fakeCounters := app.Flag(FakeCountersFlag, "Use fake counter banks instead of hardware PMUs (dev only)").Default("false").Bool()

	return func(cfg *Config) error {
		if flagsSet[LogLevelFlag] {
			cfg.Log.Level = *logLevel
		}
		if flagsSet[LogFormatFlag] {
			cfg.Log.Format = *logFormat
		}

		if flagsSet[SampleIntervalFlag] {
			cfg.Monitor.SampleInterval = model.Duration(*sampleInterval)
		}
		if flagsSet[WindowFlag] {
			cfg.Monitor.Window = model.Duration(*window)
		}

		if flagsSet[LimiterEnabledFlag] {
			cfg.Limiter.Enabled = *limiterEnabled
		}
		if flagsSet[LimiterIntervalFlag] {
			cfg.Limiter.PollInterval = model.Duration(*limiterInterval)
		}

		if flagsSet[HostSysFSFlag] {
			cfg.Host.SysFS = *hostSysFS
		}

		if flagsSet[WebConfigFlag] {
			cfg.Web.Config = *webConfig
		}
		if flagsSet[WebListenFlag] {
			cfg.Web.ListenAddresses = *webListen
		}

		if flagsSet[FakeCountersFlag] {
			cfg.Dev.FakeCounters.Enabled = *fakeCounters
		}

		cfg.sanitize()
		return cfg.Validate()
	}
}

func (c *Config) sanitize() {
	c.Log.Level = strings.TrimSpace(c.Log.Level)
	c.Log.Format = strings.TrimSpace(c.Log.Format)
	c.Host.SysFS = strings.TrimSpace(c.Host.SysFS)
	for i := range c.Limiter.Domains {
		c.Limiter.Domains[i].Name = strings.TrimSpace(c.Limiter.Domains[i].Name)
	}
}

// Validate checks for configuration errors
func (c *Config) Validate() error {
	var errs []string
	{ // log level
		validLogLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if _, valid := validLogLevels[c.Log.Level]; !valid {
			errs = append(errs, fmt.Sprintf("invalid log level: %s", c.Log.Level))
		}
	}
	{ // log format
		validFormats := map[string]bool{
			"text": true,
			"json": true,
		}
		if _, valid := validFormats[c.Log.Format]; !valid {
			errs = append(errs, fmt.Sprintf("invalid log format: %s", c.Log.Format))
		}
	}
	{ // monitor
		if c.Monitor.CPUs < 0 {
			errs = append(errs, fmt.Sprintf("monitor cpu count cannot be negative: %d", c.Monitor.CPUs))
		}
		if c.Monitor.SampleInterval <= 0 {
			errs = append(errs, fmt.Sprintf("monitor sample interval must be positive: %s", c.Monitor.SampleInterval))
		}
		if c.Monitor.Window <= 0 {
			errs = append(errs, fmt.Sprintf("monitor window must be positive: %s", c.Monitor.Window))
		}
		for _, cpu := range c.Monitor.LittleCPUs {
			if cpu < 0 {
				errs = append(errs, fmt.Sprintf("little cpu index cannot be negative: %d", cpu))
			}
		}
	}
	{ // limiter
		if c.Limiter.PollInterval <= 0 {
			errs = append(errs, fmt.Sprintf("limiter poll interval must be positive: %s", c.Limiter.PollInterval))
		}
		seen := map[string]bool{}
		for _, d := range c.Limiter.Domains {
			if d.Name == "" {
				errs = append(errs, "frequency domain without a name")
				continue
			}
			if seen[d.Name] {
				errs = append(errs, fmt.Sprintf("duplicate frequency domain: %s", d.Name))
			}
			seen[d.Name] = true
			if len(d.CPUs) == 0 {
				errs = append(errs, fmt.Sprintf("frequency domain %s has no CPUs", d.Name))
			}
			if d.MinKHz == 0 || d.MaxKHz < d.MinKHz {
				errs = append(errs, fmt.Sprintf("frequency domain %s has invalid range %d-%d kHz", d.Name, d.MinKHz, d.MaxKHz))
			}
		}
	}
	{ // host
		if c.Host.SysFS == "" {
			errs = append(errs, "host sysfs path cannot be empty")
		}
	}
	{ // budgets
		for cpu := range c.Monitor.Budgets {
			if cpu < 0 {
				errs = append(errs, fmt.Sprintf("budget for negative cpu index: %d", cpu))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, ", "))
	}

	return nil
}

func (c *Config) String() string {
	bytes, err := yaml.Marshal(c)
	if err == nil {
		return string(bytes)
	}
	// NOTE: this code path should not happen but if it does (i.e if yaml
	// marshal fails for some reason), manually build the string
	return c.manualString()
}

func (c *Config) manualString() string {
	cfgs := []struct {
		Name  string
		Value string
	}{
		{LogLevelFlag, c.Log.Level},
		{LogFormatFlag, c.Log.Format},
		{SampleIntervalFlag, c.Monitor.SampleInterval.String()},
		{WindowFlag, c.Monitor.Window.String()},
		{LimiterIntervalFlag, c.Limiter.PollInterval.String()},
		{HostSysFSFlag, c.Host.SysFS},
	}
	sb := strings.Builder{}

	for _, cfg := range cfgs {
		sb.WriteString(cfg.Name)
		sb.WriteString(": ")
		sb.WriteString(cfg.Value)
		sb.WriteString("\n")
	}

	return sb.String()
}
