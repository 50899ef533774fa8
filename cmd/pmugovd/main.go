// SPDX-FileCopyrightText: 2025 The Pmugov Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/pmu-energy/pmugov/internal/config"
	"github.com/pmu-energy/pmugov/internal/cpufreq"
	"github.com/pmu-energy/pmugov/internal/device"
	"github.com/pmu-energy/pmugov/internal/exporter/prometheus"
	"github.com/pmu-energy/pmugov/internal/limiter"
	"github.com/pmu-energy/pmugov/internal/logger"
	"github.com/pmu-energy/pmugov/internal/model"
	"github.com/pmu-energy/pmugov/internal/monitor"
	"github.com/pmu-energy/pmugov/internal/server"
	"github.com/pmu-energy/pmugov/internal/service"
	"github.com/pmu-energy/pmugov/internal/version"
)

func main() {
	cfg, err := parseArgsAndConfig()
	if err != nil {
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	slog.SetDefault(log)
	logVersionInfo(log)
	printConfigInfo(log, cfg)

	services, err := createServices(log, cfg)
	if err != nil {
		log.Error("failed to create services", "error", err)
		os.Exit(1)
	}

	if err := service.Init(log, services); err != nil {
		log.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}

	log.Info("Starting pmugovd")
	if err := service.Run(context.Background(), log, services); err != nil {
		log.Error("pmugovd terminated with an error", "error", err)
		os.Exit(1)
	}
	log.Info("Graceful shutdown completed")
}

func logVersionInfo(log *slog.Logger) {
	v := version.Info()
	log.Info("pmugovd version information",
		"version", v.Version,
		"buildTime", v.BuildTime,
		"gitBranch", v.GitBranch,
		"gitCommit", v.GitCommit,
		"goVersion", v.GoVersion,
		"goOS", v.GoOS,
		"goArch", v.GoArch,
	)
}

func parseArgsAndConfig() (*config.Config, error) {
	const appName = "pmugovd"
	app := kingpin.New(appName, "PMU counter based per-CPU energy accounting and power limiting daemon.")

	configFile := app.Flag("config.file", "Path to YAML configuration file").String()
	updateConfig := config.RegisterFlags(app)
	kingpin.MustParse(app.Parse(os.Args[1:]))

	log := logger.New("info", "text", os.Stderr)
	cfg := config.DefaultConfig()
	if *configFile != "" {
		log.Info("Loading configuration file", "path", *configFile)
		loadedCfg, err := config.FromFile(*configFile)
		if err != nil {
			log.Error("Error loading config file", "error", err.Error())
			return nil, err
		}
		cfg = loadedCfg
		log.Info("Completed loading of configuration file", "path", *configFile)
	}

	// Apply command line flags (these override config file settings)
	if err := updateConfig(cfg); err != nil {
		log.Error("Error applying command line flags", "error", err.Error())
		return nil, err
	}

	return cfg, nil
}

func printConfigInfo(log *slog.Logger, cfg *config.Config) {
	if !log.Enabled(context.Background(), slog.LevelInfo) || cfg.Log.Format == "json" {
		return
	}

	fmt.Printf(`
Configuration
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
%s
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
`, cfg)
}

func createBanks(log *slog.Logger, cfg *config.Config, cpus int) (device.BankProvider, error) {
	if cfg.Dev.FakeCounters.Enabled {
		log.Warn("Using fake counter banks, energy readings are synthetic")
		fakeOpts := []device.FakeOptFn{device.WithFakeLogger(log)}
		if step := cfg.Dev.FakeCounters.CycleStep; step != 0 {
			fakeOpts = append(fakeOpts, device.WithFakeCycleStep(uint32(step)))
		}
		return device.NewFakeBanks(cpus, fakeOpts...), nil
	}
	return device.NewSystemBanks(cpus, device.WithPerfLogger(log))
}

func createActuator(log *slog.Logger, cfg *config.Config, domain cpufreq.Domain) (cpufreq.Actuator, error) {
	if cfg.Dev.FakeCounters.Enabled {
		return cpufreq.NewFakeActuator(domain, log), nil
	}
	return cpufreq.NewSysfsActuator(domain,
		cpufreq.WithSysfsLogger(log),
		cpufreq.WithSysfsPath(cfg.Host.SysFS),
	)
}

func createServices(log *slog.Logger, cfg *config.Config) ([]service.Service, error) {
	log.Debug("Creating all services")

	cpus := cfg.Monitor.CPUs
	if cpus == 0 {
		cpus = runtime.NumCPU()
	}

	banks, err := createBanks(log, cfg, cpus)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter banks: %w", err)
	}

	models := model.NewLibrary(cfg.Monitor.LittleCPUs)
	pm := monitor.NewEnergyMonitor(banks, models, cpus,
		monitor.WithLogger(log),
		monitor.WithWindowDuration(time.Duration(cfg.Monitor.Window)),
		monitor.WithWindowedAveraging(cfg.Monitor.WindowedAveraging),
		monitor.WithUserAccessDetection(cfg.Monitor.UserAccessDetection),
		monitor.WithThrottleGate(cfg.Monitor.ThrottleGate),
	)
	for cpu, nanowatts := range cfg.Monitor.Budgets {
		if err := pm.SetPowerBudget(cpu, nanowatts); err != nil {
			return nil, fmt.Errorf("failed to apply initial budget: %w", err)
		}
	}

	sampler := monitor.NewSampler(pm, time.Duration(cfg.Monitor.SampleInterval),
		monitor.WithSamplerLogger(log))

	apiServer := server.NewAPIServer(
		server.WithLogger(log),
		server.WithListen(cfg.Web.ListenAddresses, cfg.Web.Config),
	)
	statusAPI := server.NewStatusAPI(pm, apiServer, server.WithStatusLogger(log))

	services := []service.Service{
		apiServer,
		statusAPI,
		sampler,
	}

	if cfg.Exporter.Prometheus.Enabled != nil && *cfg.Exporter.Prometheus.Enabled {
		collectors := prometheus.CreateCollectors(pm, prometheus.WithLogger(log))
		services = append(services, prometheus.NewExporter(apiServer,
			prometheus.WithLogger(log),
			prometheus.WithCollectors(collectors),
		))
	}

	if cfg.Limiter.Enabled {
		for _, d := range cfg.Limiter.Domains {
			domain := cpufreq.Domain{Name: d.Name, CPUs: d.CPUs, MinKHz: d.MinKHz, MaxKHz: d.MaxKHz}
			actuator, err := createActuator(log, cfg, domain)
			if err != nil {
				return nil, fmt.Errorf("failed to create actuator for domain %s: %w", domain.Name, err)
			}
			pl, err := limiter.NewPowerLimiter(domain, actuator, pm,
				limiter.WithLogger(log),
				limiter.WithPollInterval(time.Duration(cfg.Limiter.PollInterval)),
				limiter.WithWindowDuration(time.Duration(cfg.Monitor.Window)),
			)
			if err != nil {
				return nil, fmt.Errorf("failed to create limiter for domain %s: %w", domain.Name, err)
			}
			services = append(services, pl)
		}
	}

	services = append(services, service.NewSignalHandler(os.Interrupt, syscall.SIGTERM))
	return services, nil
}
