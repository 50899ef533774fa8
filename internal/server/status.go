// SPDX-FileCopyrightText: 2025 The Pmugov Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/pmu-energy/pmugov/internal/monitor"
)

// StatusProvider is the monitor surface the status API publishes.
type StatusProvider interface {
	Statuses() []monitor.Status
	TotalEnergyUsage() int64
	PowerBudget(cpu int) int64
	SetPowerBudget(cpu int, nanowatts int64) error
}

// StatusAPI publishes the per-CPU accounting state and the power budget
// configuration surface over HTTP.
type StatusAPI struct {
	logger   *slog.Logger
	provider StatusProvider
	server   APIService
}

// StatusOptFn is a functional option for configuring the StatusAPI
type StatusOptFn func(*StatusAPI)

// WithStatusLogger sets the logger of the status API
func WithStatusLogger(l *slog.Logger) StatusOptFn {
	return func(s *StatusAPI) {
		s.logger = l.With("service", "status-api")
	}
}

// NewStatusAPI creates the status API over the given provider.
func NewStatusAPI(provider StatusProvider, server APIService, opts ...StatusOptFn) *StatusAPI {
	s := &StatusAPI{
		logger:   slog.Default().With("service", "status-api"),
		provider: provider,
		server:   server,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *StatusAPI) Name() string {
	return "status-api"
}

func (s *StatusAPI) Init() error {
	if err := s.server.Register("/status", "Status", "Per-CPU energy accounting state",
		http.HandlerFunc(s.handleStatus)); err != nil {
		return err
	}
	return s.server.Register("/budget", "Budget", "Per-CPU power budget in nanowatts",
		http.HandlerFunc(s.handleBudget))
}

type statusResponse struct {
	CPUs                  []monitor.Status `json:"cpus"`
	TotalEnergyPicojoules int64            `json:"totalEnergyPicojoules"`
}

type budgetResponse struct {
	CPU       int   `json:"cpu"`
	Nanowatts int64 `json:"nanowatts"`
}

func (s *StatusAPI) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := statusResponse{
		CPUs:                  s.provider.Statuses(),
		TotalEnergyPicojoules: s.provider.TotalEnergyUsage(),
	}
	writeJSON(w, s.logger, resp)
}

// handleBudget serves GET /budget?cpu=N and POST /budget?cpu=N with a
// nanowatts value in the body or query. A malformed value is rejected with
// 400 and the previous budget is retained.
func (s *StatusAPI) handleBudget(w http.ResponseWriter, r *http.Request) {
	cpu, err := strconv.Atoi(r.URL.Query().Get("cpu"))
	if err != nil {
		http.Error(w, "invalid or missing cpu parameter", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, s.logger, budgetResponse{CPU: cpu, Nanowatts: s.provider.PowerBudget(cpu)})

	case http.MethodPost, http.MethodPut:
		value := r.URL.Query().Get("nanowatts")
		if value == "" {
			value = r.FormValue("nanowatts")
		}
		nanowatts, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid nanowatts value: %q", value), http.StatusBadRequest)
			return
		}
		if err := s.provider.SetPowerBudget(cpu, nanowatts); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, s.logger, budgetResponse{CPU: cpu, Nanowatts: nanowatts})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to write response", "error", err)
	}
}
