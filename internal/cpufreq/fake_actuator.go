// SPDX-FileCopyrightText: 2025 The Pmugov Authors
// SPDX-License-Identifier: Apache-2.0

package cpufreq

import (
	"log/slog"
	"sync"
)

// NOTE: the fake actuator is for tests and development runs only

// Request records one Target invocation.
type Request struct {
	KHz      uint64
	Relation Relation
}

// FakeActuator accepts every request and remembers it.
type FakeActuator struct {
	logger *slog.Logger
	domain Domain

	mu       sync.Mutex
	requests []Request
}

var _ Actuator = (*FakeActuator)(nil)

// NewFakeActuator creates an actuator that only logs.
func NewFakeActuator(domain Domain, logger *slog.Logger) *FakeActuator {
	return &FakeActuator{
		logger: logger.With("actuator", "fake", "domain", domain.Name),
		domain: domain,
	}
}

func (a *FakeActuator) Name() string {
	return "fake-actuator"
}

func (a *FakeActuator) Target(khz uint64, rel Relation) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests = append(a.requests, Request{KHz: khz, Relation: rel})
	a.logger.Debug("frequency target accepted", "khz", khz, "relation", rel.String())
	return nil
}

// Requests returns a copy of every request seen so far.
func (a *FakeActuator) Requests() []Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Request(nil), a.requests...)
}

// LastRequest returns the most recent request, if any.
func (a *FakeActuator) LastRequest() (Request, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.requests) == 0 {
		return Request{}, false
	}
	return a.requests[len(a.requests)-1], true
}
