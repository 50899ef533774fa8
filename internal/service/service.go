// SPDX-FileCopyrightText: 2025 The Pmugov Authors
// SPDX-License-Identifier: Apache-2.0

// Package service defines the lifecycle contract shared by the daemon's
// long-running components and runs them as one group.
package service

import "context"

// Service is the interface that all services must implement
type Service interface {
	// Name returns the name of the service
	Name() string
}

// Initializer is implemented by services that need a setup step before the
// group starts running
type Initializer interface {
	Service
	Init() error
}

// Runner is implemented by services that run in the background
type Runner interface {
	Service
	// Run blocks until the context is cancelled; it must be safe to call
	// alongside the other services
	Run(ctx context.Context) error
}

// Shutdowner is implemented by services that need cleanup on the way out
type Shutdowner interface {
	Service
	// Shutdown shuts down the service
	Shutdown() error
}
