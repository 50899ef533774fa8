// SPDX-FileCopyrightText: 2025 The Pmugov Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package device

import (
	"errors"
	"log/slog"
)

// NewSystemBanks requires perf_event(2); on other platforms only the fake
// banks are available.
func NewSystemBanks(cpus int, opts ...PerfOptFn) (BankProvider, error) {
	return nil, errors.New("PMU counter access requires Linux")
}

// PerfOptFn is accepted for signature compatibility on non-Linux platforms.
type PerfOptFn func(any)

func WithPerfLogger(l *slog.Logger) PerfOptFn {
	return func(any) {}
}

func WithUserAccessPath(path string) PerfOptFn {
	return func(any) {}
}
