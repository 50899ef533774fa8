// SPDX-FileCopyrightText: 2025 The Pmugov Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInit(t *testing.T) {
	t.Run("all services initialize successfully", func(t *testing.T) {
		svc1 := &mockInitializer{mockService: mockService{name: "svc1"}}
		svc2 := &mockInitializer{mockService: mockService{name: "svc2"}}
		svc3 := &mockService{name: "non-initializer"}

		err := Init(nil, []Service{svc1, svc2, svc3})

		assert.NoError(t, err)
		assert.Equal(t, 1, svc1.initCount)
		assert.Equal(t, 1, svc2.initCount)
	})

	t.Run("initialization failure unwinds earlier services", func(t *testing.T) {
		svc1 := &mockInitShutdownService{mockService: mockService{name: "svc1"}}

		initErr := errors.New("init error")
		svc2 := &mockInitShutdownService{
			mockService: mockService{name: "svc2"},
			initFn:      func() error { return initErr },
		}

		svc3 := &mockInitShutdownService{mockService: mockService{name: "svc3"}}

		err := Init(nil, []Service{svc1, svc2, svc3})

		assert.Error(t, err)
		assert.ErrorIs(t, err, initErr)

		// svc1 initialized and then unwound
		assert.Equal(t, 1, svc1.initCount)
		assert.Equal(t, 1, svc1.shutdownCount)

		// svc2 failed to initialize, so it is not shut down
		assert.Equal(t, 1, svc2.initCount)
		assert.Equal(t, 0, svc2.shutdownCount)

		// svc3 never got a turn
		assert.Equal(t, 0, svc3.initCount)
		assert.Equal(t, 0, svc3.shutdownCount)
	})

	t.Run("shutdown error during unwind does not mask init error", func(t *testing.T) {
		initErr := errors.New("init error")
		svc1 := &mockInitShutdownService{
			mockService: mockService{name: "svc1"},
			shutdownFn:  func() error { return errors.New("shutdown error") },
		}
		svc2 := &mockInitShutdownService{
			mockService: mockService{name: "svc2"},
			initFn:      func() error { return initErr },
		}

		err := Init(nil, []Service{svc1, svc2})

		assert.ErrorIs(t, err, initErr)
		assert.Equal(t, 1, svc1.shutdownCount)
	})
}
