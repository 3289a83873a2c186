// Copyright (C) 2025 Claro Labs (oss@clarolabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

var errFlaky = errors.New("flaky")

func fastRetryConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2.0,
	}
}

func TestRetryConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  RetryConfig
		wantErr bool
	}{
		{
			name:    "default config is valid",
			config:  DefaultRetryConfig(),
			wantErr: false,
		},
		{
			name:    "zero max attempts is invalid",
			config:  RetryConfig{MaxAttempts: 0, InitialBackoff: time.Second, MaxBackoff: time.Second, BackoffFactor: 2.0},
			wantErr: true,
		},
		{
			name:    "negative initial backoff is invalid",
			config:  RetryConfig{MaxAttempts: 3, InitialBackoff: -time.Second, MaxBackoff: time.Second, BackoffFactor: 2.0},
			wantErr: true,
		},
		{
			name:    "max backoff less than initial is invalid",
			config:  RetryConfig{MaxAttempts: 3, InitialBackoff: 10 * time.Second, MaxBackoff: time.Second, BackoffFactor: 2.0},
			wantErr: true,
		},
		{
			name:    "backoff factor less than 1 is invalid",
			config:  RetryConfig{MaxAttempts: 3, InitialBackoff: time.Second, MaxBackoff: time.Second, BackoffFactor: 0.5},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	var calls int32
	result, err := Retry(context.Background(), fastRetryConfig(3),
		func(error) bool { return true },
		func(ctx context.Context, attempt int) error {
			atomic.AddInt32(&calls, 1)
			return nil
		})
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if result.Attempts != 1 || calls != 1 {
		t.Errorf("attempts = %d, calls = %d, want 1 and 1", result.Attempts, calls)
	}
}

func TestRetry_RetriesUntilSuccess(t *testing.T) {
	var calls int32
	_, err := Retry(context.Background(), fastRetryConfig(5),
		func(err error) bool { return errors.Is(err, errFlaky) },
		func(ctx context.Context, attempt int) error {
			if atomic.AddInt32(&calls, 1) < 3 {
				return errFlaky
			}
			return nil
		})
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	fatal := errors.New("fatal")
	var calls int32
	result, err := Retry(context.Background(), fastRetryConfig(5),
		func(err error) bool { return errors.Is(err, errFlaky) },
		func(ctx context.Context, attempt int) error {
			atomic.AddInt32(&calls, 1)
			return fatal
		})
	if !errors.Is(err, fatal) {
		t.Fatalf("Retry() error = %v, want %v", err, fatal)
	}
	if calls != 1 || result.Attempts != 1 {
		t.Errorf("calls = %d, attempts = %d, want 1 and 1", calls, result.Attempts)
	}
}

func TestRetry_ExhaustionReturnsLastError(t *testing.T) {
	var calls int32
	result, err := Retry(context.Background(), fastRetryConfig(3),
		func(error) bool { return true },
		func(ctx context.Context, attempt int) error {
			atomic.AddInt32(&calls, 1)
			return errFlaky
		})
	if !errors.Is(err, errFlaky) {
		t.Fatalf("Retry() error = %v, want %v", err, errFlaky)
	}
	if calls != 3 || result.Attempts != 3 {
		t.Errorf("calls = %d, attempts = %d, want 3 and 3", calls, result.Attempts)
	}
}

func TestRetry_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Retry(ctx, fastRetryConfig(3),
		func(error) bool { return true },
		func(ctx context.Context, attempt int) error {
			t.Fatal("fn must not run after cancellation")
			return nil
		})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry() error = %v, want context.Canceled", err)
	}
}

func TestNextBackoff_Caps(t *testing.T) {
	got := nextBackoff(20*time.Second, 2.0, 30*time.Second)
	if got != 30*time.Second {
		t.Errorf("nextBackoff() = %v, want 30s", got)
	}
}
