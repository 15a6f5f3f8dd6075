// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package asyncrt

import (
	"fmt"
	"time"

	"github.com/joeycumines/logiface"
)

const (
	defaultEventBufferSize = 256
	maxEventBufferSize     = 1 << 16
)

// runtimeOptions holds configuration options for Runtime creation.
type runtimeOptions struct {
	logger          *logiface.Logger[logiface.Event]
	warnRates       map[time.Duration]int
	name            string
	eventBufferSize int
	lockOSThread    bool
}

// Option configures a Runtime instance.
type Option interface {
	applyRuntime(*runtimeOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyRuntimeFunc func(*runtimeOptions) error
}

func (o *optionImpl) applyRuntime(opts *runtimeOptions) error {
	return o.applyRuntimeFunc(opts)
}

// WithLogger configures the structured logger used by the runtime, its
// drivers, and its tasks (panics are logged at error level). A nil logger
// disables logging, which is the default.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithName sets a name, included in log events, to tell runtimes apart.
func WithName(name string) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		opts.name = name
		return nil
	}}
}

// WithEventBufferSize sets the maximum number of readiness events the network
// reactor will collect per wait call. Defaults to 256.
func WithEventBufferSize(n int) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		if n < 1 || n > maxEventBufferSize {
			return fmt.Errorf("asyncrt: event buffer size out of range: %d", n)
		}
		opts.eventBufferSize = n
		return nil
	}}
}

// WithLockOSThread pins each multi-thread worker goroutine to its own OS
// thread, for the lifetime of the worker.
// It has no effect on the current-thread scheduler, which runs on the caller.
func WithLockOSThread(enabled bool) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		opts.lockOSThread = enabled
		return nil
	}}
}

// WithWarningRateLimit overrides the rates (window to count) used to throttle
// repeated warnings, per category, e.g. reactor wait failures.
// A nil or empty map disables throttling.
func WithWarningRateLimit(rates map[time.Duration]int) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		opts.warnRates = rates
		return nil
	}}
}

// resolveOptions applies Option instances to runtimeOptions.
func resolveOptions(opts []Option) (*runtimeOptions, error) {
	cfg := &runtimeOptions{
		eventBufferSize: defaultEventBufferSize,
		warnRates: map[time.Duration]int{
			time.Second: 1,
			time.Minute: 10,
		},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyRuntime(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
