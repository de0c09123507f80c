// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package vpu

import (
	"github.com/rs/zerolog"
)

// Run configuration defaults. Caller-supplied options are merged over these.
const (
	DefaultShots  = 1024
	DefaultMethod = "automatic"
	DefaultSeed   = 123123
)

type jobOptions struct {
	config map[string]any
	logger zerolog.Logger
}

// A RunOption adjusts the run configuration or ambient wiring of a [Job].
// Recognized configuration keys have dedicated options below; anything else
// can be injected with [WithConfigValue] and is passed through to the worker
// untouched.
type RunOption func(*jobOptions)

// WithShots sets the number of measurement shots requested per execution.
func WithShots(n int) RunOption {
	return func(o *jobOptions) { o.config["shots"] = n }
}

// WithMethod selects the simulation method, e.g. "statevector".
func WithMethod(method string) RunOption {
	return func(o *jobOptions) { o.config["method"] = method }
}

// WithSeed fixes the simulation seed.
func WithSeed(seed int) RunOption {
	return func(o *jobOptions) { o.config["seed"] = seed }
}

// WithAvoidParallelization asks the worker not to parallelize internally.
func WithAvoidParallelization(v bool) RunOption {
	return func(o *jobOptions) { o.config["avoid_parallelization"] = v }
}

// WithConfigValue sets an arbitrary run configuration key.
func WithConfigValue(key string, value any) RunOption {
	return func(o *jobOptions) { o.config[key] = value }
}

// WithLogger attaches a logger to the Job. The default is a no-op logger, so
// a bare Job emits nothing.
func WithLogger(logger zerolog.Logger) RunOption {
	return func(o *jobOptions) { o.logger = logger }
}

func newJobOptions(spec *JobSpec, opts []RunOption) *jobOptions {
	o := &jobOptions{
		config: map[string]any{
			"shots":                 DefaultShots,
			"method":                DefaultMethod,
			"avoid_parallelization": false,
			"num_clbits":            spec.NumClbits,
			"num_qubits":            spec.NumQubits,
			"seed":                  DefaultSeed,
		},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
