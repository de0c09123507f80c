// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package vpu

import (
	"context"
)

// A Future is an opaque handle to an in-flight remote computation. Get blocks
// until the remote worker produces a result payload or the context is
// canceled. Cancellation and timeouts are the transport's responsibility;
// this package only assumes that Get eventually returns or fails.
type Future interface {
	Get(ctx context.Context) ([]byte, error)
}

// A Transport performs the actual network calls to one remote worker. It is
// an injected capability: this package never constructs transports and never
// reinterprets their errors.
//
// Most remote workers accept exactly one outstanding job per connection and
// refuse a new payload while a prior result is unread. [Job] preserves that
// contract by draining any outstanding [Future] before sending an update.
type Transport interface {
	// SendJob transmits a full serialized job description and returns a
	// handle to the eventual result.
	SendJob(ctx context.Context, payload []byte) (Future, error)

	// SendUpdate transmits a parameters-only update for a previously
	// submitted job and returns a handle to the new result.
	SendUpdate(ctx context.Context, payload []byte) (Future, error)
}

// Device carries descriptive metadata about a remote worker, as supplied by
// the worker directory. It is informational only: nothing in this package
// branches on its contents.
type Device struct {
	Name   string
	Target string
}

// A Worker pairs a reachable transport with its device metadata. Workers are
// shared read-only across scheduler calls; no Job holds a worker beyond the
// lifetime of one outstanding future.
type Worker struct {
	Device    Device
	Transport Transport
}

// A Directory supplies the ordered pool of reachable workers. It is injected
// into [NewScheduler] explicitly rather than read from ambient process state,
// and is treated as read-only: the returned order defines round-robin
// assignment and must be stable for a schedule to be reproducible.
type Directory interface {
	Workers() []*Worker
}

// StaticDirectory is a fixed, ordered worker pool.
type StaticDirectory []*Worker

func (d StaticDirectory) Workers() []*Worker {
	return d
}
