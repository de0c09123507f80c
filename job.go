// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package vpu

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// A JobSpec is the job description produced by the circuit collaborator. The
// instruction payload is opaque to this package; everything else is metadata
// needed for submission and result segmentation.
type JobSpec struct {
	ID                 string
	ClassicalRegisters RegisterLayout
	NumClbits          int
	NumQubits          int
	Instructions       json.RawMessage
	SendingTo          string
	IsDynamic          bool
	Params             []*ParamExpr
}

// JobState identifies where a [Job] is in its submission/result cycle.
type JobState int

const (
	StateCreated JobState = iota
	StateSubmitted
	StateResultCached
	StateStaleAfterUpdate
)

func (s JobState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateSubmitted:
		return "submitted"
	case StateResultCached:
		return "result-cached"
	case StateStaleAfterUpdate:
		return "stale-after-update"
	default:
		return fmt.Sprintf("JobState(%d)", int(s))
	}
}

// A Job owns one job description bound to exactly one remote worker
// connection. It manages at most one outstanding submission future at a time
// and exposes in-place parameter re-binding, so the same Job can be executed
// many times with different parameter values.
//
// A Job must be created with [NewJob]. Jobs are not safe for concurrent use:
// the caller drives each Job from a single goroutine, and all true
// concurrency lives behind the transport. There is no terminal state; a Job
// is reusable for the life of its worker, and worker teardown is an external
// concern.
type Job struct {
	transport Transport
	device    Device
	id        string
	layout    RegisterLayout
	instrs    json.RawMessage
	params    []*ParamExpr
	config    map[string]any
	logger    zerolog.Logger

	pending Future
	cached  *ResultView
	stale   bool // cached does not reflect the most recent submission
}

// NewJob creates a Job from a job description and a worker. A blank spec ID
// is replaced with a fresh UUID. The run configuration starts from the
// package defaults plus the spec's qubit/clbit counts, with any supplied
// options merged over it.
func NewJob(spec JobSpec, worker *Worker, opts ...RunOption) *Job {
	if worker == nil || worker.Transport == nil {
		panic("worker and its transport must be non-nil")
	}
	o := newJobOptions(&spec, opts)
	id := spec.ID
	if id == "" {
		id = uuid.NewString()
	}
	return &Job{
		transport: worker.Transport,
		device:    worker.Device,
		id:        id,
		layout:    spec.ClassicalRegisters.Clone(),
		instrs:    spec.Instructions,
		params:    spec.Params,
		config:    o.config,
		logger:    o.logger.With().Str("job_id", id).Str("device", worker.Device.Name).Logger(),
	}
}

// ID returns the job identifier used on the wire.
func (j *Job) ID() string {
	return j.id
}

// Device returns the metadata of the worker this Job is bound to.
func (j *Job) Device() Device {
	return j.device
}

// Params returns the Job's live parameter sequence. Mutating the returned
// expressions affects subsequent submissions.
func (j *Job) Params() []*ParamExpr {
	return j.params
}

// State reports the Job's position in the submission/result cycle.
func (j *Job) State() JobState {
	switch {
	case j.pending == nil && j.cached == nil:
		return StateCreated
	case j.cached == nil:
		return StateSubmitted
	case j.stale:
		return StateStaleAfterUpdate
	default:
		return StateResultCached
	}
}

// Outbound wire shapes.
type jobMessage struct {
	JobID              string          `json:"job_id"`
	Config             map[string]any  `json:"config"`
	Instructions       json.RawMessage `json:"instructions"`
	ClassicalRegisters []registerWire  `json:"classical_registers"`
	Params             []float64       `json:"params,omitempty"`
}

type updateMessage struct {
	Params any `json:"params"`
}

// Submit serializes the full job description and sends it to the worker,
// leaving the returned future outstanding until the next [Job.Result] read.
// If values is non-nil, the parameters are re-bound first.
//
// Submitting while a previous submission is still outstanding is a non-fatal
// no-op: it is logged as a warning and ignored rather than raised, preserving
// the at-most-one-outstanding-future invariant without surprising a caller
// mid-loop. Submitting with any never-bound parameter fails with
// [ErrUnboundParameter].
func (j *Job) Submit(ctx context.Context, values Bindings) error {
	if j.pending != nil {
		j.logger.Warn().Msg("submit ignored: a submission is already outstanding")
		return nil
	}
	if values != nil {
		if err := values.apply(j.params); err != nil {
			return err
		}
	}

	concrete := make([]float64, len(j.params))
	for i, p := range j.params {
		v, err := p.Value()
		if err != nil {
			return err
		}
		concrete[i] = v
	}

	payload, err := json.Marshal(jobMessage{
		JobID:              j.id,
		Config:             j.config,
		Instructions:       j.instrs,
		ClassicalRegisters: j.layout.wire(),
		Params:             concrete,
	})
	if err != nil {
		return fmt.Errorf("encode job message: %w", err)
	}

	fut, err := j.transport.SendJob(ctx, payload)
	if err != nil {
		return err
	}
	j.pending = fut
	if j.cached != nil {
		j.stale = true
	}
	j.logger.Debug().Msg("job submitted")
	return nil
}

// Result returns the normalized view of the most recent submission's result.
// The first read after a fresh submission blocks on the outstanding future;
// repeated reads return the cached view without touching the transport
// again. Reading a Job that has never been submitted fails with
// [ErrNoSubmission].
func (j *Job) Result(ctx context.Context) (*ResultView, error) {
	if j.cached != nil && !j.stale {
		return j.cached, nil
	}
	if j.pending == nil {
		return nil, fmt.Errorf("%w: job %s", ErrNoSubmission, j.id)
	}

	payload, err := j.pending.Get(ctx)
	if err != nil {
		return nil, err
	}
	j.pending = nil

	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: job %s", ErrEmptyResult, j.id)
	}
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("decode result payload for job %s: %w", j.id, err)
	}
	view, err := NewResultView(raw, j.id, j.layout)
	if err != nil {
		return nil, err
	}
	j.cached = view
	j.stale = false
	return view, nil
}

// UpgradeParameters re-binds the Job's parameters and sends a compact
// parameters-only update to the worker instead of a full re-submission.
//
// If a previous result has not yet been retrieved, it is first drained with a
// blocking read and discarded. The drain is mandatory: most remote workers
// accept exactly one outstanding job and will refuse a new payload while a
// prior result is unread. The next [Job.Result] read always re-fetches.
func (j *Job) UpgradeParameters(ctx context.Context, values Bindings) error {
	if values == nil {
		panic("bindings must be non-nil")
	}
	if j.pending != nil {
		if _, err := j.pending.Get(ctx); err != nil {
			return err
		}
		j.pending = nil
		j.logger.Debug().Msg("drained unread result before parameter update")
	}

	if err := values.apply(j.params); err != nil {
		return err
	}

	payload, err := json.Marshal(updateMessage{Params: values.wire()})
	if err != nil {
		return fmt.Errorf("encode update message: %w", err)
	}
	fut, err := j.transport.SendUpdate(ctx, payload)
	if err != nil {
		return err
	}
	j.pending = fut
	j.stale = true
	return nil
}
