// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package vpu

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
)

// A Template is the circuit collaborator's view of a reusable job
// description. Describe returns the description with its symbolic parameter
// list; AssignParameters substitutes concrete values and returns a fully
// bound instruction payload for one assembled instance.
type Template interface {
	Describe() JobSpec
	AssignParameters(values Bindings) (json.RawMessage, error)
}

// A Scheduler dispatches parameter populations across a fixed worker pool.
// It supports two batch strategies: 1:1 re-parameterization of an existing
// Job set ([Scheduler.Reparameterize]) and round-robin dispatch of freshly
// assembled jobs ([Scheduler.RoundRobin]), plus a gradient-estimation
// consumer of the first strategy ([Scheduler.EstimateGradient]).
//
// The worker pool comes from an explicitly injected [Directory], constructed
// once per driver run and read-only thereafter. Worker selection never
// consults worker load: the schedule is a pure function of the population and
// worker ordering, so runs are deterministic and reproducible.
type Scheduler struct {
	dir    Directory
	logger zerolog.Logger
}

// A SchedulerOption adjusts ambient wiring of a [Scheduler].
type SchedulerOption func(*Scheduler)

// WithSchedulerLogger attaches a logger to the Scheduler. The default is a
// no-op logger.
func WithSchedulerLogger(logger zerolog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = logger }
}

// NewScheduler creates a Scheduler over the given worker directory.
func NewScheduler(dir Directory, opts ...SchedulerOption) *Scheduler {
	if dir == nil {
		panic("directory must be non-nil")
	}
	s := &Scheduler{dir: dir, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reparameterize re-binds one population row onto each existing Job, gathers
// all results once, and returns the score of each result in input order.
//
// The job and population counts must match exactly; a mismatch fails with
// [ErrSizeMismatch] before any Job is touched, so a failed call has no
// partial side effects. All updates are dispatched before any result is
// awaited, letting the workers execute concurrently.
func (s *Scheduler) Reparameterize(ctx context.Context, jobs []*Job, population []Bindings, score ScoreFunc) ([]float64, error) {
	if score == nil {
		panic("score function must be non-nil")
	}
	if len(jobs) != len(population) {
		return nil, fmt.Errorf("%w: %d jobs for %d population rows", ErrSizeMismatch, len(jobs), len(population))
	}
	for i, j := range jobs {
		if err := j.UpgradeParameters(ctx, population[i]); err != nil {
			return nil, err
		}
	}
	s.logger.Debug().Int("jobs", len(jobs)).Msg("population re-parameterized")
	views, err := Gather(ctx, jobs)
	if err != nil {
		return nil, err
	}
	return applyScores(views, score)
}

// RoundRobin assembles one fresh Job per population row from the template,
// dispatching row i to worker i mod len(workers). Run options are applied
// uniformly to every assembled Job. After all rows are dispatched the jobs
// are gathered once, in dispatch order, and scores are returned in population
// order.
//
// Failures from the template's parameter substitution are wrapped into
// [ErrAssembly] so callers see one error taxonomy instead of the
// collaborator's internal ones. Each assembled job receives its own
// independent copy of the template's parameter state, so template reuse never
// cross-contaminates bindings. An empty worker pool fails with
// [ErrSizeMismatch].
func (s *Scheduler) RoundRobin(ctx context.Context, tmpl Template, population []Bindings, score ScoreFunc, opts ...RunOption) ([]float64, error) {
	if score == nil {
		panic("score function must be non-nil")
	}
	workers := s.dir.Workers()
	if len(workers) == 0 {
		return nil, fmt.Errorf("%w: round-robin dispatch requires at least one worker", ErrSizeMismatch)
	}

	jobs := make([]*Job, len(population))
	for i, row := range population {
		worker := workers[i%len(workers)]

		instrs, err := tmpl.AssignParameters(row)
		if err != nil {
			return nil, fmt.Errorf("%w: population row %d: %v", ErrAssembly, i, err)
		}

		spec := tmpl.Describe()
		spec.ID = "" // each assembled instance gets its own identifier
		spec.Instructions = instrs
		spec.Params = cloneParams(spec.Params)
		if err := row.apply(spec.Params); err != nil {
			return nil, err
		}

		job := NewJob(spec, worker, opts...)
		if err := job.Submit(ctx, nil); err != nil {
			return nil, err
		}
		jobs[i] = job
		s.logger.Debug().
			Str("job_id", job.ID()).
			Str("device", worker.Device.Name).
			Int("row", i).
			Msg("round-robin dispatch")
	}

	views, err := Gather(ctx, jobs)
	if err != nil {
		return nil, err
	}
	return applyScores(views, score)
}

func applyScores(views []*ResultView, score ScoreFunc) ([]float64, error) {
	scores := make([]float64, len(views))
	for i, view := range views {
		v, err := score(view)
		if err != nil {
			return nil, err
		}
		scores[i] = v
	}
	return scores, nil
}
