// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package vpu

import (
	"context"
	"fmt"
	"slices"

	"github.com/gammazero/deque"
)

// EstimateGradient estimates the forward-difference gradient of a scalar
// cost at the given parameter point, re-using a fixed set of existing Jobs
// as the evaluation pool. Components are processed in batches of
// len(jobs): each batch re-parameterizes job i with the point perturbed in
// its i-th pending component, dispatches every update, and only then gathers.
//
// The unperturbed reference value is the same for every finite-difference
// numerator in a sweep, so it is evaluated exactly once: on an idle job
// alongside the last, partial batch when len(at) is not a multiple of
// len(jobs), otherwise in one extra single-job round at the end.
func (s *Scheduler) EstimateGradient(ctx context.Context, jobs []*Job, at []float64, step float64, score ScoreFunc) ([]float64, error) {
	if score == nil {
		panic("score function must be non-nil")
	}
	if step == 0 {
		panic("step must be non-zero")
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("%w: gradient estimation requires at least one job", ErrSizeMismatch)
	}

	k := len(jobs)
	grad := make([]float64, len(at))

	var pending deque.Deque[int]
	for comp := range at {
		pending.PushBack(comp)
	}

	var reference float64
	referenceDone := false

	for pending.Len() > 0 {
		comps := make([]int, 0, min(k, pending.Len()))
		for len(comps) < k && pending.Len() > 0 {
			comps = append(comps, pending.PopFront())
		}

		// Dispatch the whole batch before awaiting anything.
		for i, comp := range comps {
			row := slices.Clone(at)
			row[comp] += step
			if err := jobs[i].UpgradeParameters(ctx, Positional(row)); err != nil {
				return nil, err
			}
		}
		spare := !referenceDone && len(comps) < k
		if spare {
			if err := jobs[len(comps)].UpgradeParameters(ctx, Positional(slices.Clone(at))); err != nil {
				return nil, err
			}
		}

		for i, comp := range comps {
			view, err := jobs[i].Result(ctx)
			if err != nil {
				return nil, err
			}
			v, err := score(view)
			if err != nil {
				return nil, err
			}
			grad[comp] = v
		}
		if spare {
			view, err := jobs[len(comps)].Result(ctx)
			if err != nil {
				return nil, err
			}
			v, err := score(view)
			if err != nil {
				return nil, err
			}
			reference = v
			referenceDone = true
		}
	}

	if !referenceDone {
		if err := jobs[0].UpgradeParameters(ctx, Positional(slices.Clone(at))); err != nil {
			return nil, err
		}
		view, err := jobs[0].Result(ctx)
		if err != nil {
			return nil, err
		}
		v, err := score(view)
		if err != nil {
			return nil, err
		}
		reference = v
	}

	for i := range grad {
		grad[i] = (grad[i] - reference) / step
	}
	s.logger.Debug().Int("components", len(at)).Int("jobs", k).Msg("gradient sweep complete")
	return grad, nil
}
