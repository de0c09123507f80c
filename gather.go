// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package vpu

import (
	"context"
)

// Gather is a deterministic fan-in barrier over a set of Jobs. It blocks on
// each [Job.Result] in input order and returns the views in that same order,
// regardless of completion order on the transport side. The serial waits are
// only a collection order: each underlying future may already be progressing
// concurrently on its worker.
//
// A single failing Job aborts the whole call; no partial recovery is
// attempted.
func Gather(ctx context.Context, jobs []*Job) ([]*ResultView, error) {
	views := make([]*ResultView, len(jobs))
	for i, j := range jobs {
		view, err := j.Result(ctx)
		if err != nil {
			return nil, err
		}
		views[i] = view
	}
	return views, nil
}

// GatherOne is the single-job short circuit: a direct [Job.Result] read.
func GatherOne(ctx context.Context, job *Job) (*ResultView, error) {
	return job.Result(ctx)
}
