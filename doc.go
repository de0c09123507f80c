// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package vpu provides an API for submitting parameterized jobs to remote
// virtual processing units and collecting their results. It separates
// submission from collection so that remote workers can execute concurrently
// while the driver remains a simple single-threaded loop: submit or update a
// batch of jobs, then gather the results in a deterministic order.
//
// The package targets iterative and variational workloads in which the same
// job topology is executed many times with different parameter values. A
// [Job] therefore supports in-place re-binding of its symbolic parameters via
// [Job.UpgradeParameters], which sends a compact parameters-only update to
// the worker instead of re-submitting the full job description. Heterogeneous
// result payloads are normalized by [ResultView] into canonical counts,
// timing, and saved-state views.
//
// All true concurrency lives behind the injected [Transport]: this package
// launches no goroutines and requires no locking. Suspension points are
// exactly the blocking [Future.Get] calls made inside [Job.Result] and the
// drain performed by [Job.UpgradeParameters].
package vpu
