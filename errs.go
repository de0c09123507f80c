// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package vpu

type constError string

func (e constError) Error() string {
	return string(e)
}

// Binding layer.
const ErrParameterCount = constError("positional value count does not match parameter count")
const ErrUnboundParameter = constError("parameter has unbound variables")

// Job lifecycle.
const ErrNoSubmission = constError("no submission outstanding")

// Result decoding.
const ErrEmptyResult = constError("empty result payload")
const ErrSimulationFailed = constError("simulation failed")
const ErrUnknownResultShape = constError("unknown result shape")
const ErrStateNotAvailable = constError("saved state not available")

// Scheduling.
const ErrSizeMismatch = constError("size mismatch")
const ErrAssembly = constError("job assembly failed")
