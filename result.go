// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package vpu

import (
	"fmt"
	"math/cmplx"
)

// A ResultView normalizes a raw result payload into canonical counts, timing,
// and saved-state views. Workers built on different simulation backends
// return differently shaped payloads; ResultView hides the differences behind
// one accessor set.
//
// Two payload families are recognized: a nested family that wraps per-circuit
// data as results[0].data, and a flat family with top-level keys. Resolution
// always prefers the nested shape.
type ResultView struct {
	raw    map[string]any
	jobID  string
	layout RegisterLayout
}

// NewResultView constructs a view over a decoded result payload. It fails
// fast: an empty payload is [ErrEmptyResult] and a payload carrying an
// explicit error marker is [ErrSimulationFailed], both reported here rather
// than deferred to first property access.
func NewResultView(raw map[string]any, jobID string, layout RegisterLayout) (*ResultView, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: job %s", ErrEmptyResult, jobID)
	}
	for _, key := range []string{"ERROR", "error"} {
		if msg, ok := raw[key]; ok {
			return nil, fmt.Errorf("%w: job %s: %v", ErrSimulationFailed, jobID, msg)
		}
	}
	return &ResultView{raw: raw, jobID: jobID, layout: layout}, nil
}

// JobID returns the identifier of the job this result belongs to.
func (r *ResultView) JobID() string {
	return r.jobID
}

// firstResult returns results[0] for the nested payload family, or nil.
func (r *ResultView) firstResult() map[string]any {
	results, ok := r.raw["results"].([]any)
	if !ok || len(results) == 0 {
		return nil
	}
	first, _ := results[0].(map[string]any)
	return first
}

// data returns the per-circuit data map, preferring the nested family.
func (r *ResultView) data() map[string]any {
	if first := r.firstResult(); first != nil {
		if d, ok := first["data"].(map[string]any); ok {
			return d
		}
		return nil
	}
	d, _ := r.raw["data"].(map[string]any)
	return d
}

// Counts returns measurement counts keyed by bitstring. When the register
// layout has more than one register, every bitstring is re-split into
// space-separated groups whose lengths equal the register sizes in
// declaration order; with zero or one register, counts pass through
// unmodified. A payload with neither recognized counts shape fails with
// [ErrUnknownResultShape].
func (r *ResultView) Counts() (map[string]int, error) {
	var rawCounts any
	if d := r.data(); d != nil {
		rawCounts = d["counts"]
	}
	if rawCounts == nil {
		rawCounts = r.raw["counts"]
	}
	countsMap, ok := rawCounts.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: job %s: no counts in payload", ErrUnknownResultShape, r.jobID)
	}

	counts := make(map[string]int, len(countsMap))
	for bitstring, v := range countsMap {
		n, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("%w: job %s: count for %q is not numeric", ErrUnknownResultShape, r.jobID, bitstring)
		}
		key, err := r.layout.segment(bitstring)
		if err != nil {
			return nil, err
		}
		counts[key] = int(n)
	}
	return counts, nil
}

// TimeTaken returns the worker-reported execution time in seconds, resolved
// with the same nested-before-flat order as [ResultView.Counts].
func (r *ResultView) TimeTaken() (float64, error) {
	if first := r.firstResult(); first != nil {
		if t, ok := first["time_taken"].(float64); ok {
			return t, nil
		}
	}
	if t, ok := r.raw["time_taken"].(float64); ok {
		return t, nil
	}
	return 0, fmt.Errorf("%w: job %s: no time_taken in payload", ErrUnknownResultShape, r.jobID)
}

// A Statevector is a saved pure state, one amplitude per basis state.
type Statevector []complex128

// A DensityMatrix is a saved mixed state.
type DensityMatrix [][]complex128

// savedStates collects the saved states of the given kind, keyed by label.
// A bare array is a single anonymous save and is keyed by the kind name; an
// object holds one save per label. Returns nil when the payload carries no
// save-state marker of this kind.
func (r *ResultView) savedStates(kind string) map[string]any {
	d := r.data()
	if d == nil {
		return nil
	}
	switch v := d[kind].(type) {
	case nil:
		return nil
	case map[string]any:
		return v
	default:
		return map[string]any{kind: v}
	}
}

// HasStatevector reports whether the payload carries at least one saved
// statevector. Use this capability query instead of probing by access.
func (r *ResultView) HasStatevector() bool {
	return r.savedStates("statevector") != nil
}

// HasDensityMatrix reports whether the payload carries at least one saved
// density matrix.
func (r *ResultView) HasDensityMatrix() bool {
	return r.savedStates("density_matrix") != nil
}

// Statevectors returns all saved statevectors keyed by label. Absence fails
// with [ErrStateNotAvailable]; callers that want frequency-based
// probabilities should check [ResultView.HasStatevector] and fall back to
// counts-derived estimates.
func (r *ResultView) Statevectors() (map[string]Statevector, error) {
	states := r.savedStates("statevector")
	if states == nil {
		return nil, fmt.Errorf("%w: job %s: no saved statevector", ErrStateNotAvailable, r.jobID)
	}
	out := make(map[string]Statevector, len(states))
	for label, v := range states {
		sv, err := parseStatevector(v)
		if err != nil {
			return nil, fmt.Errorf("job %s: statevector %q: %w", r.jobID, label, err)
		}
		out[label] = sv
	}
	return out, nil
}

// Statevector returns the single saved statevector, collapsing the label
// mapping when exactly one save exists. With multiple saves it fails and the
// caller must use [ResultView.Statevectors] instead.
func (r *ResultView) Statevector() (Statevector, error) {
	states, err := r.Statevectors()
	if err != nil {
		return nil, err
	}
	if len(states) != 1 {
		return nil, fmt.Errorf("job %s: %d saved statevectors, use Statevectors", r.jobID, len(states))
	}
	for _, sv := range states {
		return sv, nil
	}
	panic("unreachable")
}

// DensityMatrices returns all saved density matrices keyed by label.
func (r *ResultView) DensityMatrices() (map[string]DensityMatrix, error) {
	states := r.savedStates("density_matrix")
	if states == nil {
		return nil, fmt.Errorf("%w: job %s: no saved density matrix", ErrStateNotAvailable, r.jobID)
	}
	out := make(map[string]DensityMatrix, len(states))
	for label, v := range states {
		dm, err := parseDensityMatrix(v)
		if err != nil {
			return nil, fmt.Errorf("job %s: density matrix %q: %w", r.jobID, label, err)
		}
		out[label] = dm
	}
	return out, nil
}

// DensityMatrix returns the single saved density matrix, collapsing the
// label mapping when exactly one save exists.
func (r *ResultView) DensityMatrix() (DensityMatrix, error) {
	states, err := r.DensityMatrices()
	if err != nil {
		return nil, err
	}
	if len(states) != 1 {
		return nil, fmt.Errorf("job %s: %d saved density matrices, use DensityMatrices", r.jobID, len(states))
	}
	for _, dm := range states {
		return dm, nil
	}
	panic("unreachable")
}

// Probabilities derives basis-state probabilities keyed by bitstring. It is a
// pure function over the other views and prefers exact sources: a saved
// statevector first, then a saved density matrix diagonal, then shot-count
// frequencies. Entries with zero probability are omitted.
func (r *ResultView) Probabilities() (map[string]float64, error) {
	switch {
	case r.HasStatevector():
		sv, err := r.Statevector()
		if err != nil {
			return nil, err
		}
		probs := make(map[string]float64)
		width := bitWidth(len(sv))
		for i, amp := range sv {
			if p := real(amp)*real(amp) + imag(amp)*imag(amp); p > 0 {
				probs[fmt.Sprintf("%0*b", width, i)] = p
			}
		}
		return probs, nil

	case r.HasDensityMatrix():
		dm, err := r.DensityMatrix()
		if err != nil {
			return nil, err
		}
		probs := make(map[string]float64)
		width := bitWidth(len(dm))
		for i, row := range dm {
			if i >= len(row) {
				return nil, fmt.Errorf("job %s: density matrix is not square", r.jobID)
			}
			if p := real(row[i]); p > 0 {
				probs[fmt.Sprintf("%0*b", width, i)] = p
			}
		}
		return probs, nil

	default:
		counts, err := r.Counts()
		if err != nil {
			return nil, err
		}
		total := 0
		for _, n := range counts {
			total += n
		}
		probs := make(map[string]float64, len(counts))
		for bitstring, n := range counts {
			if n > 0 {
				probs[bitstring] = float64(n) / float64(total)
			}
		}
		return probs, nil
	}
}

func bitWidth(dim int) int {
	width := 0
	for 1<<width < dim {
		width++
	}
	return width
}

// parseComplex accepts either a plain number (a real amplitude) or a
// two-element [re, im] array.
func parseComplex(v any) (complex128, error) {
	switch c := v.(type) {
	case float64:
		return complex(c, 0), nil
	case []any:
		if len(c) != 2 {
			return 0, fmt.Errorf("complex value has %d elements", len(c))
		}
		re, okRe := c[0].(float64)
		im, okIm := c[1].(float64)
		if !okRe || !okIm {
			return 0, fmt.Errorf("complex value elements are not numeric")
		}
		return complex(re, im), nil
	default:
		return 0, fmt.Errorf("unsupported amplitude encoding %T", v)
	}
}

func parseStatevector(v any) (Statevector, error) {
	amps, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("statevector is not an array")
	}
	sv := make(Statevector, len(amps))
	for i, a := range amps {
		c, err := parseComplex(a)
		if err != nil {
			return nil, err
		}
		if cmplx.IsNaN(c) {
			return nil, fmt.Errorf("amplitude %d is NaN", i)
		}
		sv[i] = c
	}
	return sv, nil
}

func parseDensityMatrix(v any) (DensityMatrix, error) {
	rows, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("density matrix is not an array")
	}
	dm := make(DensityMatrix, len(rows))
	for i, rowAny := range rows {
		row, ok := rowAny.([]any)
		if !ok {
			return nil, fmt.Errorf("density matrix row %d is not an array", i)
		}
		dm[i] = make([]complex128, len(row))
		for k, a := range row {
			c, err := parseComplex(a)
			if err != nil {
				return nil, err
			}
			dm[i][k] = c
		}
	}
	return dm, nil
}
