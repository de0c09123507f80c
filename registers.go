// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package vpu

import (
	"fmt"
	"strings"
)

// A Register names an ordered group of classical bit positions within a
// job's measurement output.
type Register struct {
	Name string
	Bits []int
}

// A RegisterLayout is the ordered partition of result bit positions into
// named registers. Declaration order is significant: it defines how flat
// bitstrings returned by a worker are re-segmented into per-register groups.
// Register names must be unique within a layout.
type RegisterLayout []Register

// NumBits returns the total number of classical bits across all registers.
func (l RegisterLayout) NumBits() int {
	n := 0
	for _, r := range l {
		n += len(r.Bits)
	}
	return n
}

// Clone returns an independent copy of the layout.
func (l RegisterLayout) Clone() RegisterLayout {
	if l == nil {
		return nil
	}
	out := make(RegisterLayout, len(l))
	for i, r := range l {
		out[i] = Register{Name: r.Name, Bits: append([]int(nil), r.Bits...)}
	}
	return out
}

// segmented reports whether bitstrings should be re-split for this layout.
// Segmentation only activates when there is more than one register, so a
// single named register never gains a spurious group boundary.
func (l RegisterLayout) segmented() bool {
	return len(l) > 1
}

// segment re-splits a flat bitstring into space-separated groups whose
// lengths equal the register sizes, in declaration order, left to right.
func (l RegisterLayout) segment(bitstring string) (string, error) {
	if !l.segmented() {
		return bitstring, nil
	}
	if len(bitstring) != l.NumBits() {
		return "", fmt.Errorf("%w: bitstring %q has %d bits, layout describes %d",
			ErrUnknownResultShape, bitstring, len(bitstring), l.NumBits())
	}
	groups := make([]string, len(l))
	pos := 0
	for i, r := range l {
		groups[i] = bitstring[pos : pos+len(r.Bits)]
		pos += len(r.Bits)
	}
	return strings.Join(groups, " "), nil
}

// registerWire is the on-the-wire form of one register. Layouts are
// serialized as an ordered array because JSON objects do not preserve key
// order and declaration order drives segmentation.
type registerWire struct {
	Name string `json:"name"`
	Bits []int  `json:"bits"`
}

func (l RegisterLayout) wire() []registerWire {
	out := make([]registerWire, len(l))
	for i, r := range l {
		out[i] = registerWire{Name: r.Name, Bits: r.Bits}
	}
	return out
}
