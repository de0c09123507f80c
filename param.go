// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package vpu

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// A ParamExpr is a symbolic scalar parameter: either a bare literal or an
// arithmetic expression over named free variables with deferred evaluation.
// Expressions use HCL syntax, so "theta", "theta * 2", and "(a + b) / 2" are
// all valid sources.
//
// A ParamExpr with no free variables is a pure literal; named evaluation is
// never attempted on it. Expressions are mutated in place by binding
// operations and live as long as their owning [Job]. Use [ParamExpr.Clone]
// when a template's parameter state must not be shared with an assembled
// instance.
type ParamExpr struct {
	src   string
	expr  hclsyntax.Expression // nil for a pure literal
	vars  []string             // sorted free variable names
	bound map[string]cty.Value // named bindings accumulated across Eval calls
	value *float64             // cached scalar, nil until first bound
}

// Literal creates a ParamExpr already bound to the given value.
func Literal(v float64) *ParamExpr {
	return &ParamExpr{
		src:   strconv.FormatFloat(v, 'g', -1, 64),
		value: &v,
	}
}

// Parse creates a ParamExpr from an HCL expression source. A source with no
// variable references is evaluated immediately and becomes a pure literal; a
// source with free variables stays unbound until the first [ParamExpr.Eval]
// or [ParamExpr.AssignValue].
func Parse(src string) (*ParamExpr, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(src), "parameter", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse parameter %q: %w", src, diags)
	}

	var vars []string
	for _, traversal := range expr.Variables() {
		name := traversal.RootName()
		if !slices.Contains(vars, name) {
			vars = append(vars, name)
		}
	}
	slices.Sort(vars)

	p := &ParamExpr{src: src, expr: expr, vars: vars}
	if len(vars) == 0 {
		// Constant expression: fold it now so the ParamExpr behaves as a
		// literal from the start.
		if err := p.evaluate(nil); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Variables returns the free variable names this expression depends on, in
// sorted order. The returned slice is a copy.
func (p *ParamExpr) Variables() []string {
	return slices.Clone(p.vars)
}

// Bound reports whether the parameter has received a value at least once.
func (p *ParamExpr) Bound() bool {
	return p.value != nil
}

// AssignValue force-binds the parameter to a literal value, bypassing any
// symbolic structure. This is the positional binding path.
func (p *ParamExpr) AssignValue(v float64) {
	p.value = &v
}

// Eval recomputes and caches the expression's value using the supplied
// variable bindings, merged over any bindings supplied by earlier Eval
// calls. Every free variable must be covered by the merged context or Eval
// fails with [ErrUnboundParameter]. Eval on a pure literal is a no-op.
func (p *ParamExpr) Eval(bindings map[string]float64) error {
	if len(p.vars) == 0 {
		return nil
	}
	if p.bound == nil {
		p.bound = make(map[string]cty.Value, len(p.vars))
	}
	for name, v := range bindings {
		if slices.Contains(p.vars, name) {
			p.bound[name] = cty.NumberFloatVal(v)
		}
	}
	for _, name := range p.vars {
		if _, ok := p.bound[name]; !ok {
			return fmt.Errorf("%w: %q requires variable %q", ErrUnboundParameter, p.src, name)
		}
	}
	return p.evaluate(&hcl.EvalContext{Variables: p.bound})
}

func (p *ParamExpr) evaluate(evalCtx *hcl.EvalContext) error {
	val, diags := p.expr.Value(evalCtx)
	if diags.HasErrors() {
		return fmt.Errorf("evaluate parameter %q: %w", p.src, diags)
	}
	val, err := convert.Convert(val, cty.Number)
	if err != nil {
		return fmt.Errorf("parameter %q is not numeric: %w", p.src, err)
	}
	f, _ := val.AsBigFloat().Float64()
	p.value = &f
	return nil
}

// Value returns the cached scalar. Reading a parameter that has never been
// bound fails with [ErrUnboundParameter].
func (p *ParamExpr) Value() (float64, error) {
	if p.value == nil {
		return 0, fmt.Errorf("%w: %q has never been bound", ErrUnboundParameter, p.src)
	}
	return *p.value, nil
}

// Clone returns an independent copy with its own binding state, so that
// reuse of a template never cross-contaminates bindings between assembled
// instances.
func (p *ParamExpr) Clone() *ParamExpr {
	out := &ParamExpr{
		src:  p.src,
		expr: p.expr, // expressions are immutable after parse
		vars: slices.Clone(p.vars),
	}
	if p.bound != nil {
		out.bound = make(map[string]cty.Value, len(p.bound))
		for k, v := range p.bound {
			out.bound[k] = v
		}
	}
	if p.value != nil {
		v := *p.value
		out.value = &v
	}
	return out
}

func (p *ParamExpr) String() string {
	return p.src
}

// intersects reports whether any free variable appears in the update.
func (p *ParamExpr) intersects(bindings map[string]float64) bool {
	for _, name := range p.vars {
		if _, ok := bindings[name]; ok {
			return true
		}
	}
	return false
}

func cloneParams(params []*ParamExpr) []*ParamExpr {
	if params == nil {
		return nil
	}
	out := make([]*ParamExpr, len(params))
	for i, p := range params {
		out[i] = p.Clone()
	}
	return out
}

// BindParameters applies a binding onto a parameter sequence in place. [Job]
// invokes it from Submit and UpgradeParameters; it is exported so [Template]
// implementations can use the same dispatch when substituting a population
// row into their own parameter copies.
func BindParameters(params []*ParamExpr, values Bindings) error {
	return values.apply(params)
}

// Bindings supplies concrete values for a job's parameters, either
// positionally or by variable name. The two implementations are [Positional]
// and [Named]; the interface is sealed.
type Bindings interface {
	// apply binds the values onto the given parameter sequence in place.
	apply(params []*ParamExpr) error
	// wire returns the value in the shape used by update messages.
	wire() any
}

// Positional binds one value per parameter, in parameter order. The value
// count must equal the parameter count exactly.
type Positional []float64

func (v Positional) apply(params []*ParamExpr) error {
	if len(v) != len(params) {
		return fmt.Errorf("%w: %d values for %d parameters", ErrParameterCount, len(v), len(params))
	}
	for i, p := range params {
		p.AssignValue(v[i])
	}
	return nil
}

func (v Positional) wire() any {
	return []float64(v)
}

// Named binds values by free variable name. Parameters whose variables
// intersect the mapping are re-evaluated; parameters untouched by the
// mapping are left alone unless they have never been bound, in which case
// the update fails with [ErrUnboundParameter] rather than silently running
// an unbound circuit. Each parameter is evaluated independently even when
// two expressions name the same variable.
type Named map[string]float64

func (m Named) apply(params []*ParamExpr) error {
	for _, p := range params {
		if p.intersects(m) {
			if err := p.Eval(m); err != nil {
				return err
			}
			continue
		}
		if !p.Bound() {
			return fmt.Errorf("%w: %q not covered by update and never previously bound", ErrUnboundParameter, p.src)
		}
	}
	return nil
}

func (m Named) wire() any {
	return map[string]float64(m)
}
