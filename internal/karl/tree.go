// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package karl

import (
	"strings"

	"github.com/jredmondson/madara-sub009/internal/knowledge"
)

// EvalSettings carries the UpdateSettings applied to any assignment
// reached during evaluation, plus engine-wide formatting/compat knobs
// that the original source kept as process-global state (§9 "Global
// mutable state" — re-architected here as explicit, passed-in options).
type EvalSettings struct {
	knowledge.UpdateSettings
	LegacyTruthiness bool
	ArrayDelimiter   string
	Precision        int
	Fixed            bool
	Scientific       bool
}

// DefaultEvalSettings matches DefaultUpdateSettings with non-legacy
// truthiness and a comma array delimiter.
func DefaultEvalSettings() EvalSettings {
	return EvalSettings{
		UpdateSettings: knowledge.DefaultUpdateSettings(),
		ArrayDelimiter: ",",
	}
}

func (s EvalSettings) referenceSettings() knowledge.ReferenceSettings {
	return knowledge.ReferenceSettings{ExpandVariables: s.ExpandVariables}
}

// Node is one ExprTree element. CanChange reports whether re-evaluating
// this node could yield a different Record (assignments, variable
// reads, and system calls always can; pruned constant subtrees cannot).
type Node interface {
	CanChange() bool
	Prune() Node
	Evaluate(ctx *knowledge.Context, s EvalSettings) (knowledge.Value, error)
}

// Assignable is implemented by LValue-capable nodes (Variable, Index).
type Assignable interface {
	Node
	assign(ctx *knowledge.Context, v knowledge.Value, s EvalSettings) (knowledge.Value, error)
}

// Leaf is a constant folded-in Record; it never changes.
type Leaf struct {
	Value knowledge.Value
}

func (n *Leaf) CanChange() bool { return false }
func (n *Leaf) Prune() Node     { return n }
func (n *Leaf) Evaluate(*knowledge.Context, EvalSettings) (knowledge.Value, error) {
	return n.Value, nil
}

// Variable is a lazy reference into the Context by (possibly
// brace-expanding) name.
type Variable struct {
	Name string
	// ExpandEachEvaluation distinguishes "always re-expand braces" from
	// "expand once and cache the resolved key", carried over from
	// original_source's Variable_Node.h expand_variable flag.
	ExpandEachEvaluation bool

	resolvedOnce bool
	resolvedName string
}

func (n *Variable) CanChange() bool { return true }
func (n *Variable) Prune() Node     { return n }

func (n *Variable) effectiveName(ctx *knowledge.Context, s EvalSettings) string {
	if !n.ExpandEachEvaluation && n.resolvedOnce {
		return n.resolvedName
	}
	name := n.Name
	if !n.ExpandEachEvaluation && s.ExpandVariables && strings.ContainsRune(name, '{') {
		if expanded, err := ctx.ExpandStatement(name); err == nil {
			name = expanded
		}
	}
	n.resolvedName = name
	n.resolvedOnce = true
	return name
}

func (n *Variable) Evaluate(ctx *knowledge.Context, s EvalSettings) (knowledge.Value, error) {
	return ctx.Get(n.effectiveName(ctx, s), s.referenceSettings()), nil
}

func (n *Variable) assign(ctx *knowledge.Context, v knowledge.Value, s EvalSettings) (knowledge.Value, error) {
	if _, err := ctx.Set(n.effectiveName(ctx, s), v, s.UpdateSettings); err != nil {
		return knowledge.ZeroInteger, err
	}
	return v, nil
}

// Index is an ArrayReference: Base[Idx].
type Index struct {
	Base Assignable
	Idx  Node
}

func (n *Index) CanChange() bool { return true }
func (n *Index) Prune() Node {
	n.Idx = n.Idx.Prune()
	return n
}

func (n *Index) Evaluate(ctx *knowledge.Context, s EvalSettings) (knowledge.Value, error) {
	base, err := n.Base.Evaluate(ctx, s)
	if err != nil {
		return knowledge.ZeroInteger, err
	}
	idxVal, err := n.Idx.Evaluate(ctx, s)
	if err != nil {
		return knowledge.ZeroInteger, err
	}
	i := idxVal.AsInteger()

	switch base.Kind() {
	case knowledge.KindIntegerArray:
		arr := base.IntegerArray()
		if i < 0 || int(i) >= len(arr) {
			return knowledge.ZeroInteger, nil
		}
		return knowledge.NewInteger(arr[i]), nil
	case knowledge.KindDoubleArray:
		arr := base.DoubleArray()
		if i < 0 || int(i) >= len(arr) {
			return knowledge.ZeroDouble, nil
		}
		return knowledge.NewDouble(arr[i]), nil
	default:
		return knowledge.ZeroInteger, nil
	}
}

func (n *Index) assign(ctx *knowledge.Context, v knowledge.Value, s EvalSettings) (knowledge.Value, error) {
	base, err := n.Base.Evaluate(ctx, s)
	if err != nil {
		return knowledge.ZeroInteger, err
	}
	idxVal, err := n.Idx.Evaluate(ctx, s)
	if err != nil {
		return knowledge.ZeroInteger, err
	}
	i := int(idxVal.AsInteger())

	switch base.Kind() {
	case knowledge.KindDoubleArray:
		arr := append([]float64(nil), base.DoubleArray()...)
		for len(arr) <= i {
			arr = append(arr, 0)
		}
		if i >= 0 {
			arr[i] = v.AsDouble()
		}
		if _, err := n.Base.assign(ctx, knowledge.NewDoubleArray(arr), s); err != nil {
			return knowledge.ZeroInteger, err
		}
		return v, nil
	default:
		arr := append([]int64(nil), base.IntegerArray()...)
		for len(arr) <= i {
			arr = append(arr, 0)
		}
		if i >= 0 {
			arr[i] = v.AsInteger()
		}
		if _, err := n.Base.assign(ctx, knowledge.NewIntegerArray(arr), s); err != nil {
			return knowledge.ZeroInteger, err
		}
		return v, nil
	}
}

// Call is a registered-function invocation: name(args...).
type Call struct {
	Name string
	Args []Node
}

func (n *Call) CanChange() bool { return true }
func (n *Call) Prune() Node {
	for i, a := range n.Args {
		n.Args[i] = a.Prune()
	}
	return n
}

func (n *Call) Evaluate(ctx *knowledge.Context, s EvalSettings) (knowledge.Value, error) {
	fn, ok := ctx.LookupFunction(n.Name)
	if !ok {
		return knowledge.ZeroInteger, &KarlException{NodeKind: "call", Message: "unregistered function " + n.Name}
	}
	args := make([]knowledge.Value, len(n.Args))
	for i, a := range n.Args {
		v, err := a.Evaluate(ctx, s)
		if err != nil {
			return knowledge.ZeroInteger, err
		}
		args[i] = v
	}
	return fn(ctx, args)
}

// Unary covers !, unary -, and pre/post ++/--.
type Unary struct {
	Op    string // "!", "-", "++pre", "--pre", "++post", "--post"
	Child Node
}

func (n *Unary) CanChange() bool {
	switch n.Op {
	case "++pre", "--pre", "++post", "--post":
		return true
	}
	return n.Child.CanChange()
}

func (n *Unary) Prune() Node {
	n.Child = n.Child.Prune()
	if !n.Child.CanChange() {
		if leaf, ok := n.Child.(*Leaf); ok {
			switch n.Op {
			case "!":
				if leaf.Value.Truthy(false) {
					return &Leaf{Value: knowledge.NewInteger(0)}
				}
				return &Leaf{Value: knowledge.NewInteger(1)}
			case "-":
				if leaf.Value.Kind() == knowledge.KindDouble {
					return &Leaf{Value: knowledge.NewDouble(-leaf.Value.AsDouble())}
				}
				return &Leaf{Value: knowledge.NewInteger(-leaf.Value.AsInteger())}
			}
		}
	}
	return n
}

func (n *Unary) Evaluate(ctx *knowledge.Context, s EvalSettings) (knowledge.Value, error) {
	switch n.Op {
	case "++pre", "--pre", "++post", "--post":
		target, ok := n.Child.(Assignable)
		if !ok {
			return knowledge.ZeroInteger, &KarlException{NodeKind: "unary", Message: "++/-- requires an assignable operand"}
		}
		cur, err := n.Child.Evaluate(ctx, s)
		if err != nil {
			return knowledge.ZeroInteger, err
		}
		delta := int64(1)
		if n.Op == "--pre" || n.Op == "--post" {
			delta = -1
		}
		next := addValues(cur, knowledge.NewInteger(delta))
		if _, err := target.assign(ctx, next, s); err != nil {
			return knowledge.ZeroInteger, err
		}
		if n.Op == "++post" || n.Op == "--post" {
			return cur, nil
		}
		return next, nil
	}

	v, err := n.Child.Evaluate(ctx, s)
	if err != nil {
		return knowledge.ZeroInteger, err
	}
	switch n.Op {
	case "!":
		if v.Truthy(s.LegacyTruthiness) {
			return knowledge.NewInteger(0), nil
		}
		return knowledge.NewInteger(1), nil
	case "-":
		if v.Kind() == knowledge.KindDouble {
			return knowledge.NewDouble(-v.AsDouble()), nil
		}
		return knowledge.NewInteger(-v.AsInteger()), nil
	}
	return knowledge.ZeroInteger, &KarlException{NodeKind: "unary", Message: "unknown unary operator " + n.Op}
}

// Binary covers arithmetic, comparison, logical, assignment and implies.
type Binary struct {
	Op          string
	Left, Right Node
}

func (n *Binary) CanChange() bool {
	if n.Op == "=" {
		return true
	}
	return n.Left.CanChange() || n.Right.CanChange()
}

func (n *Binary) Prune() Node {
	n.Left = n.Left.Prune()
	n.Right = n.Right.Prune()
	if n.CanChange() {
		return n
	}
	lLeaf, lok := n.Left.(*Leaf)
	rLeaf, rok := n.Right.(*Leaf)
	if !lok || !rok {
		return n
	}
	v, err := evalBinaryLeaf(n.Op, lLeaf.Value, rLeaf.Value, DefaultEvalSettings())
	if err != nil {
		return n
	}
	return &Leaf{Value: v}
}

func (n *Binary) Evaluate(ctx *knowledge.Context, s EvalSettings) (knowledge.Value, error) {
	switch n.Op {
	case "&&":
		l, err := n.Left.Evaluate(ctx, s)
		if err != nil {
			return knowledge.ZeroInteger, err
		}
		if !l.Truthy(s.LegacyTruthiness) {
			return knowledge.NewInteger(0), nil
		}
		r, err := n.Right.Evaluate(ctx, s)
		if err != nil {
			return knowledge.ZeroInteger, err
		}
		if r.Truthy(s.LegacyTruthiness) {
			return knowledge.NewInteger(1), nil
		}
		return knowledge.NewInteger(0), nil
	case "||":
		l, err := n.Left.Evaluate(ctx, s)
		if err != nil {
			return knowledge.ZeroInteger, err
		}
		if l.Truthy(s.LegacyTruthiness) {
			return knowledge.NewInteger(1), nil
		}
		r, err := n.Right.Evaluate(ctx, s)
		if err != nil {
			return knowledge.ZeroInteger, err
		}
		if r.Truthy(s.LegacyTruthiness) {
			return knowledge.NewInteger(1), nil
		}
		return knowledge.NewInteger(0), nil
	case "=>":
		l, err := n.Left.Evaluate(ctx, s)
		if err != nil {
			return knowledge.ZeroInteger, err
		}
		if l.Truthy(s.LegacyTruthiness) {
			if _, err := n.Right.Evaluate(ctx, s); err != nil {
				return knowledge.ZeroInteger, err
			}
		}
		return l, nil
	case "=":
		target, ok := n.Left.(Assignable)
		if !ok {
			return knowledge.ZeroInteger, &KarlException{NodeKind: "binary", Message: "left side of = is not assignable"}
		}
		r, err := n.Right.Evaluate(ctx, s)
		if err != nil {
			return knowledge.ZeroInteger, err
		}
		return target.assign(ctx, r, s)
	}

	l, err := n.Left.Evaluate(ctx, s)
	if err != nil {
		return knowledge.ZeroInteger, err
	}
	r, err := n.Right.Evaluate(ctx, s)
	if err != nil {
		return knowledge.ZeroInteger, err
	}
	return evalBinaryLeaf(n.Op, l, r, s)
}

func evalBinaryLeaf(op string, l, r knowledge.Value, s EvalSettings) (knowledge.Value, error) {
	switch op {
	case "+":
		if l.Kind() == knowledge.KindString || r.Kind() == knowledge.KindString {
			return knowledge.NewString(l.AsString(s.ArrayDelimiter) + r.AsString(s.ArrayDelimiter)), nil
		}
		return addValues(l, r), nil
	case "-":
		return arith(l, r, func(a, b int64) int64 { return a - b }, func(a, b float64) float64 { return a - b }), nil
	case "*":
		return arith(l, r, func(a, b int64) int64 { return a * b }, func(a, b float64) float64 { return a * b }), nil
	case "/":
		if isDouble(l) || isDouble(r) {
			if r.AsDouble() == 0 {
				return knowledge.NewString("Division by Zero"), nil
			}
			return knowledge.NewDouble(l.AsDouble() / r.AsDouble()), nil
		}
		if r.AsInteger() == 0 {
			return knowledge.NewString("Division by Zero"), nil
		}
		return knowledge.NewInteger(l.AsInteger() / r.AsInteger()), nil
	case "%":
		if r.AsInteger() == 0 {
			return knowledge.NewString("Division by Zero"), nil
		}
		return knowledge.NewInteger(l.AsInteger() % r.AsInteger()), nil
	case "==":
		return boolValue(compareValues(l, r) == 0), nil
	case "!=":
		return boolValue(compareValues(l, r) != 0), nil
	case "<":
		return boolValue(compareValues(l, r) < 0), nil
	case "<=":
		return boolValue(compareValues(l, r) <= 0), nil
	case ">":
		return boolValue(compareValues(l, r) > 0), nil
	case ">=":
		return boolValue(compareValues(l, r) >= 0), nil
	}
	return knowledge.ZeroInteger, &KarlException{NodeKind: "binary", Message: "unknown operator " + op}
}

func isDouble(v knowledge.Value) bool { return v.Kind() == knowledge.KindDouble }

func addValues(l, r knowledge.Value) knowledge.Value {
	return arith(l, r, func(a, b int64) int64 { return a + b }, func(a, b float64) float64 { return a + b })
}

func arith(l, r knowledge.Value, iop func(a, b int64) int64, dop func(a, b float64) float64) knowledge.Value {
	if isDouble(l) || isDouble(r) {
		return knowledge.NewDouble(dop(l.AsDouble(), r.AsDouble()))
	}
	return knowledge.NewInteger(iop(l.AsInteger(), r.AsInteger()))
}

func compareValues(l, r knowledge.Value) int {
	if l.Kind() == knowledge.KindString || r.Kind() == knowledge.KindString {
		return strings.Compare(l.AsString(""), r.AsString(""))
	}
	a, b := l.AsDouble(), r.AsDouble()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func boolValue(b bool) knowledge.Value {
	if b {
		return knowledge.NewInteger(1)
	}
	return knowledge.NewInteger(0)
}

// maxValue implements ';' sequence semantics: "evaluates all, returns
// the max (so zero values 'short' the sequence)".
func maxValue(l, r knowledge.Value) knowledge.Value {
	if compareValues(l, r) >= 0 {
		return l
	}
	return r
}

// Ternary covers the n-ary sequence constructs ("both" = max of all
// children, "return_right" = last child) and the variadic const-array
// literal constructor.
type Ternary struct {
	Kind     string // "both", "return_right", "const_array"
	Children []Node
}

func (n *Ternary) CanChange() bool {
	for _, c := range n.Children {
		if c.CanChange() {
			return true
		}
	}
	return false
}

func (n *Ternary) Prune() Node {
	for i, c := range n.Children {
		n.Children[i] = c.Prune()
	}
	return n
}

func (n *Ternary) Evaluate(ctx *knowledge.Context, s EvalSettings) (knowledge.Value, error) {
	switch n.Kind {
	case "const_array":
		ints := make([]int64, 0, len(n.Children))
		doubles := make([]float64, 0, len(n.Children))
		allInt := true
		for _, c := range n.Children {
			v, err := c.Evaluate(ctx, s)
			if err != nil {
				return knowledge.ZeroInteger, err
			}
			if v.Kind() == knowledge.KindDouble {
				allInt = false
			}
			ints = append(ints, v.AsInteger())
			doubles = append(doubles, v.AsDouble())
		}
		if allInt {
			return knowledge.NewIntegerArray(ints), nil
		}
		return knowledge.NewDoubleArray(doubles), nil
	default:
		var result knowledge.Value = knowledge.ZeroInteger
		for i, c := range n.Children {
			v, err := c.Evaluate(ctx, s)
			if err != nil {
				return knowledge.ZeroInteger, err
			}
			if n.Kind == "both" {
				if i == 0 {
					result = v
				} else {
					result = maxValue(result, v)
				}
			} else { // return_right
				result = v
			}
		}
		return result, nil
	}
}
