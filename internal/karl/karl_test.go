// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package karl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jredmondson/madara-sub009/internal/knowledge"
)

func eval(t *testing.T, ctx *knowledge.Context, src string) knowledge.Value {
	t.Helper()
	expr, err := Compile(src, ctx)
	require.NoError(t, err, "compile %q", src)
	v, err := expr.Evaluate(ctx, DefaultEvalSettings())
	require.NoError(t, err, "evaluate %q", src)
	return v
}

func TestArithmeticCoercion(t *testing.T) {
	ctx := knowledge.Open()
	defer ctx.Close()

	assert.Equal(t, int64(7), eval(t, ctx, "3 + 4").AsInteger())
	assert.Equal(t, 3.5, eval(t, ctx, "1.5 + 2").AsDouble())
	assert.Equal(t, "ab12", eval(t, ctx, `"ab" + 12`).AsString(""))
}

func TestDivisionByZeroYieldsErrorRecord(t *testing.T) {
	ctx := knowledge.Open()
	defer ctx.Close()

	v := eval(t, ctx, "5 / 0")
	assert.Equal(t, "Division by Zero", v.AsString(""))
}

// TestWaitShortCircuit is Scenario S4: with .a=0, .b=1, evaluating
// `.a && (.b = 0 ; .b)` must short-circuit and leave .b unchanged.
func TestWaitShortCircuit(t *testing.T) {
	ctx := knowledge.Open()
	defer ctx.Close()

	_, err := ctx.Set(".a", knowledge.NewInteger(0))
	require.NoError(t, err)
	_, err = ctx.Set(".b", knowledge.NewInteger(1))
	require.NoError(t, err)

	result := eval(t, ctx, ".a && (.b = 0 ; .b)")
	assert.Equal(t, int64(0), result.AsInteger())
	assert.Equal(t, int64(1), ctx.Get(".b").AsInteger(), ".b must be unchanged when && short-circuits")
}

// TestImplies is Scenario S5.
func TestImplies(t *testing.T) {
	ctx := knowledge.Open()
	defer ctx.Close()

	_, err := ctx.Set(".a", knowledge.NewInteger(1))
	require.NoError(t, err)
	_, err = ctx.Set(".b", knowledge.NewInteger(0))
	require.NoError(t, err)

	result := eval(t, ctx, ".a => (.b = 5)")
	assert.Equal(t, int64(1), result.AsInteger())
	assert.Equal(t, int64(5), ctx.Get(".b").AsInteger())

	_, err = ctx.Set(".a", knowledge.NewInteger(0))
	require.NoError(t, err)
	_, err = ctx.Set(".b", knowledge.NewInteger(0))
	require.NoError(t, err)

	eval(t, ctx, ".a => (.b = 5)")
	assert.Equal(t, int64(0), ctx.Get(".b").AsInteger(), ".b must be unchanged when => left is falsy")
}

func TestAssignmentAndVariableReadback(t *testing.T) {
	ctx := knowledge.Open()
	defer ctx.Close()

	eval(t, ctx, ".x = 10")
	assert.Equal(t, int64(10), ctx.Get(".x").AsInteger())

	eval(t, ctx, ".x = .x + 5")
	assert.Equal(t, int64(15), ctx.Get(".x").AsInteger())
}

func TestPrefixAndPostfixIncrement(t *testing.T) {
	ctx := knowledge.Open()
	defer ctx.Close()

	eval(t, ctx, ".n = 5")
	assert.Equal(t, int64(6), eval(t, ctx, "++.n").AsInteger())
	assert.Equal(t, int64(6), eval(t, ctx, ".n++").AsInteger())
	assert.Equal(t, int64(7), ctx.Get(".n").AsInteger())
}

func TestSystemCallSizeAndType(t *testing.T) {
	ctx := knowledge.Open()
	defer ctx.Close()

	eval(t, ctx, `.s = "hello"`)
	assert.Equal(t, int64(5), eval(t, ctx, "#size(.s)").AsInteger())
	assert.Equal(t, "string", eval(t, ctx, "#type(.s)").AsString(""))
}

func TestSystemCallArityErrorAtCompile(t *testing.T) {
	ctx := knowledge.Open()
	defer ctx.Close()

	_, err := Compile("#sqrt(1, 2, 3)", ctx)
	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "arity", ce.Kind)
}

func TestUnknownSystemCallFailsCompile(t *testing.T) {
	_, err := Compile("#not_a_real_builtin(1)", nil)
	require.Error(t, err)
}

func TestCompileIsMemoizedPerContext(t *testing.T) {
	ctx := knowledge.Open()
	defer ctx.Close()

	a, err := Compile(".x = 1", ctx)
	require.NoError(t, err)
	b, err := Compile(".x = 1", ctx)
	require.NoError(t, err)
	assert.Same(t, a, b, "identical source should hit the interpreter cache")
}

func TestPruneFoldsConstantSubtrees(t *testing.T) {
	expr, err := Compile("1 + 2", nil)
	require.NoError(t, err)
	leaf, ok := expr.Root.(*Leaf)
	require.True(t, ok, "constant-only expression should fold to a single Leaf")
	assert.Equal(t, int64(3), leaf.Value.AsInteger())
}

func TestRegisteredFunctionCall(t *testing.T) {
	ctx := knowledge.Open()
	defer ctx.Close()

	ctx.RegisterFunction("twice", func(c *knowledge.Context, args []knowledge.Value) (knowledge.Value, error) {
		return knowledge.NewInteger(args[0].AsInteger() * 2), nil
	})

	assert.Equal(t, int64(20), eval(t, ctx, "twice(10)").AsInteger())
}

func TestToStringAndToIntegers(t *testing.T) {
	ctx := knowledge.Open()
	defer ctx.Close()

	assert.Equal(t, "1,2,3", eval(t, ctx, `#to_string(#to_integers("1,2,3"), ",")`).AsString(""))
}
