// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package karl

import (
	"github.com/jredmondson/madara-sub009/internal/knowledge"
)

// Expression is a compiled KaRL tree plus the source text it was
// compiled from (the cache key).
type Expression struct {
	Source string
	Root   Node
}

// Compile tokenizes, parses, arity-checks and prunes src, memoizing the
// result in ctx's interpreter cache keyed on the source string (spec.md
// §3: "an interpreter cache: KaRL source -> compiled ExprTree"). Passing
// a nil ctx compiles without caching, useful for one-off parses in
// tests.
func Compile(src string, ctx *knowledge.Context) (*Expression, error) {
	if ctx != nil {
		if cached, ok := ctx.CacheGet(src); ok {
			if expr, ok := cached.(*Expression); ok {
				return expr, nil
			}
		}
	}

	root, err := parseProgram(src)
	if err != nil {
		return nil, err
	}
	if err := checkArity(root); err != nil {
		return nil, err
	}
	root = root.Prune()

	expr := &Expression{Source: src, Root: root}
	if ctx != nil {
		ctx.CacheSet(src, expr)
	}
	return expr, nil
}

// Evaluate runs the compiled tree against ctx.
func (e *Expression) Evaluate(ctx *knowledge.Context, s EvalSettings) (knowledge.Value, error) {
	return e.Root.Evaluate(ctx, s)
}

// checkArity walks every node and validates the arity of SystemCall
// nodes at compile time (spec.md §6: "validates arity at compile
// (prune) time").
func checkArity(n Node) error {
	switch t := n.(type) {
	case *SystemCall:
		if err := t.checkArity(); err != nil {
			return err
		}
		for _, a := range t.Args {
			if err := checkArity(a); err != nil {
				return err
			}
		}
	case *Call:
		for _, a := range t.Args {
			if err := checkArity(a); err != nil {
				return err
			}
		}
	case *Unary:
		return checkArity(t.Child)
	case *Binary:
		if err := checkArity(t.Left); err != nil {
			return err
		}
		return checkArity(t.Right)
	case *Index:
		if err := checkArity(t.Base); err != nil {
			return err
		}
		return checkArity(t.Idx)
	case *Ternary:
		for _, c := range t.Children {
			if err := checkArity(c); err != nil {
				return err
			}
		}
	}
	return nil
}
