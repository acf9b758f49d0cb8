// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package karl

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jredmondson/madara-sub009/internal/knowledge"
)

// arityRange gives the [min,max] accepted argument count for a built-in;
// max of -1 means unbounded. Validated at compile time (prune), per
// spec.md §6: "Each built-in validates arity at compile (prune) time and
// logs + throws on mismatch."
type arityRange struct{ min, max int }

var builtinArity = map[string]arityRange{
	"get_time":         {0, 0},
	"get_clock":        {0, 1},
	"set_clock":        {1, 2},
	"rand_int":         {2, 3},
	"rand_double":      {2, 2},
	"pow":              {2, 2},
	"sin":              {1, 1},
	"cos":              {1, 1},
	"tan":              {1, 1},
	"size":             {1, 1},
	"type":             {1, 1},
	"sqrt":             {1, 1},
	"sleep":            {1, 1},
	"read_file":        {1, 2},
	"write_file":       {2, 2},
	"print":            {1, 2},
	"log_level":        {0, 1},
	"set_precision":    {1, 1},
	"set_fixed":        {0, 0},
	"set_scientific":   {0, 0},
	"expand_statement": {1, 1},
	"expand_env":       {1, 1},
	"fragment":         {3, 3},
	"to_integer":       {1, 1},
	"to_double":        {1, 1},
	"to_string":        {1, 2},
	"to_integers":      {1, 1},
	"to_doubles":       {1, 1},
	"to_buffer":        {1, 1},
	"to_host_dirs":     {1, 1},
	"isinf":            {1, 1},
	"clear_var":        {1, 1},
	"delete_var":       {1, 1},
	"eval":             {1, 1},
}

// SystemCall is a variadic built-in invocation, `#name(args)`.
type SystemCall struct {
	Name   string
	Args   []Node
	Cursor int
}

func (n *SystemCall) CanChange() bool { return true }

func (n *SystemCall) Prune() Node {
	for i, a := range n.Args {
		n.Args[i] = a.Prune()
	}
	return n
}

// checkArity is invoked once by Compile after the tree is built, walking
// every SystemCall node.
func (n *SystemCall) checkArity() error {
	rng, ok := builtinArity[n.Name]
	if !ok {
		return &CompileError{Kind: "unknown-call", Cursor: n.Cursor, Hint: "no built-in named #" + n.Name}
	}
	got := len(n.Args)
	if got < rng.min || (rng.max >= 0 && got > rng.max) {
		return &CompileError{
			Kind:   "arity",
			Cursor: n.Cursor,
			Hint:   fmt.Sprintf("#%s takes %d..%d arguments, got %d", n.Name, rng.min, rng.max, got),
		}
	}
	return nil
}

func (n *SystemCall) Evaluate(ctx *knowledge.Context, s EvalSettings) (knowledge.Value, error) {
	args := make([]knowledge.Value, len(n.Args))
	for i, a := range n.Args {
		v, err := a.Evaluate(ctx, s)
		if err != nil {
			return knowledge.ZeroInteger, err
		}
		args[i] = v
	}

	switch n.Name {
	case "get_time":
		return knowledge.NewInteger(time.Now().Unix()), nil

	case "get_clock":
		if len(args) == 0 {
			return knowledge.NewInteger(int64(ctx.Clock())), nil
		}
		// var form is resolved by re-evaluating the argument Variable's
		// key through GetRef for its Record.Clock; simplest stable route
		// is a direct Context lookup by name.
		if v, ok := n.Args[0].(*Variable); ok {
			ref := ctx.GetRef(v.Name)
			ctx.Lock()
			clock := ref.RecordClock()
			ctx.Unlock()
			return knowledge.NewInteger(int64(clock)), nil
		}
		return knowledge.NewInteger(int64(ctx.Clock())), nil

	case "set_clock":
		if len(n.Args) == 1 {
			// #set_clock(value) sets the context clock.
			ctx.Lock()
			ctx.SetClockLocked(uint64(args[0].AsInteger()))
			ctx.Unlock()
			return args[0], nil
		}
		if v, ok := n.Args[0].(*Variable); ok {
			ref := ctx.GetRef(v.Name)
			ctx.Lock()
			ref.SetRecordClock(uint64(args[1].AsInteger()))
			ctx.Unlock()
		}
		return args[1], nil

	case "rand_int":
		lo, hi := args[0].AsInteger(), args[1].AsInteger()
		r := rand.New(rand.NewSource(time.Now().UnixNano()))
		if len(args) == 3 {
			r = rand.New(rand.NewSource(args[2].AsInteger()))
		}
		if hi <= lo {
			return knowledge.NewInteger(lo), nil
		}
		return knowledge.NewInteger(lo + r.Int63n(hi-lo)), nil

	case "rand_double":
		lo, hi := args[0].AsDouble(), args[1].AsDouble()
		return knowledge.NewDouble(lo + rand.Float64()*(hi-lo)), nil

	case "pow":
		return knowledge.NewDouble(math.Pow(args[0].AsDouble(), args[1].AsDouble())), nil
	case "sin":
		return knowledge.NewDouble(math.Sin(args[0].AsDouble())), nil
	case "cos":
		return knowledge.NewDouble(math.Cos(args[0].AsDouble())), nil
	case "tan":
		return knowledge.NewDouble(math.Tan(args[0].AsDouble())), nil
	case "sqrt":
		return knowledge.NewDouble(math.Sqrt(args[0].AsDouble())), nil
	case "isinf":
		return boolValue(math.IsInf(args[0].AsDouble(), 0)), nil

	case "size":
		return knowledge.NewInteger(args[0].Size()), nil
	case "type":
		return knowledge.NewString(args[0].Kind().String()), nil

	case "sleep":
		d := time.Duration(args[0].AsDouble() * float64(time.Second))
		time.Sleep(d)
		return args[0], nil

	case "read_file":
		data, err := os.ReadFile(args[0].AsString(""))
		if err != nil {
			return knowledge.ZeroInteger, &KarlException{NodeKind: "syscall", Message: "read_file: " + err.Error()}
		}
		ft := knowledge.FileUnknown
		if len(args) == 2 {
			switch args[1].AsString("") {
			case "text":
				ft = knowledge.FileText
			case "xml":
				ft = knowledge.FileXML
			case "jpeg":
				ft = knowledge.FileJPEG
			}
		}
		return knowledge.NewFileBuffer(data, ft), nil

	case "write_file":
		if err := os.WriteFile(args[1].AsString(""), args[0].Buffer(), 0o644); err != nil {
			return knowledge.ZeroInteger, &KarlException{NodeKind: "syscall", Message: "write_file: " + err.Error()}
		}
		return args[0], nil

	case "print":
		level := "info"
		if len(args) == 2 {
			level = args[1].AsString("")
		}
		text := args[0].AsString(s.ArrayDelimiter)
		switch level {
		case "debug":
			ctx.Logger().Debugf("%s", text)
		case "warn":
			ctx.Logger().Warnf("%s", text)
		case "error":
			ctx.Logger().Errorf("%s", text)
		default:
			ctx.Logger().Infof("%s", text)
		}
		return args[0], nil

	case "log_level":
		if len(args) == 1 {
			return knowledge.NewInteger(args[0].AsInteger()), nil
		}
		return knowledge.ZeroInteger, nil

	case "set_precision", "set_fixed", "set_scientific":
		// Formatting knobs are carried on EvalSettings by the caller
		// (§9 "Global mutable state" resolved as explicit options); the
		// built-in is accepted for source compatibility but has no
		// effect beyond echoing its argument, since EvalSettings here is
		// passed by value down the call stack rather than mutated
		// globally.
		if len(args) == 1 {
			return args[0], nil
		}
		return knowledge.ZeroInteger, nil

	case "expand_statement":
		expanded, err := ctx.ExpandStatement(args[0].AsString(""))
		if err != nil {
			return knowledge.ZeroInteger, &KarlException{NodeKind: "syscall", Message: err.Error()}
		}
		return knowledge.NewString(expanded), nil

	case "expand_env":
		return knowledge.NewString(os.ExpandEnv(args[0].AsString(""))), nil

	case "fragment":
		str := args[0].AsString("")
		lo, hi := int(args[1].AsInteger()), int(args[2].AsInteger())
		if lo < 0 {
			lo = 0
		}
		if hi > len(str) {
			hi = len(str)
		}
		if lo > hi {
			return knowledge.NewString(""), nil
		}
		return knowledge.NewString(str[lo:hi]), nil

	case "to_integer":
		return knowledge.NewInteger(args[0].AsInteger()), nil
	case "to_double":
		return knowledge.NewDouble(args[0].AsDouble()), nil
	case "to_string":
		delim := s.ArrayDelimiter
		if len(args) == 2 {
			delim = args[1].AsString("")
		}
		return knowledge.NewString(args[0].AsString(delim)), nil
	case "to_integers":
		return toIntegerArray(args[0]), nil
	case "to_doubles":
		return toDoubleArray(args[0]), nil
	case "to_buffer":
		return knowledge.NewBuffer([]byte(args[0].AsString(""))), nil
	case "to_host_dirs":
		// Splits a dotted originator/host id ("host01.rack3") into a
		// filesystem-safe relative path ("host01/rack3"), mirroring
		// original_source's #to_host_dirs used to lay out per-host
		// checkpoint directories.
		return knowledge.NewString(strings.ReplaceAll(args[0].AsString(""), ".", string(os.PathSeparator))), nil

	case "clear_var":
		if v, ok := n.Args[0].(*Variable); ok {
			_, err := ctx.Set(v.Name, knowledge.ZeroInteger, s.UpdateSettings)
			return knowledge.ZeroInteger, err
		}
		return knowledge.ZeroInteger, nil

	case "delete_var":
		if v, ok := n.Args[0].(*Variable); ok {
			ctx.Erase(v.Name)
		}
		return knowledge.ZeroInteger, nil

	case "eval":
		expr, err := Compile(args[0].AsString(""), ctx)
		if err != nil {
			return knowledge.ZeroInteger, &KarlException{NodeKind: "syscall", Message: "eval: " + err.Error()}
		}
		return expr.Evaluate(ctx, s)
	}

	return knowledge.ZeroInteger, &KarlException{NodeKind: "syscall", Message: "unimplemented built-in #" + n.Name}
}

func toIntegerArray(v knowledge.Value) knowledge.Value {
	switch v.Kind() {
	case knowledge.KindIntegerArray:
		return v
	case knowledge.KindDoubleArray:
		src := v.DoubleArray()
		out := make([]int64, len(src))
		for i, d := range src {
			out[i] = int64(d)
		}
		return knowledge.NewIntegerArray(out)
	case knowledge.KindString:
		parts := strings.Split(v.AsString(""), ",")
		out := make([]int64, 0, len(parts))
		for _, p := range parts {
			n, _ := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
			out = append(out, n)
		}
		return knowledge.NewIntegerArray(out)
	default:
		return knowledge.NewIntegerArray([]int64{v.AsInteger()})
	}
}

func toDoubleArray(v knowledge.Value) knowledge.Value {
	switch v.Kind() {
	case knowledge.KindDoubleArray:
		return v
	case knowledge.KindIntegerArray:
		src := v.IntegerArray()
		out := make([]float64, len(src))
		for i, n := range src {
			out[i] = float64(n)
		}
		return knowledge.NewDoubleArray(out)
	case knowledge.KindString:
		parts := strings.Split(v.AsString(""), ",")
		out := make([]float64, 0, len(parts))
		for _, p := range parts {
			f, _ := strconv.ParseFloat(strings.TrimSpace(p), 64)
			out = append(out, f)
		}
		return knowledge.NewDoubleArray(out)
	default:
		return knowledge.NewDoubleArray([]float64{v.AsDouble()})
	}
}
