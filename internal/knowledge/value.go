// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package knowledge implements the Knowledge Context: the typed record
// store, its per-record metadata, modification tracking, and the atomic
// read/modify/write/compare-and-update primitives it exports to the karl
// and transport packages.
//
// The map-of-records layout is adapted from the teacher's hierarchical
// metric tree in pkg/metricstore/level.go and buffer.go; the Context
// guards it with a single sync.Mutex and creates entries lazily under
// that lock.
package knowledge

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Value, matching the Record type
// enumeration: integer, double, string, integer array, double array, an
// opaque byte buffer (file), a typed byte buffer carrying a file-type tag,
// and a dynamic "any" wrapper for user-registered types.
type Kind int

const (
	KindInteger Kind = iota
	KindDouble
	KindString
	KindIntegerArray
	KindDoubleArray
	KindBuffer
	KindFileBuffer
	KindAny
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindIntegerArray:
		return "integer_array"
	case KindDoubleArray:
		return "double_array"
	case KindBuffer:
		return "buffer"
	case KindFileBuffer:
		return "file_buffer"
	case KindAny:
		return "any"
	default:
		return "unknown"
	}
}

// FileType tags the payload of a KindFileBuffer Value.
type FileType int

const (
	FileUnknown FileType = iota
	FileText
	FileXML
	FileJPEG
)

// payload is the reference-counted, copy-on-write body of a Value. Once
// shared between two Values, a payload is never mutated in place (I5) —
// Go's garbage collector retires it once the last Value referencing it
// goes away, which is the idiomatic replacement for the source's manual
// reference counts.
type payload struct {
	s       string
	ints    []int64
	doubles []float64
	buf     []byte
	any     any
	anyTag  string
}

// Value is an immutable, cheaply-copyable tagged variant. Copying a Value
// never copies array/string/buffer contents; every Value sharing a
// payload sees the same bytes until one of them is replaced wholesale by
// a new Value (I5).
type Value struct {
	kind     Kind
	i        int64
	d        float64
	fileType FileType
	p        *payload
}

// Zero values for each numeric/string kind, returned by getters on
// UNCREATED or missing keys (I3) and by getters on a type mismatch.
var (
	ZeroInteger = Value{kind: KindInteger}
	ZeroDouble  = Value{kind: KindDouble}
	ZeroString  = Value{kind: KindString, p: &payload{}}
)

func NewInteger(v int64) Value { return Value{kind: KindInteger, i: v} }
func NewDouble(v float64) Value { return Value{kind: KindDouble, d: v} }

func NewString(v string) Value {
	return Value{kind: KindString, p: &payload{s: v}}
}

func NewIntegerArray(v []int64) Value {
	cp := make([]int64, len(v))
	copy(cp, v)
	return Value{kind: KindIntegerArray, p: &payload{ints: cp}}
}

func NewDoubleArray(v []float64) Value {
	cp := make([]float64, len(v))
	copy(cp, v)
	return Value{kind: KindDoubleArray, p: &payload{doubles: cp}}
}

func NewBuffer(v []byte) Value {
	cp := make([]byte, len(v))
	copy(cp, v)
	return Value{kind: KindBuffer, p: &payload{buf: cp}}
}

func NewFileBuffer(v []byte, ft FileType) Value {
	cp := make([]byte, len(v))
	copy(cp, v)
	return Value{kind: KindFileBuffer, fileType: ft, p: &payload{buf: cp}}
}

func NewAny(tag string, v any) Value {
	return Value{kind: KindAny, p: &payload{any: v, anyTag: tag}}
}

func (v Value) Kind() Kind         { return v.kind }
func (v Value) FileType() FileType { return v.fileType }

func (v Value) AsInteger() int64 {
	switch v.kind {
	case KindInteger:
		return v.i
	case KindDouble:
		return int64(v.d)
	case KindString:
		n, _ := strconv.ParseInt(strings.TrimSpace(v.p.s), 10, 64)
		return n
	case KindIntegerArray:
		if v.p != nil && len(v.p.ints) > 0 {
			return v.p.ints[0]
		}
	case KindDoubleArray:
		if v.p != nil && len(v.p.doubles) > 0 {
			return int64(v.p.doubles[0])
		}
	}
	return 0
}

func (v Value) AsDouble() float64 {
	switch v.kind {
	case KindInteger:
		return float64(v.i)
	case KindDouble:
		return v.d
	case KindString:
		f, _ := strconv.ParseFloat(strings.TrimSpace(v.p.s), 64)
		return f
	case KindIntegerArray:
		if v.p != nil && len(v.p.ints) > 0 {
			return float64(v.p.ints[0])
		}
	case KindDoubleArray:
		if v.p != nil && len(v.p.doubles) > 0 {
			return v.p.doubles[0]
		}
	}
	return 0
}

// AsString renders the value for concatenation (KaRL's string-coercing
// `+`) and for #to_string. delim joins array elements when non-empty.
func (v Value) AsString(delim string) string {
	switch v.kind {
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindDouble:
		return strconv.FormatFloat(v.d, 'g', -1, 64)
	case KindString:
		if v.p == nil {
			return ""
		}
		return v.p.s
	case KindIntegerArray:
		if v.p == nil {
			return ""
		}
		parts := make([]string, len(v.p.ints))
		for i, n := range v.p.ints {
			parts[i] = strconv.FormatInt(n, 10)
		}
		return strings.Join(parts, delim)
	case KindDoubleArray:
		if v.p == nil {
			return ""
		}
		parts := make([]string, len(v.p.doubles))
		for i, n := range v.p.doubles {
			parts[i] = strconv.FormatFloat(n, 'g', -1, 64)
		}
		return strings.Join(parts, delim)
	case KindBuffer, KindFileBuffer:
		if v.p == nil {
			return ""
		}
		return string(v.p.buf)
	case KindAny:
		return fmt.Sprintf("%v", v.p.any)
	}
	return ""
}

func (v Value) IntegerArray() []int64 {
	if v.p == nil {
		return nil
	}
	return v.p.ints
}

func (v Value) DoubleArray() []float64 {
	if v.p == nil {
		return nil
	}
	return v.p.doubles
}

func (v Value) Buffer() []byte {
	if v.p == nil {
		return nil
	}
	return v.p.buf
}

func (v Value) Any() (string, any) {
	if v.p == nil {
		return "", nil
	}
	return v.p.anyTag, v.p.any
}

// Size mirrors the #size system call: element count for arrays, byte
// length for buffers/strings, 1 for scalars.
func (v Value) Size() int64 {
	switch v.kind {
	case KindIntegerArray:
		return int64(len(v.IntegerArray()))
	case KindDoubleArray:
		return int64(len(v.DoubleArray()))
	case KindString:
		return int64(len(v.AsString("")))
	case KindBuffer, KindFileBuffer:
		return int64(len(v.Buffer()))
	default:
		return 1
	}
}

// Truthy implements KaRL's truthiness rule (Q1 resolved as "non-empty"):
// integers and doubles are truthy when nonzero, strings truthy when
// non-empty, arrays truthy when non-empty. LegacyTruthiness recovers the
// source's "size > 1" behavior (a trailing NUL was counted) for parity
// testing against the original implementation.
func (v Value) Truthy(legacy bool) bool {
	switch v.kind {
	case KindInteger:
		return v.i != 0
	case KindDouble:
		return v.d != 0
	case KindString:
		n := len(v.AsString(""))
		if legacy {
			return n > 1
		}
		return n > 0
	case KindIntegerArray:
		return len(v.IntegerArray()) > 0
	case KindDoubleArray:
		return len(v.DoubleArray()) > 0
	case KindBuffer, KindFileBuffer:
		return len(v.Buffer()) > 0
	case KindAny:
		return v.p != nil && v.p.any != nil
	}
	return false
}

// Equal is a value-only comparison (metadata is not part of equality).
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindInteger:
		return v.i == o.i
	case KindDouble:
		return v.d == o.d
	case KindString:
		return v.AsString("") == o.AsString("")
	case KindIntegerArray:
		a, b := v.IntegerArray(), o.IntegerArray()
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
		return true
	case KindDoubleArray:
		a, b := v.DoubleArray(), o.DoubleArray()
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
		return true
	case KindBuffer, KindFileBuffer:
		return string(v.Buffer()) == string(o.Buffer())
	}
	return false
}
