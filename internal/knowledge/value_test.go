// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueTruthy(t *testing.T) {
	tests := []struct {
		name   string
		v      Value
		legacy bool
		want   bool
	}{
		{"zero integer is falsy", NewInteger(0), false, false},
		{"nonzero integer is truthy", NewInteger(1), false, true},
		{"zero double is falsy", NewDouble(0), false, false},
		{"empty string is falsy (non-legacy)", NewString(""), false, false},
		{"one-char string is truthy (non-legacy)", NewString("a"), false, true},
		{"one-char string is falsy (legacy size>1)", NewString("a"), true, false},
		{"two-char string is truthy (legacy)", NewString("ab"), true, true},
		{"empty integer array is falsy", NewIntegerArray(nil), false, false},
		{"nonempty integer array is truthy", NewIntegerArray([]int64{1}), false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.v.Truthy(tt.legacy))
		})
	}
}

func TestValueAsIntegerCoercion(t *testing.T) {
	assert.Equal(t, int64(3), NewDouble(3.9).AsInteger())
	assert.Equal(t, int64(42), NewString(" 42 ").AsInteger())
	assert.Equal(t, int64(0), NewString("not a number").AsInteger())
	assert.Equal(t, int64(7), NewIntegerArray([]int64{7, 8}).AsInteger())
}

func TestValueAsStringArrayJoin(t *testing.T) {
	v := NewIntegerArray([]int64{1, 2, 3})
	assert.Equal(t, "1,2,3", v.AsString(","))
	assert.Equal(t, "123", v.AsString(""))
}

func TestValueArraysAreCopiedOnConstruction(t *testing.T) {
	src := []int64{1, 2, 3}
	v := NewIntegerArray(src)
	src[0] = 99
	assert.Equal(t, int64(1), v.IntegerArray()[0], "Value must not alias the caller's backing array")
}

func TestValueEqual(t *testing.T) {
	assert.True(t, NewInteger(5).Equal(NewInteger(5)))
	assert.False(t, NewInteger(5).Equal(NewInteger(6)))
	assert.False(t, NewInteger(5).Equal(NewDouble(5)))
	assert.True(t, NewDoubleArray([]float64{1.5, 2.5}).Equal(NewDoubleArray([]float64{1.5, 2.5})))
}

func TestValueSize(t *testing.T) {
	assert.Equal(t, int64(1), NewInteger(5).Size())
	assert.Equal(t, int64(3), NewIntegerArray([]int64{1, 2, 3}).Size())
	assert.Equal(t, int64(5), NewString("hello").Size())
	assert.Equal(t, int64(2), NewBuffer([]byte{0x1, 0x2}).Size())
}
