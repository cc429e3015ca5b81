// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDocument(t *testing.T) {
	doc, err := ParseDocument([]byte(`{"model": {"a": 1}, "cells": []}`))
	require.NoError(t, err)
	assert.Contains(t, doc, "model")
	assert.Contains(t, doc, "cells")
}

func TestParseDocument_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"malformed", `{"model":`},
		{"array", `[1, 2, 3]`},
		{"scalar", `42`},
		{"string", `"flowsheet"`},
		{"null", `null`},
		{"empty", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDocument([]byte(tt.raw))
			assert.Error(t, err)
		})
	}
}

func TestParseDocument_EmptyObject(t *testing.T) {
	doc, err := ParseDocument([]byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, doc)
	assert.NotNil(t, doc)
}

func TestNormalize_CanonicalizesNumericTypes(t *testing.T) {
	doc := Document{"count": 3, "nested": map[string]any{"x": int64(7)}}
	norm, err := doc.Normalize()
	require.NoError(t, err)

	// All numbers become float64 under the JSON value model.
	assert.Equal(t, float64(3), norm["count"])
	assert.Equal(t, float64(7), norm["nested"].(map[string]any)["x"])
}

func TestNormalize_MakesEqualityMeaningful(t *testing.T) {
	a := Document{"v": 1}
	b := Document{"v": float64(1)}
	assert.False(t, a.Equal(b))

	na, err := a.Normalize()
	require.NoError(t, err)
	nb, err := b.Normalize()
	require.NoError(t, err)
	assert.True(t, na.Equal(nb))
}

func TestNormalize_Unserializable(t *testing.T) {
	doc := Document{"bad": make(chan int)}
	_, err := doc.Normalize()
	assert.Error(t, err)
}

func TestClone_DeepCopy(t *testing.T) {
	orig := Document{
		"model":  map[string]any{"id": "fs", "unit_models": map[string]any{"M1": "mixer"}},
		"cells":  []any{map[string]any{"id": "c1"}},
		"scalar": float64(2),
	}
	clone := orig.Clone()
	require.True(t, orig.Equal(clone))

	// Mutations of the clone must not leak back.
	clone["model"].(map[string]any)["id"] = "changed"
	clone["cells"].([]any)[0].(map[string]any)["id"] = "c2"
	assert.Equal(t, "fs", orig["model"].(map[string]any)["id"])
	assert.Equal(t, "c1", orig["cells"].([]any)[0].(map[string]any)["id"])
}

func TestClone_Nil(t *testing.T) {
	var doc Document
	assert.Nil(t, doc.Clone())
}

func TestKeys_Sorted(t *testing.T) {
	doc := Document{"z": 1, "a": 2, "m": 3}
	assert.Equal(t, []string{"a", "m", "z"}, doc.Keys())
}

func TestEqual(t *testing.T) {
	a := Document{"model": map[string]any{"x": float64(1)}, "layout": "grid"}
	b := Document{"model": map[string]any{"x": float64(1)}, "layout": "grid"}
	c := Document{"model": map[string]any{"x": float64(2)}, "layout": "grid"}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(Document{"model": a["model"]}))
}
