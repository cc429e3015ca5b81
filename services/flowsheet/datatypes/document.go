// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes holds the wire-level types of the flowsheet server.
//
// A Document is the JSON representation of one flowsheet: topology
// (nodes/edges), computed numeric values, and diagram layout metadata the
// model itself does not know about. Two documents can exist for the same
// flowsheet at once: the last persisted one, and the one freshly serialized
// from the in-memory model. The reconcile package aligns them.
package datatypes

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// Document is a JSON-serializable nested mapping describing one flowsheet.
type Document map[string]any

// ParseDocument parses raw JSON into a Document.
//
// The input must be a JSON object; arrays and scalars are rejected because
// a flowsheet is always a mapping at the top level.
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("parse document: top-level value is not an object")
	}
	return doc, nil
}

// Normalize round-trips the document through JSON so that all values use
// the canonical JSON value model (map[string]any, []any, float64, string,
// bool, nil). Serializers may hand us documents containing ints or typed
// structs; normalizing first makes deep equality meaningful.
func (d Document) Normalize() (Document, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("normalize document: %w", err)
	}
	return ParseDocument(data)
}

// Clone returns a deep copy. Mutating the copy never affects the original.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

// Keys returns the top-level keys in sorted order.
func (d Document) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports deep structural equality over the JSON value model.
// Both documents must already be normalized.
func (d Document) Equal(other Document) bool {
	if len(d) != len(other) {
		return false
	}
	for k, v := range d {
		ov, ok := other[k]
		if !ok || !reflect.DeepEqual(v, ov) {
			return false
		}
	}
	return true
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = cloneValue(inner)
		}
		return out
	case Document:
		return map[string]any(val.Clone())
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = cloneValue(inner)
		}
		return out
	default:
		// JSON scalars are immutable.
		return v
	}
}
