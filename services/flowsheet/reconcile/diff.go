// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package reconcile aligns the stored and live documents of a flowsheet.
//
// The diff is computed over the live document's top-level keys with deep
// structural equality on the JSON value model. Keys present only in the
// stored document are never counted as changes: they are layout and
// position metadata set by the UI that the model serializer does not
// regenerate, and counting them would rewrite the save file on every
// poll. The merge applies a key-level override rule (live value wins per
// key, stored-only keys survive), so merging the result back and
// reconciling again yields an empty diff: reconciliation reaches a fixed
// point after one write.
package reconcile

import (
	"reflect"
	"sort"

	"github.com/AleutianAI/FlowsheetLocal/services/flowsheet/datatypes"
)

// Diff is the request-scoped result of comparing a stored and a live
// document. Never persisted; recomputed on every reconciliation.
type Diff struct {
	stored  datatypes.Document
	live    datatypes.Document
	changed []string
}

// Compute diffs live against stored: a top-level key is changed when it
// is absent from the stored document or bound to a different value there.
// Stored-only keys do not participate. Both documents must be normalized
// (see datatypes.Document.Normalize); nil is treated as an empty document.
func Compute(stored, live datatypes.Document) *Diff {
	d := &Diff{stored: stored, live: live}
	for k, lv := range live {
		sv, ok := stored[k]
		if !ok || !reflect.DeepEqual(sv, lv) {
			d.changed = append(d.changed, k)
		}
	}
	sort.Strings(d.changed)
	return d
}

// Empty reports whether every live key already matches its stored value.
// An empty diff means no write-back: the on-disk content stays
// byte-identical and manually curated layout fields are left alone.
func (d *Diff) Empty() bool {
	return len(d.changed) == 0
}

// Len returns the number of differing top-level keys.
func (d *Diff) Len() int {
	return len(d.changed)
}

// Changed returns the differing top-level keys in sorted order.
func (d *Diff) Changed() []string {
	out := make([]string, len(d.changed))
	copy(out, d.changed)
	return out
}

// Merged produces the merged document under the key-level override rule.
// The result is always a deep copy, independent of the diff's inputs, so a
// later reconciliation can never retroactively mutate a value a caller
// already holds.
func (d *Diff) Merged() datatypes.Document {
	merged := d.stored.Clone()
	if merged == nil {
		merged = make(datatypes.Document, len(d.live))
	}
	for k, v := range d.live.Clone() {
		merged[k] = v
	}
	return merged
}
