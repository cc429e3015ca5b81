// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/FlowsheetLocal/services/flowsheet/datatypes"
	fserrors "github.com/AleutianAI/FlowsheetLocal/services/flowsheet/errors"
	"github.com/AleutianAI/FlowsheetLocal/services/flowsheet/persist"
)

// modelBox is a mutable stand-in for a live flowsheet model.
type modelBox struct {
	doc datatypes.Document
}

// boxSerializer serializes modelBox models.
type boxSerializer struct{}

func (boxSerializer) Serialize(model any, id string) (datatypes.Document, error) {
	box, ok := model.(*modelBox)
	if !ok {
		return nil, errors.New("not a modelBox")
	}
	return box.doc.Clone(), nil
}

func newTestServer(t *testing.T) *FlowsheetServer {
	t.Helper()
	srv, err := New(Config{
		Serializer: boxSerializer{},
		Settings:   map[string]any{"save_time_interval": 5000},
	})
	require.NoError(t, err)
	return srv
}

func TestNew_RequiresSerializer(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestCanonicalName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"boiler", "boiler"},
		{"My Flowsheet", "My-Flowsheet"},
		{"a/b\\c?d", "a-b-c-d"},
		{"a   b", "a-b"},
		{"heat.exchanger_2~ok", "heat.exchanger_2~ok"},
		{"--already--dashed--", "-already-dashed-"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := CanonicalName(tt.in)
			assert.Equal(t, tt.want, got)
			// Idempotent: canonicalizing a canonical name is a no-op.
			assert.Equal(t, got, CanonicalName(got))
		})
	}
}

func TestAddFlowsheet_FirstSave(t *testing.T) {
	srv := newTestServer(t)
	store := persist.NewMemoryDataStore()
	model := &modelBox{doc: datatypes.Document{"model": map[string]any{"id": "fs"}}}

	id, renamed, err := srv.AddFlowsheet("boiler", model, store)
	require.NoError(t, err)
	assert.Equal(t, "boiler", id)
	assert.False(t, renamed)

	// The live model was serialized and persisted immediately.
	saved, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "fs", saved["model"].(map[string]any)["id"])
}

func TestAddFlowsheet_ReportsRename(t *testing.T) {
	srv := newTestServer(t)
	model := &modelBox{doc: datatypes.Document{}}

	id, renamed, err := srv.AddFlowsheet("my flowsheet #1", model, persist.NewMemoryDataStore())
	require.NoError(t, err)
	assert.True(t, renamed)
	assert.Equal(t, "my-flowsheet-1", id)

	// The flowsheet is addressable only under the canonical id.
	_, err = srv.Flowsheet(id)
	assert.NoError(t, err)
	_, err = srv.Flowsheet("my flowsheet #1")
	assert.ErrorIs(t, err, fserrors.ErrFlowsheetUnknown)
}

func TestAddFlowsheet_MergesExistingSavedDocument(t *testing.T) {
	srv := newTestServer(t)
	store := persist.NewMemoryDataStore()
	require.NoError(t, store.Save(datatypes.Document{
		"model":  map[string]any{"id": "old"},
		"layout": map[string]any{"x": float64(5)},
	}))

	model := &modelBox{doc: datatypes.Document{"model": map[string]any{"id": "new"}}}
	_, _, err := srv.AddFlowsheet("fs", model, store)
	require.NoError(t, err)

	saved, err := store.Load()
	require.NoError(t, err)
	// Live model wins for shared keys; UI-only layout survives.
	assert.Equal(t, "new", saved["model"].(map[string]any)["id"])
	assert.Equal(t, float64(5), saved["layout"].(map[string]any)["x"])
}

func TestFlowsheet_Unknown(t *testing.T) {
	srv := newTestServer(t)
	_, err := srv.Flowsheet("never-registered")
	assert.ErrorIs(t, err, fserrors.ErrFlowsheetUnknown)
}

func TestUpdateFlowsheet_CleanDiffSkipsWriteBack(t *testing.T) {
	dir := t.TempDir()
	store, err := persist.NewFileDataStore(filepath.Join(dir, "fs.json"))
	require.NoError(t, err)

	srv := newTestServer(t)
	model := &modelBox{doc: datatypes.Document{"model": map[string]any{"id": "fs"}}}
	_, _, err = srv.AddFlowsheet("fs", model, store)
	require.NoError(t, err)

	before, err := os.ReadFile(store.Location())
	require.NoError(t, err)

	// Nothing changed, so the file content must stay byte-identical.
	_, err = srv.UpdateFlowsheet("fs")
	require.NoError(t, err)
	after, err := os.ReadFile(store.Location())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestUpdateFlowsheet_ModelChangePersistsMerge(t *testing.T) {
	srv := newTestServer(t)
	store := persist.NewMemoryDataStore()
	model := &modelBox{doc: datatypes.Document{"model": map[string]any{"rev": 1}}}
	_, _, err := srv.AddFlowsheet("fs", model, store)
	require.NoError(t, err)

	// The UI saved a layout block the model knows nothing about.
	require.NoError(t, srv.SaveRawFlowsheet("fs",
		[]byte(`{"model": {"rev": 1}, "layout": {"x": 5}}`)))

	// The model recomputes.
	model.doc = datatypes.Document{"model": map[string]any{"rev": 2}}

	merged, err := srv.UpdateFlowsheet("fs")
	require.NoError(t, err)
	assert.Equal(t, float64(2), merged["model"].(map[string]any)["rev"])
	assert.Equal(t, float64(5), merged["layout"].(map[string]any)["x"])

	saved, err := store.Load()
	require.NoError(t, err)
	assert.True(t, merged.Equal(saved))
}

// countingStore wraps a DataStore and counts Save calls.
type countingStore struct {
	persist.DataStore
	saves int
}

func (s *countingStore) Save(doc datatypes.Document) error {
	s.saves++
	return s.DataStore.Save(doc)
}

func TestUpdateFlowsheet_UnchangedModelIsIdempotent(t *testing.T) {
	srv := newTestServer(t)
	store := &countingStore{DataStore: persist.NewMemoryDataStore()}
	model := &modelBox{doc: datatypes.Document{"model": map[string]any{"rev": 1}}}
	_, _, err := srv.AddFlowsheet("fs", model, store)
	require.NoError(t, err)

	// The UI saved a layout block the serializer will never regenerate.
	require.NoError(t, srv.SaveRawFlowsheet("fs",
		[]byte(`{"model": {"rev": 1}, "layout": {"x": 5}}`)))
	base := store.saves

	// With the model unchanged, polling must reach a fixed point: no
	// further writes no matter how often reconciliation runs.
	for i := 0; i < 3; i++ {
		doc, err := srv.UpdateFlowsheet("fs")
		require.NoError(t, err)
		assert.Equal(t, float64(5), doc["layout"].(map[string]any)["x"])
	}
	assert.Equal(t, base, store.saves)
}

func TestUpdateFlowsheet_UnknownID(t *testing.T) {
	srv := newTestServer(t)
	_, err := srv.UpdateFlowsheet("nope")
	assert.ErrorIs(t, err, fserrors.ErrFlowsheetUnknown)
}

func TestSaveRawFlowsheet_MalformedJSON(t *testing.T) {
	srv := newTestServer(t)
	model := &modelBox{doc: datatypes.Document{}}
	_, _, err := srv.AddFlowsheet("fs", model, persist.NewMemoryDataStore())
	require.NoError(t, err)

	err = srv.SaveRawFlowsheet("fs", []byte(`{"broken":`))
	var procErr *fserrors.ProcessingError
	assert.ErrorAs(t, err, &procErr)
}

func TestSaveRawFlowsheet_TopLevelArrayRejected(t *testing.T) {
	srv := newTestServer(t)
	model := &modelBox{doc: datatypes.Document{}}
	_, _, err := srv.AddFlowsheet("fs", model, persist.NewMemoryDataStore())
	require.NoError(t, err)

	err = srv.SaveRawFlowsheet("fs", []byte(`[1, 2, 3]`))
	var procErr *fserrors.ProcessingError
	assert.ErrorAs(t, err, &procErr)
}

func TestSaveFlowsheet_UnregisteredID(t *testing.T) {
	srv := newTestServer(t)
	err := srv.SaveFlowsheet("nope", datatypes.Document{})
	var procErr *fserrors.ProcessingError
	assert.ErrorAs(t, err, &procErr)
}

func TestSetting(t *testing.T) {
	srv := newTestServer(t)

	value, ok := srv.Setting("save_time_interval")
	assert.True(t, ok)
	assert.Equal(t, 5000, value)

	value, ok = srv.Setting("does_not_exist")
	assert.False(t, ok)
	assert.Nil(t, value)
}

func TestSerializeFailureIsProcessingError(t *testing.T) {
	srv := newTestServer(t)
	// Not a *modelBox, so the serializer rejects it.
	_, _, err := srv.AddFlowsheet("fs", "wrong type", persist.NewMemoryDataStore())
	var procErr *fserrors.ProcessingError
	assert.ErrorAs(t, err, &procErr)
}
