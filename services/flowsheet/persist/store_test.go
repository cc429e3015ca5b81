// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package persist

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/FlowsheetLocal/services/flowsheet/datatypes"
	fserrors "github.com/AleutianAI/FlowsheetLocal/services/flowsheet/errors"
)

func testDoc() datatypes.Document {
	return datatypes.Document{
		"model":  map[string]any{"id": "fs", "unit_models": map[string]any{"M1": "mixer"}},
		"layout": map[string]any{"x": float64(5)},
	}
}

func TestNewFileDataStore_MissingParent(t *testing.T) {
	_, err := NewFileDataStore(filepath.Join(t.TempDir(), "missing", "fs.json"))
	var dsErr *fserrors.DatastoreError
	require.ErrorAs(t, err, &dsErr)
	assert.Equal(t, "create", dsErr.Op)
}

func TestNewFileDataStore_ParentIsFile(t *testing.T) {
	dir := t.TempDir()
	parent := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(parent, []byte("x"), 0644))

	_, err := NewFileDataStore(filepath.Join(parent, "fs.json"))
	var dsErr *fserrors.DatastoreError
	assert.ErrorAs(t, err, &dsErr)
}

func TestFileDataStore_LoadBeforeSave(t *testing.T) {
	store, err := NewFileDataStore(filepath.Join(t.TempDir(), "fs.json"))
	require.NoError(t, err)

	_, err = store.Load()
	assert.ErrorIs(t, err, ErrNoSavedDocument)
}

func TestFileDataStore_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fs.json")
	store, err := NewFileDataStore(path)
	require.NoError(t, err)

	doc := testDoc()
	require.NoError(t, store.Save(doc))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.True(t, doc.Equal(loaded))
	assert.Equal(t, path, store.Location())
}

func TestFileDataStore_EmptyFileIsNoSavedDocument(t *testing.T) {
	// An overwrite-style truncate leaves a zero-byte file; that reads as
	// "never saved", not as corrupt JSON.
	path := filepath.Join(t.TempDir(), "fs.json")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	store, err := NewFileDataStore(path)
	require.NoError(t, err)
	_, err = store.Load()
	assert.ErrorIs(t, err, ErrNoSavedDocument)
}

func TestFileDataStore_CorruptFileIsProcessingError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fs.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"model": tru`), 0644))

	store, err := NewFileDataStore(path)
	require.NoError(t, err)
	_, err = store.Load()
	var procErr *fserrors.ProcessingError
	assert.ErrorAs(t, err, &procErr)
	assert.False(t, errors.Is(err, ErrNoSavedDocument))
}

func TestFileDataStore_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileDataStore(filepath.Join(dir, "fs.json"))
	require.NoError(t, err)
	require.NoError(t, store.Save(testDoc()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "fs.json", entries[0].Name())
}

func TestFileDataStore_ConcurrentLoadSaveNeverTorn(t *testing.T) {
	store, err := NewFileDataStore(filepath.Join(t.TempDir(), "fs.json"))
	require.NoError(t, err)

	docA := datatypes.Document{"v": "aaaaaaaaaaaaaaaaaaaaaaaa"}
	docB := datatypes.Document{"v": "bbbbbbbbbbbbbbbbbbbbbbbb"}
	require.NoError(t, store.Save(docA))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			doc := docA
			if n%2 == 0 {
				doc = docB
			}
			assert.NoError(t, store.Save(doc))
		}(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			loaded, err := store.Load()
			// Every read observes a complete document, never a torn one.
			require.NoError(t, err)
			v := loaded["v"].(string)
			assert.True(t, v == docA["v"] || v == docB["v"])
		}()
	}
	wg.Wait()
}

func TestMemoryDataStore_LoadBeforeSave(t *testing.T) {
	store := NewMemoryDataStore()
	_, err := store.Load()
	assert.ErrorIs(t, err, ErrNoSavedDocument)
	assert.Equal(t, "", store.Location())
}

func TestMemoryDataStore_RoundTrip(t *testing.T) {
	store := NewMemoryDataStore()
	doc := testDoc()
	require.NoError(t, store.Save(doc))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.True(t, doc.Equal(loaded))
}

func TestMemoryDataStore_IsolatesCallers(t *testing.T) {
	store := NewMemoryDataStore()
	doc := testDoc()
	require.NoError(t, store.Save(doc))

	// Mutating the saved input or a loaded copy must not change the store.
	doc["layout"].(map[string]any)["x"] = float64(99)
	first, err := store.Load()
	require.NoError(t, err)
	first["layout"].(map[string]any)["x"] = float64(42)

	second, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, float64(5), second["layout"].(map[string]any)["x"])
}
