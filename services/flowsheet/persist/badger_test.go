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
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestBadger(t *testing.T) *badger.DB {
	t.Helper()
	db, err := OpenBadger(BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenBadger_PersistentRequiresPath(t *testing.T) {
	_, err := OpenBadger(BadgerConfig{})
	assert.Error(t, err)
}

func TestOpenBadger_CreatesDirectory(t *testing.T) {
	dir := t.TempDir() + "/nested/db"
	db, err := OpenBadger(BadgerConfig{Path: dir})
	require.NoError(t, err)
	defer db.Close()
}

func TestNewBadgerDataStore_Validation(t *testing.T) {
	db := openTestBadger(t)

	_, err := NewBadgerDataStore(nil, "fs")
	assert.Error(t, err)

	_, err = NewBadgerDataStore(db, "")
	assert.Error(t, err)
}

func TestBadgerDataStore_LoadBeforeSave(t *testing.T) {
	db := openTestBadger(t)
	store, err := NewBadgerDataStore(db, "fs")
	require.NoError(t, err)

	_, err = store.Load()
	assert.ErrorIs(t, err, ErrNoSavedDocument)
}

func TestBadgerDataStore_RoundTrip(t *testing.T) {
	db := openTestBadger(t)
	store, err := NewBadgerDataStore(db, "fs")
	require.NoError(t, err)

	doc := testDoc()
	require.NoError(t, store.Save(doc))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.True(t, doc.Equal(loaded))
	assert.Equal(t, "badger:flowsheet/fs", store.Location())
}

func TestBadgerDataStore_KeysAreIsolated(t *testing.T) {
	db := openTestBadger(t)
	a, err := NewBadgerDataStore(db, "a")
	require.NoError(t, err)
	b, err := NewBadgerDataStore(db, "b")
	require.NoError(t, err)

	require.NoError(t, a.Save(testDoc()))
	_, err = b.Load()
	assert.ErrorIs(t, err, ErrNoSavedDocument)
}

func TestBadgerDataStore_SaveReplaces(t *testing.T) {
	db := openTestBadger(t)
	store, err := NewBadgerDataStore(db, "fs")
	require.NoError(t, err)

	require.NoError(t, store.Save(testDoc()))
	second := testDoc()
	second["layout"].(map[string]any)["x"] = float64(7)
	require.NoError(t, store.Save(second))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, float64(7), loaded["layout"].(map[string]any)["x"])
}
