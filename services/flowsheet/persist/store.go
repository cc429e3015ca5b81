// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package persist implements durable storage for flowsheet documents.
//
// A DataStore owns exactly one current document. Three backends exist:
//
//   - FileDataStore: one JSON file per flowsheet, written atomically
//     (temp file + rename) so a concurrent reader never observes a
//     truncated document.
//   - MemoryDataStore: in-process only, never touches disk. Used when the
//     caller asked for save=false.
//   - BadgerDataStore: embedded BadgerDB backend, one key per flowsheet.
//
// Version-numbered filenames are decided once, by ResolveSavePath, before
// a store is created for that path. A store's backing location never
// changes after creation.
package persist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"encoding/json"

	"github.com/AleutianAI/FlowsheetLocal/services/flowsheet/datatypes"
	fserrors "github.com/AleutianAI/FlowsheetLocal/services/flowsheet/errors"
)

// ErrNoSavedDocument is returned by Load when the store was never written.
// Callers treat it as "fall back to a first save", unlike a corrupt
// document which is a hard ProcessingError.
var ErrNoSavedDocument = errors.New("no saved document")

// DataStore is the persistence unit bound to one location for one
// flowsheet.
type DataStore interface {
	// Load reads the current document. Returns ErrNoSavedDocument if the
	// store was never written, a ProcessingError if the stored bytes are
	// not a valid document, and a DatastoreError on I/O failure.
	Load() (datatypes.Document, error)

	// Save replaces the current document. A reader running concurrently
	// observes either the previous or the new document, never a torn one.
	Save(doc datatypes.Document) error

	// Location describes the backing location for log and user messages.
	// Empty for memory-only stores.
	Location() string
}

// FileDataStore persists one flowsheet document as a JSON file.
type FileDataStore struct {
	path   string
	mu     sync.Mutex
	onSave func(path string)
}

// NewFileDataStore binds a store to a file path. The parent directory must
// exist and be writable; a DatastoreError is returned otherwise. The file
// itself is not created until the first Save.
func NewFileDataStore(path string) (*FileDataStore, error) {
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &fserrors.DatastoreError{Op: "create", Path: path, Err: err}
	}
	if !info.IsDir() {
		return nil, &fserrors.DatastoreError{
			Op: "create", Path: path,
			Err: fmt.Errorf("parent %s is not a directory", dir),
		}
	}
	return &FileDataStore{path: path}, nil
}

// Load implements DataStore.
func (s *FileDataStore) Load() (datatypes.Document, error) {
	s.mu.Lock()
	data, err := os.ReadFile(s.path)
	s.mu.Unlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSavedDocument
		}
		return nil, &fserrors.DatastoreError{Op: "load", Path: s.path, Err: err}
	}
	if len(data) == 0 {
		// A truncate-and-reuse (overwrite) leaves an empty file behind
		// until the first save lands.
		return nil, ErrNoSavedDocument
	}
	doc, err := datatypes.ParseDocument(data)
	if err != nil {
		return nil, fserrors.Processingf(err, "stored flowsheet at %s is not valid JSON", s.path)
	}
	return doc, nil
}

// Save implements DataStore. The document is written to a temp file in the
// same directory, synced, and renamed over the target so that Load never
// sees a partial write.
func (s *FileDataStore) Save(doc datatypes.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fserrors.Processingf(err, "serialize flowsheet for %s", s.path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.onSave != nil {
		// Announce before the rename lands so a watcher cannot observe
		// the event ahead of the notification.
		s.onSave(s.path)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".flowsheet-*.tmp")
	if err != nil {
		return &fserrors.DatastoreError{Op: "save", Path: s.path, Err: err}
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &fserrors.DatastoreError{Op: "save", Path: s.path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &fserrors.DatastoreError{Op: "save", Path: s.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &fserrors.DatastoreError{Op: "save", Path: s.path, Err: err}
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return &fserrors.DatastoreError{Op: "save", Path: s.path, Err: err}
	}

	success = true
	return nil
}

// NotifySave registers fn to be called with the store's path right before
// each save is written. A directory watcher uses it to tell the server's
// own atomic renames apart from external edits.
func (s *FileDataStore) NotifySave(fn func(path string)) {
	s.mu.Lock()
	s.onSave = fn
	s.mu.Unlock()
}

// Location implements DataStore.
func (s *FileDataStore) Location() string {
	return s.path
}

// MemoryDataStore keeps the current document in process memory only.
type MemoryDataStore struct {
	mu    sync.Mutex
	doc   datatypes.Document
	saved bool
}

// NewMemoryDataStore creates an empty memory-only store.
func NewMemoryDataStore() *MemoryDataStore {
	return &MemoryDataStore{}
}

// Load implements DataStore. Documents are cloned on the way out so later
// saves cannot mutate a value a caller already holds.
func (s *MemoryDataStore) Load() (datatypes.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.saved {
		return nil, ErrNoSavedDocument
	}
	return s.doc.Clone(), nil
}

// Save implements DataStore.
func (s *MemoryDataStore) Save(doc datatypes.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = doc.Clone()
	s.saved = true
	return nil
}

// Location implements DataStore.
func (s *MemoryDataStore) Location() string {
	return ""
}
