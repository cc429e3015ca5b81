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
	"sync"

	"github.com/AleutianAI/FlowsheetLocal/services/flowsheet/datatypes"
	fserrors "github.com/AleutianAI/FlowsheetLocal/services/flowsheet/errors"
)

// DataStoreManager maps canonical flowsheet ids to their stores. One store
// per flowsheet. Safe for concurrent use.
type DataStoreManager struct {
	mu     sync.RWMutex
	stores map[string]DataStore
}

// NewDataStoreManager creates an empty manager.
func NewDataStoreManager() *DataStoreManager {
	return &DataStoreManager{stores: make(map[string]DataStore)}
}

// Add binds a store to an id. Replacing an existing binding discards the
// prior in-memory reference; the prior store's file, if any, is untouched.
func (m *DataStoreManager) Add(id string, store DataStore) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stores[id] = store
}

// Store returns the store bound to id, or false if id is unknown.
func (m *DataStoreManager) Store(id string) (DataStore, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stores[id]
	return s, ok
}

// Load reads the saved document for id. An unregistered id yields
// ErrFlowsheetUnknown; a registered store with no saved document yields a
// FlowsheetNotFoundError in the datastore location.
func (m *DataStoreManager) Load(id string) (datatypes.Document, error) {
	store, ok := m.Store(id)
	if !ok {
		return nil, fserrors.ErrFlowsheetUnknown
	}
	doc, err := store.Load()
	if err != nil {
		if errors.Is(err, ErrNoSavedDocument) {
			return nil, fserrors.NotFoundInDatastore(id)
		}
		return nil, err
	}
	return doc, nil
}

// Save persists doc via the store bound to id. By the time a save is
// reachable the id must already be registered, so an unknown id is an
// integration bug and reported as a ProcessingError, not a user error.
func (m *DataStoreManager) Save(id string, doc datatypes.Document) error {
	store, ok := m.Store(id)
	if !ok {
		return fserrors.Processingf(nil, "no datastore registered for flowsheet %q", id)
	}
	return store.Save(doc)
}
