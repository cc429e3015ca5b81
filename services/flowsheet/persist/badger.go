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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/FlowsheetLocal/services/flowsheet/datatypes"
	fserrors "github.com/AleutianAI/FlowsheetLocal/services/flowsheet/errors"
)

// BadgerConfig holds configuration for the embedded BadgerDB backend.
type BadgerConfig struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is
	// true, required otherwise.
	Path string

	// InMemory enables in-memory mode (no disk persistence). Useful for
	// testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal log output. If nil, BadgerDB
	// logging is disabled.
	Logger *slog.Logger
}

// DefaultBadgerConfig returns production defaults: durable writes at the
// given path.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{Path: path, SyncWrites: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenBadger opens a BadgerDB instance for flowsheet storage. The caller
// owns the returned DB and must Close it; multiple BadgerDataStores may
// share one DB, one key each.
func OpenBadger(cfg BadgerConfig) (*badger.DB, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("path is required for persistent database")
		}
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return db, nil
}

// BadgerDataStore persists one flowsheet document under one key in a
// shared BadgerDB instance.
type BadgerDataStore struct {
	db  *badger.DB
	key []byte
}

// NewBadgerDataStore binds a store to one key in db. The key is the
// canonical flowsheet id.
func NewBadgerDataStore(db *badger.DB, id string) (*BadgerDataStore, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	if id == "" {
		return nil, errors.New("id must not be empty")
	}
	return &BadgerDataStore{db: db, key: []byte("flowsheet/" + id)}, nil
}

// Load implements DataStore.
func (s *BadgerDataStore) Load() (datatypes.Document, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNoSavedDocument
		}
		return nil, &fserrors.DatastoreError{Op: "load", Path: s.Location(), Err: err}
	}
	doc, err := datatypes.ParseDocument(data)
	if err != nil {
		return nil, fserrors.Processingf(err, "stored flowsheet at %s is not valid JSON", s.Location())
	}
	return doc, nil
}

// Save implements DataStore. Badger transactions are atomic, so a reader
// sees either the previous or the new document.
func (s *BadgerDataStore) Save(doc datatypes.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fserrors.Processingf(err, "serialize flowsheet for %s", s.Location())
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key, data)
	})
	if err != nil {
		return &fserrors.DatastoreError{Op: "save", Path: s.Location(), Err: err}
	}
	return nil
}

// Location implements DataStore.
func (s *BadgerDataStore) Location() string {
	return "badger:" + string(s.key)
}
