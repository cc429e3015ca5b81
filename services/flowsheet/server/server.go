// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server implements the flowsheet model registry and the
// reconciliation flow between live models and their saved documents.
//
// One FlowsheetServer instance serves every flowsheet of a process, so all
// operations take the flowsheet id. The server owns no transport: the gin
// handlers in services/flowsheet/handlers call into it, and tests drive it
// directly. Dependencies (serializer, settings, metrics, diagnostics
// registry) are injected through Config; there is no package-level
// singleton.
package server

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AleutianAI/FlowsheetLocal/services/flowsheet/datatypes"
	"github.com/AleutianAI/FlowsheetLocal/services/flowsheet/diagnostics"
	fserrors "github.com/AleutianAI/FlowsheetLocal/services/flowsheet/errors"
	"github.com/AleutianAI/FlowsheetLocal/services/flowsheet/observability"
	"github.com/AleutianAI/FlowsheetLocal/services/flowsheet/persist"
	"github.com/AleutianAI/FlowsheetLocal/services/flowsheet/reconcile"
)

// Serializer turns an opaque live model into a flowsheet document. The
// model object itself is outside the server's knowledge; the serializer is
// the external collaborator that understands it.
type Serializer interface {
	Serialize(model any, id string) (datatypes.Document, error)
}

// Config assembles a FlowsheetServer's dependencies.
type Config struct {
	// Serializer converts live models to documents. Required.
	Serializer Serializer

	// Settings is the process-wide settings block, copied at construction
	// and read-only afterwards. An example entry is save_time_interval,
	// the poll interval the UI uses to decide when to re-save.
	Settings map[string]any

	// Diagnostics is the allow-list of named diagnostic operations.
	// Optional; when nil an empty registry is used.
	Diagnostics *diagnostics.Registry

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics defaults to a new instance on a private registry.
	Metrics *observability.Metrics
}

// FlowsheetServer maps flowsheet ids to live model objects and their
// datastores. Safe for concurrent use: reads proceed in parallel and a
// read racing a write observes either the pre- or post-write state.
type FlowsheetServer struct {
	mu          sync.RWMutex
	flowsheets  map[string]any
	stores      *persist.DataStoreManager
	serializer  Serializer
	settings    map[string]any
	diagnostics *diagnostics.Registry
	log         *slog.Logger
	metrics     *observability.Metrics
}

// New constructs a server from cfg.
func New(cfg Config) (*FlowsheetServer, error) {
	if cfg.Serializer == nil {
		return nil, errors.New("server: a Serializer is required")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}
	reg := cfg.Diagnostics
	if reg == nil {
		reg = diagnostics.NewRegistry()
	}
	settings := make(map[string]any, len(cfg.Settings))
	for k, v := range cfg.Settings {
		settings[k] = v
	}
	return &FlowsheetServer{
		flowsheets:  make(map[string]any),
		stores:      persist.NewDataStoreManager(),
		serializer:  cfg.Serializer,
		settings:    settings,
		diagnostics: reg,
		log:         log,
		metrics:     metrics,
	}, nil
}

var (
	reservedChars  = regexp.MustCompile(`[^A-Za-z0-9\-._~]`)
	duplicateDashs = regexp.MustCompile(`-+`)
)

// CanonicalName derives the canonical flowsheet id from a user-provided
// name: every character outside the RFC 3986 unreserved set becomes a
// dash, and runs of dashes collapse to one. Idempotent.
func CanonicalName(name string) string {
	return duplicateDashs.ReplaceAllString(reservedChars.ReplaceAllString(name, "-"), "-")
}

// AddFlowsheet registers a live model and its store under the canonical
// form of name. The returned id is the canonical name; renamed reports
// whether canonicalization changed it, so the caller can adjust URLs and
// messages.
//
// The new flowsheet is immediately reconciled against any pre-existing
// saved document; if none exists, the live model is serialized and saved
// for the first time.
func (s *FlowsheetServer) AddFlowsheet(name string, model any, store persist.DataStore) (string, bool, error) {
	id := CanonicalName(name)
	renamed := id != name

	s.mu.Lock()
	s.flowsheets[id] = model
	count := len(s.flowsheets)
	s.mu.Unlock()
	s.metrics.FlowsheetsRegistered.Set(float64(count))

	s.log.Debug("flowsheet registered", "id", id, "store", store.Location())
	s.stores.Add(id, store)

	// Update first, so an existing saved value is merged rather than
	// overwritten.
	if _, err := s.UpdateFlowsheet(id); err != nil {
		var notFound *fserrors.FlowsheetNotFoundError
		if !errors.As(err, &notFound) || notFound.Location != fserrors.LocationDatastore {
			return id, renamed, err
		}
		s.log.Debug("no saved flowsheet found, saving new value", "id", id)
		live, serr := s.serialize(id, model)
		if serr != nil {
			return id, renamed, serr
		}
		if serr := s.saveTo(id, store, live); serr != nil {
			return id, renamed, serr
		}
	}
	return id, renamed, nil
}

// Flowsheet returns the live model for id. A registered id whose model is
// gone (the process restarted and only the saved document remains) yields
// a memory not-found; an id the server has never seen yields
// ErrFlowsheetUnknown.
func (s *FlowsheetServer) Flowsheet(id string) (any, error) {
	s.mu.RLock()
	model, ok := s.flowsheets[id]
	s.mu.RUnlock()
	if ok {
		return model, nil
	}
	if _, known := s.stores.Store(id); known {
		return nil, fserrors.NotFoundInMemory(id)
	}
	return nil, fserrors.ErrFlowsheetUnknown
}

// UpdateFlowsheet reconciles the saved document for id with the freshly
// serialized live model and returns the merged result.
//
// When no live key differs from its stored value no write-back happens:
// the on-disk content stays byte-identical and layout fields curated by
// the UI are left alone. Otherwise the merged document (live values win
// per top-level key, stored-only keys survive) is persisted and returned.
// Repeated calls with an unchanged model write at most once, so a UI
// polling GET /fs does not churn the save file.
func (s *FlowsheetServer) UpdateFlowsheet(id string) (datatypes.Document, error) {
	stored, err := s.stores.Load(id)
	if err != nil {
		return nil, err
	}
	model, err := s.Flowsheet(id)
	if err != nil {
		return nil, err
	}
	live, err := s.serialize(id, model)
	if err != nil {
		return nil, err
	}

	diff := reconcile.Compute(stored, live)
	if diff.Empty() {
		s.log.Debug("stored flowsheet matches the model in memory", "id", id)
		s.metrics.ReconcilesTotal.WithLabelValues("clean").Inc()
		return stored, nil
	}

	s.log.Debug("stored flowsheet and model in memory differ",
		"id", id, "changed_keys", diff.Len())
	merged := diff.Merged()
	if err := s.SaveFlowsheet(id, merged); err != nil {
		return nil, err
	}
	s.metrics.ReconcilesTotal.WithLabelValues("merged").Inc()
	return merged, nil
}

// SaveFlowsheet persists doc via the store registered for id.
func (s *FlowsheetServer) SaveFlowsheet(id string, doc datatypes.Document) error {
	store, ok := s.stores.Store(id)
	if !ok {
		return fserrors.Processingf(nil, "no datastore registered for flowsheet %q", id)
	}
	return s.saveTo(id, store, doc)
}

// SaveRawFlowsheet parses raw JSON from a client and persists it. A parse
// failure is a ProcessingError (a request error at the transport
// boundary), never a panic or a partial save.
func (s *FlowsheetServer) SaveRawFlowsheet(id string, raw []byte) error {
	doc, err := datatypes.ParseDocument(raw)
	if err != nil {
		return fserrors.Processingf(err, "while saving flowsheet %q", id)
	}
	return s.SaveFlowsheet(id, doc)
}

// Setting returns the process-wide setting value for key. Unknown keys are
// a logged warning, not an error: the caller receives (nil, false) and the
// transport reports an explicit unset value.
func (s *FlowsheetServer) Setting(key string) (any, bool) {
	value, ok := s.settings[key]
	if !ok {
		s.log.Warn("setting key is not in the flowsheet settings block", "key", key)
		return nil, false
	}
	return value, true
}

// Diagnostics returns the allow-list registry of diagnostic operations.
func (s *FlowsheetServer) Diagnostics() *diagnostics.Registry {
	return s.diagnostics
}

// Metrics returns the server's metrics instance.
func (s *FlowsheetServer) Metrics() *observability.Metrics {
	return s.metrics
}

func (s *FlowsheetServer) serialize(id string, model any) (datatypes.Document, error) {
	doc, err := s.serializer.Serialize(model, id)
	if err != nil {
		return nil, fserrors.Processingf(err, "cannot serialize flowsheet %q", id)
	}
	normalized, err := doc.Normalize()
	if err != nil {
		return nil, fserrors.Processingf(err, "cannot serialize flowsheet %q", id)
	}
	return normalized, nil
}

func (s *FlowsheetServer) saveTo(id string, store persist.DataStore, doc datatypes.Document) error {
	if err := store.Save(doc); err != nil {
		return err
	}
	s.metrics.SavesTotal.WithLabelValues(storeBackend(store)).Inc()
	return nil
}

func storeBackend(store persist.DataStore) string {
	switch store.(type) {
	case *persist.FileDataStore:
		return "file"
	case *persist.MemoryDataStore:
		return "memory"
	case *persist.BadgerDataStore:
		return "badger"
	default:
		return fmt.Sprintf("%T", store)
	}
}
