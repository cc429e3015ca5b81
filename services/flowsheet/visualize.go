// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package flowsheet assembles a running visualization server around one or
// more live flowsheet models: it resolves the save location (including
// version-numbered siblings), builds the datastore, registers the model,
// and serves the browser UI over HTTP on a local port.
package flowsheet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/FlowsheetLocal/services/flowsheet/datatypes"
	"github.com/AleutianAI/FlowsheetLocal/services/flowsheet/diagnostics"
	fserrors "github.com/AleutianAI/FlowsheetLocal/services/flowsheet/errors"
	"github.com/AleutianAI/FlowsheetLocal/services/flowsheet/observability"
	"github.com/AleutianAI/FlowsheetLocal/services/flowsheet/persist"
	"github.com/AleutianAI/FlowsheetLocal/services/flowsheet/routes"
	"github.com/AleutianAI/FlowsheetLocal/services/flowsheet/server"
	"github.com/AleutianAI/FlowsheetLocal/services/flowsheet/watch"
)

// Storage backends selectable through Options.Backend.
const (
	BackendFile   = "file"
	BackendBadger = "badger"
)

// Options configures one Visualize call.
type Options struct {
	// Name of the flowsheet, shown in the UI and used to derive both the
	// canonical id and the default save path.
	Name string `validate:"required"`

	// Save is where to persist the flowsheet. Empty means
	// "<Name>.json" under SaveDir. Ignored when SaveDisabled is true.
	Save string

	// SaveDisabled turns persistence off entirely: the flowsheet lives in
	// a memory-only store and nothing touches disk.
	SaveDisabled bool

	// SaveDir is prepended to Save when Save is relative or empty.
	// Defaults to the current directory.
	SaveDir string

	// LoadFromSaved reuses an existing save file instead of creating a
	// new numbered version next to it.
	LoadFromSaved bool

	// Overwrite truncates and reuses an existing save file instead of
	// probing for a free numbered sibling.
	Overwrite bool

	// MaxSavedVersions caps the version probe; 0 means unbounded.
	MaxSavedVersions int `validate:"gte=0"`

	// SaveTimeIntervalMs is handed to the UI through the settings block
	// as save_time_interval: how often the UI checks whether the diagram
	// changed and should be re-saved.
	SaveTimeIntervalMs int `validate:"gt=0"`

	// Port to listen on; 0 picks a free port.
	Port int `validate:"gte=0,lte=65535"`

	// Backend selects the datastore implementation for persisted
	// flowsheets.
	Backend string `validate:"oneof=file badger"`

	// Quiet suppresses the startup URL log line.
	Quiet bool

	// Serializer converts the live model to a document. Required.
	Serializer server.Serializer `validate:"required"`

	// Diagnostics is the allow-list of diagnostic operations. Optional.
	Diagnostics *diagnostics.Registry

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics defaults to a fresh instance on a private registry.
	Metrics *observability.Metrics
}

// DefaultOptions returns the options visualize() historically used:
// versioned saves under the current directory, a five second UI save
// interval, and an automatically chosen port.
func DefaultOptions(name string) Options {
	return Options{
		Name:               name,
		LoadFromSaved:      true,
		MaxSavedVersions:   persist.DefaultMaxSavedVersions,
		SaveTimeIntervalMs: 5000,
		Backend:            BackendFile,
		Serializer:         DocumentSerializer{},
	}
}

// Result is what a successful Visualize returns.
type Result struct {
	// ID is the canonical flowsheet id (may differ from Options.Name).
	ID string

	// Renamed reports whether canonicalization changed the requested
	// name.
	Renamed bool

	// Port the HTTP server is listening on.
	Port int

	// URL of the UI entry page for this flowsheet.
	URL string

	// Store is the datastore backing the flowsheet.
	Store persist.DataStore

	// Server is the underlying model registry, useful for adding more
	// flowsheets to the same process.
	Server *server.FlowsheetServer

	httpSrv *http.Server
	watcher *watch.Watcher
	cancel  context.CancelFunc
	closer  io.Closer
}

// Shutdown stops the HTTP server, the save-directory watcher, and any
// database the store holds open.
func (r *Result) Shutdown(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}
	if r.watcher != nil {
		r.watcher.Close()
	}
	err := r.httpSrv.Shutdown(ctx)
	if r.closer != nil {
		if cerr := r.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

var validate = validator.New()

// Visualize builds a datastore for the model, registers it with a fresh
// server instance, and starts serving the UI. It returns immediately; the
// HTTP server runs on its own goroutine until Result.Shutdown.
func Visualize(model any, opts Options) (*Result, error) {
	if err := validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("visualize options: %w", err)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	store, savePath, closer, err := buildStore(opts, log)
	if err != nil {
		return nil, err
	}

	srv, err := server.New(server.Config{
		Serializer:  opts.Serializer,
		Settings:    map[string]any{"save_time_interval": opts.SaveTimeIntervalMs},
		Diagnostics: opts.Diagnostics,
		Logger:      log,
		Metrics:     opts.Metrics,
	})
	if err != nil {
		return nil, err
	}

	id, renamed, err := srv.AddFlowsheet(opts.Name, model, store)
	if err != nil {
		return nil, fmt.Errorf("cannot add flowsheet: %w", err)
	}
	if renamed {
		log.Warn("flowsheet name changed to be URL friendly",
			"old", opts.Name, "new", id)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	routes.SetupRoutes(router, srv)

	host := "127.0.0.1"
	if os.Getenv("DOCKER_CONTAINER") != "" {
		host = "0.0.0.0"
	}
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, opts.Port))
	if err != nil {
		return nil, fmt.Errorf("cannot listen on %s:%d: %w", host, opts.Port, err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	result := &Result{
		ID:      id,
		Renamed: renamed,
		Port:    port,
		URL:     fmt.Sprintf("http://localhost:%d/app?id=%s", port, id),
		Store:   store,
		Server:  srv,
		httpSrv: &http.Server{Handler: router},
		closer:  closer,
	}

	if savePath != "" {
		ctx, cancel := context.WithCancel(context.Background())
		watcher, werr := watch.New(filepath.Dir(savePath), log, srv.Metrics())
		if werr != nil {
			log.Warn("cannot watch save directory", "error", werr)
			cancel()
		} else {
			if fs, ok := store.(*persist.FileDataStore); ok {
				fs.NotifySave(watcher.MarkSelfWrite)
			}
			result.watcher = watcher
			result.cancel = cancel
			go watcher.Start(ctx)
		}
	}

	go func() {
		if err := result.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("flowsheet server stopped", "error", err)
		}
	}()

	if !opts.Quiet {
		log.Info("flowsheet visualization ready", "url", result.URL)
	}
	return result, nil
}

func buildStore(opts Options, log *slog.Logger) (persist.DataStore, string, io.Closer, error) {
	if opts.SaveDisabled {
		return persist.NewMemoryDataStore(), "", nil, nil
	}

	if opts.Backend == BackendBadger {
		dbPath := persist.DefaultSavePath(opts.Name, opts.SaveDir) + ".badgerdb"
		db, err := persist.OpenBadger(persist.DefaultBadgerConfig(dbPath))
		if err != nil {
			return nil, "", nil, &fserrors.DatastoreError{Op: "create", Path: dbPath, Err: err}
		}
		store, err := persist.NewBadgerDataStore(db, server.CanonicalName(opts.Name))
		if err != nil {
			db.Close()
			return nil, "", nil, err
		}
		return store, "", db, nil
	}

	savePath := opts.Save
	if savePath == "" {
		savePath = persist.DefaultSavePath(opts.Name, opts.SaveDir)
	} else if opts.SaveDir != "" && !filepath.IsAbs(savePath) {
		savePath = filepath.Join(opts.SaveDir, savePath)
	}

	if _, err := os.Stat(savePath); err == nil && opts.LoadFromSaved && !opts.Overwrite {
		log.Info("loading saved flowsheet", "path", savePath)
	} else {
		savePath, err = persist.ResolveSavePath(opts.Name, savePath, opts.Overwrite, opts.MaxSavedVersions)
		if err != nil {
			return nil, "", nil, err
		}
	}

	store, err := persist.NewFileDataStore(savePath)
	if err != nil {
		return nil, "", nil, err
	}
	log.Info("saving flowsheet", "path", savePath)
	return store, savePath, nil, nil
}

// DocumentSerializer serializes models that are already documents or are
// JSON-marshalable. It covers the common case where the caller computes
// the document elsewhere (or loads it from a file) and just needs the
// server machinery; real model objects bring their own Serializer.
type DocumentSerializer struct{}

// Serialize implements server.Serializer.
func (DocumentSerializer) Serialize(model any, id string) (datatypes.Document, error) {
	switch m := model.(type) {
	case datatypes.Document:
		return m.Clone(), nil
	case map[string]any:
		return datatypes.Document(m).Clone(), nil
	default:
		return nil, fmt.Errorf("model for %q is not a document (got %T)", id, model)
	}
}
