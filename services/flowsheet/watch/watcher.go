// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watch observes the save directory for edits made outside the
// server. The server itself is the only writer it knows about, so a write
// event it did not cause means the user (or another tool) touched a saved
// flowsheet file; we log it and bump a counter so the discrepancy is
// visible, but never act on it: the next reconciliation reads the file
// fresh anyway.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/FlowsheetLocal/services/flowsheet/observability"
)

// selfWriteWindow is how long after MarkSelfWrite an event on that path is
// attributed to the server rather than an external editor.
const selfWriteWindow = 2 * time.Second

// Watcher reports external modifications to saved flowsheet files.
type Watcher struct {
	fsw     *fsnotify.Watcher
	log     *slog.Logger
	metrics *observability.Metrics

	mu        sync.Mutex
	selfWrite map[string]time.Time

	// OnChange, when non-nil, is invoked with the path of every modified
	// .json file. Used by tests.
	OnChange func(path string)
}

// New creates a watcher over dir. The returned Watcher is inert until
// Start is called.
func New(dir string, log *slog.Logger, metrics *observability.Metrics) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{
		fsw:       fsw,
		log:       log,
		metrics:   metrics,
		selfWrite: make(map[string]time.Time),
	}, nil
}

// MarkSelfWrite records that the server is about to write path, so the
// filesystem event its atomic rename produces is not reported as an
// external edit. Wire it as the datastore's save notification.
func (w *Watcher) MarkSelfWrite(path string) {
	w.mu.Lock()
	w.selfWrite[filepath.Clean(path)] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) isSelfWrite(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	path = filepath.Clean(path)
	marked, ok := w.selfWrite[path]
	if !ok {
		return false
	}
	if time.Since(marked) >= selfWriteWindow {
		delete(w.selfWrite, path)
		return false
	}
	return true
}

// Start consumes events until ctx is cancelled or the watcher is closed.
// Run it on its own goroutine.
func (w *Watcher) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			name := filepath.Base(event.Name)
			if !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
				// Temp files from our own atomic saves start with a dot.
				continue
			}
			if w.isSelfWrite(event.Name) {
				// The rename of our own atomic save fires a Create event
				// on the target .json name.
				continue
			}
			w.log.Info("saved flowsheet file modified on disk", "path", event.Name)
			if w.metrics != nil {
				w.metrics.ExternalEditsTotal.Inc()
			}
			if w.OnChange != nil {
				w.OnChange(event.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("file watcher error", "error", err)
		}
	}
}

// Close stops the watcher and releases its OS resources.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
