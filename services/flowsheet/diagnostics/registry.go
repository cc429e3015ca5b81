// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package diagnostics dispatches named diagnostic operations against a
// live flowsheet model.
//
// Operations are invoked by name from the browser UI, so the mapping from
// name to callable is an explicit allow-list: only operations registered
// up front can run, and an unknown name is an error rather than a lookup
// on the model object. Operation failures (including panics) are captured
// and reported as values; they never terminate the serving goroutine.
package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownOperation is returned when a requested operation name is not
// in the allow-list.
var ErrUnknownOperation = errors.New("unknown diagnostics operation")

// Operation computes one diagnostic over a live flowsheet model, writing
// its human-readable report to w.
type Operation func(ctx context.Context, model any, w io.Writer) error

// Registry is the allow-list of diagnostic operations. Safe for concurrent
// use.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]Operation
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]Operation)}
}

// Register adds an operation under name, replacing any previous entry.
func (r *Registry) Register(name string, op Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[name] = op
}

// Names returns the registered operation names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes the named operation against model and returns its captured
// output. A panicking operation is recovered and reported as an error.
func (r *Registry) Run(ctx context.Context, name string, model any) (out string, err error) {
	r.mu.RLock()
	op, ok := r.ops[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownOperation, name)
	}

	var buf strings.Builder
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("diagnostics operation %q panicked: %v", name, rec)
		}
	}()
	if err := op(ctx, model, &buf); err != nil {
		return "", fmt.Errorf("diagnostics operation %q: %w", name, err)
	}
	return buf.String(), nil
}
