// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package errors defines the error taxonomy shared by the flowsheet server.
//
// Three kinds of "missing flowsheet" are kept distinct because each drives
// a different recovery path:
//
//   - ErrFlowsheetUnknown: the id was never registered. A user error.
//   - FlowsheetNotFoundError{Location: LocationDatastore}: registered, but
//     no document was ever persisted. Callers fall back to a first save.
//   - FlowsheetNotFoundError{Location: LocationMemory}: a document exists on
//     disk but the live model is gone (e.g. the process restarted). An
//     internal error.
//
// All other failures are wrapped as DatastoreError (I/O), ProcessingError
// (serialization and parsing) or TooManySavedVersionsError (version probe
// ceiling).
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for flowsheet lookup.
var (
	// ErrFlowsheetUnknown is returned when a flowsheet id was never
	// registered with the server.
	ErrFlowsheetUnknown = errors.New("unknown flowsheet id")

	// ErrFlowsheetNotFound is the common target for both not-found
	// variants; match the concrete FlowsheetNotFoundError to tell the
	// datastore and memory cases apart.
	ErrFlowsheetNotFound = errors.New("flowsheet not found")
)

// Location names where a registered flowsheet failed to be found.
type Location string

const (
	// LocationDatastore means the bound store has no saved document yet.
	LocationDatastore Location = "datastore"

	// LocationMemory means the live model object is not registered.
	LocationMemory Location = "memory"
)

// FlowsheetNotFoundError reports a registered flowsheet that could not be
// found in either the datastore or in memory.
type FlowsheetNotFoundError struct {
	// ID is the canonical flowsheet identifier.
	ID string

	// Location is where the lookup failed.
	Location Location
}

// Error implements the error interface.
func (e *FlowsheetNotFoundError) Error() string {
	return fmt.Sprintf("flowsheet %q not found in %s", e.ID, e.Location)
}

// Is makes errors.Is(err, ErrFlowsheetNotFound) match both variants.
func (e *FlowsheetNotFoundError) Is(target error) bool {
	return target == ErrFlowsheetNotFound
}

// NotFoundInDatastore builds the datastore variant.
func NotFoundInDatastore(id string) *FlowsheetNotFoundError {
	return &FlowsheetNotFoundError{ID: id, Location: LocationDatastore}
}

// NotFoundInMemory builds the memory variant.
func NotFoundInMemory(id string) *FlowsheetNotFoundError {
	return &FlowsheetNotFoundError{ID: id, Location: LocationMemory}
}

// DatastoreError reports an I/O failure opening, reading or writing the
// persistent location backing a store. Never swallowed: save operations
// fail loudly on these.
type DatastoreError struct {
	// Op is the failed operation ("create", "load", "save").
	Op string

	// Path is the backing location, empty for memory-only stores.
	Path string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *DatastoreError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("datastore %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("datastore %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *DatastoreError) Unwrap() error {
	return e.Err
}

// ProcessingError reports that a document could not be turned into or from
// a model: serialization failures, malformed JSON, and integration bugs
// such as saving under an unregistered id.
type ProcessingError struct {
	// Msg describes what was being processed.
	Msg string

	// Err is the underlying cause, may be nil.
	Err error
}

// Error implements the error interface.
func (e *ProcessingError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// Processingf builds a ProcessingError wrapping err.
func Processingf(err error, format string, args ...any) *ProcessingError {
	return &ProcessingError{Msg: fmt.Sprintf(format, args...), Err: err}
}

// TooManySavedVersionsError is returned when the save-path version probe
// hits its ceiling. Old versions are never deleted automatically; the
// caller reports the limit and base name to the user.
type TooManySavedVersionsError struct {
	// Name is the base save name that ran out of versions.
	Name string

	// Limit is the configured version ceiling.
	Limit int
}

// Error implements the error interface.
func (e *TooManySavedVersionsError) Error() string {
	return fmt.Sprintf("found %d numbered files of form %q: too many saved versions",
		e.Limit, e.Name+"-<num>.json")
}
