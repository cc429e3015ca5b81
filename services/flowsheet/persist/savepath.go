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
	"fmt"
	"os"
	"path/filepath"

	fserrors "github.com/AleutianAI/FlowsheetLocal/services/flowsheet/errors"
)

// DefaultMaxSavedVersions caps the number of numbered siblings probed for
// one save name. Zero disables the cap.
const DefaultMaxSavedVersions = 100

// DefaultSavePath returns "<name>.json" under dir, or under the current
// directory when dir is empty.
func DefaultSavePath(name, dir string) string {
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, name+".json")
}

// ResolveSavePath decides which file a new store for name should own.
//
//   - overwrite and path exists: truncate and reuse path.
//   - path does not exist: use path.
//   - otherwise probe "<name>-1.json", "<name>-2.json", ... in the same
//     directory and pick the first that does not exist.
//
// maxVersions caps the probe (0 means unbounded); hitting the cap returns
// a TooManySavedVersionsError. The choice is deterministic: identical
// directory contents always yield the same path. Single-process only; no
// cross-process locking is attempted.
func ResolveSavePath(name, path string, overwrite bool, maxVersions int) (string, error) {
	if overwrite {
		if _, err := os.Stat(path); err == nil {
			if err := os.Truncate(path, 0); err != nil {
				return "", &fserrors.DatastoreError{Op: "create", Path: path, Err: err}
			}
		}
		return path, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path, nil
	}

	dir := filepath.Dir(path)
	for n := 1; maxVersions == 0 || n <= maxVersions; n++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s-%d.json", name, n))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
	}
	return "", &fserrors.TooManySavedVersionsError{Name: name, Limit: maxVersions}
}
