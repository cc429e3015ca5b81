// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import "strings"

// parseQuery parses a raw query string into key/value pairs, silently
// skipping any token that is not a single key=value pair. The browser UI
// has historically sent the occasional malformed parameter; dropping the
// bad token keeps the rest of the request usable instead of failing the
// whole parse.
func parseQuery(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	queries := make(map[string]string)
	for _, item := range strings.Split(raw, "&") {
		parts := strings.Split(item, "=")
		if len(parts) != 2 || parts[0] == "" {
			continue
		}
		queries[parts[0]] = parts[1]
	}
	return queries
}

// queryParam returns the named parameter from the tolerantly parsed query.
func queryParam(raw, key string) string {
	return parseQuery(raw)[key]
}
