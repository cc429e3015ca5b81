// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/FlowsheetLocal/services/flowsheet/observability"
)

// Metrics counts requests by route and status class after each handler
// completes.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := strings.TrimPrefix(c.FullPath(), "/")
		if route == "" {
			route = "unmatched"
		}
		status := fmt.Sprintf("%dxx", c.Writer.Status()/100)
		m.RequestsTotal.WithLabelValues(route, status).Inc()
	}
}
