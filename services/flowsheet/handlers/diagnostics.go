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

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/FlowsheetLocal/services/flowsheet/diagnostics"
	fserrors "github.com/AleutianAI/FlowsheetLocal/services/flowsheet/errors"
	"github.com/AleutianAI/FlowsheetLocal/services/flowsheet/server"
)

// runDiagnosticRequest is the body of PUT /run_diagnostic. The id may come
// from the body instead of the query string; the frontend sends it there.
type runDiagnosticRequest struct {
	FunctionName string `json:"function_name" binding:"required"`
	ID           string `json:"id"`
}

// GetDiagnostics lists the diagnostic operations available for a
// flowsheet.
func GetDiagnostics(srv *server.FlowsheetServer) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := queryParam(c.Request.URL.RawQuery, "id")
		if id == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'id' is required for '/diagnostics'"})
			return
		}
		if _, err := srv.Flowsheet(id); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, fserrors.ErrFlowsheetUnknown) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"id":         id,
			"operations": srv.Diagnostics().Names(),
		})
	}
}

// RunDiagnostic executes one allow-listed diagnostic operation against the
// live model and returns its captured output. Failures inside the
// operation, including panics, come back as a structured error payload;
// they never terminate the request.
func RunDiagnostic(srv *server.FlowsheetServer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req runDiagnosticRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
			return
		}
		id := req.ID
		if id == "" {
			id = queryParam(c.Request.URL.RawQuery, "id")
		}
		if id == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "flowsheet id is required"})
			return
		}

		model, err := srv.Flowsheet(id)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, fserrors.ErrFlowsheetUnknown) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		out, err := srv.Diagnostics().Run(c.Request.Context(), req.FunctionName, model)
		if err != nil {
			slog.Error("diagnostics run failed", "id", id, "function", req.FunctionName, "error", err)
			status := http.StatusInternalServerError
			if errors.Is(err, diagnostics.ErrUnknownOperation) {
				status = http.StatusBadRequest
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"diagnostics_runner_result": out})
	}
}
