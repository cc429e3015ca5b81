// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers exposes the flowsheet server's operations over HTTP.
//
// No internal error type crosses the transport boundary un-translated:
// every handler maps the server's error taxonomy onto a request error
// (400), a not-found (404), or an internal error (500) and answers with a
// small JSON payload.
package handlers

import (
	"embed"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	fserrors "github.com/AleutianAI/FlowsheetLocal/services/flowsheet/errors"
	"github.com/AleutianAI/FlowsheetLocal/services/flowsheet/server"
)

//go:embed static/index.html
var staticFS embed.FS

var appTemplate = template.Must(template.ParseFS(staticFS, "static/index.html"))

// HealthCheck answers liveness probes.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "flowsheet-visualizer"})
}

// GetApp serves the UI entry page for one flowsheet. The id query
// parameter is required; the page is the embedded index template with the
// flowsheet id substituted in.
func GetApp(srv *server.FlowsheetServer) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := queryParam(c.Request.URL.RawQuery, "id")
		if id == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'id' is required for '/app'"})
			return
		}
		if _, err := srv.Flowsheet(id); errors.Is(err, fserrors.ErrFlowsheetUnknown) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown flowsheet id: " + id})
			return
		}
		c.Status(http.StatusOK)
		c.Header("Content-Type", "text/html; charset=utf-8")
		if err := appTemplate.Execute(c.Writer, gin.H{"FlowsheetID": id}); err != nil {
			slog.Error("failed to render app page", "id", id, "error", err)
		}
	}
}

// GetFlowsheet reconciles and returns the merged flowsheet document.
//
// An unknown id is the user's mistake (404). A registered id that cannot
// be loaded or serialized is ours (500).
func GetFlowsheet(srv *server.FlowsheetServer) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := queryParam(c.Request.URL.RawQuery, "id")
		if id == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'id' is required for '/fs'"})
			return
		}
		merged, err := srv.UpdateFlowsheet(id)
		if err != nil {
			if errors.Is(err, fserrors.ErrFlowsheetUnknown) {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			slog.Error("flowsheet update failed", "id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, merged)
	}
}

// PutFlowsheet stores the document in the request body for the given id.
// Malformed JSON and unregistered ids are request errors; datastore I/O
// failures are internal.
func PutFlowsheet(srv *server.FlowsheetServer) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := queryParam(c.Request.URL.RawQuery, "id")
		if id == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'id' is required for '/fs'"})
			return
		}
		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read request body", "details": err.Error()})
			return
		}
		if err := srv.SaveRawFlowsheet(id, raw); err != nil {
			var processing *fserrors.ProcessingError
			if errors.As(err, &processing) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			slog.Error("flowsheet save failed", "id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.String(http.StatusOK, "success")
	}
}

// GetSetting returns one process-wide setting value. Unknown keys answer
// with an explicit null setting_value rather than an error.
func GetSetting(srv *server.FlowsheetServer) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := queryParam(c.Request.URL.RawQuery, "setting_key")
		if key == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'setting_key' is required for '/setting'"})
			return
		}
		value, _ := srv.Setting(key)
		c.JSON(http.StatusOK, gin.H{"setting_value": value})
	}
}
