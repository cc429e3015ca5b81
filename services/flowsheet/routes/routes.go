// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/FlowsheetLocal/services/flowsheet/handlers"
	"github.com/AleutianAI/FlowsheetLocal/services/flowsheet/middleware"
	"github.com/AleutianAI/FlowsheetLocal/services/flowsheet/server"
)

// SetupRoutes wires the flowsheet server's operations onto router. The
// route shape matches what the browser UI expects: flat paths with the
// flowsheet id in the query string.
func SetupRoutes(router *gin.Engine, srv *server.FlowsheetServer) {
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(middleware.Metrics(srv.Metrics()))

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/app", handlers.GetApp(srv))
	router.GET("/fs", handlers.GetFlowsheet(srv))
	router.PUT("/fs", handlers.PutFlowsheet(srv))
	router.GET("/setting", handlers.GetSetting(srv))
	router.GET("/diagnostics", handlers.GetDiagnostics(srv))
	router.PUT("/run_diagnostic", handlers.RunDiagnostic(srv))
}
