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

	"github.com/AleutianAI/vatwatch/services/monitor/handlers"
	"github.com/AleutianAI/vatwatch/services/monitor/middleware"
	"github.com/AleutianAI/vatwatch/services/monitor/store"
	"github.com/AleutianAI/vatwatch/services/monitor/vatsim"
)

// SetupRoutes registers the monitor's REST surface.
func SetupRoutes(router *gin.Engine, content store.ContentClient, feed *vatsim.Client, allowedOrigin string) {
	router.Use(middleware.CORS(allowedOrigin))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.GET("/health", handlers.HealthCheck)

		api.GET("/watchlist", handlers.GetWatchlist(content))
		api.POST("/watchlist", handlers.AddToWatchlist(content, feed))
		api.DELETE("/watchlist/:cid", handlers.RemoveFromWatchlist(content))

		api.POST("/audit/run", handlers.RunAudit(content))
		api.DELETE("/audit/run", handlers.CancelAudit(content))
		api.GET("/audit/:scope", handlers.GetAudit(content))

		api.GET("/presence", handlers.GetPresence(content, feed))
		api.GET("/stats", handlers.GetStats(content))
	}
}
