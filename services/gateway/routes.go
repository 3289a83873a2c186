// Copyright (C) 2025 Claro Labs (oss@clarolabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gateway

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes registers all gateway routes. registry may be nil to skip
// the metrics endpoint.
func SetupRoutes(router *gin.Engine, runner Runner, store TraceReader, registry *prometheus.Registry) {
	router.GET("/health", HealthCheck)
	if registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/v1")
	{
		v1.POST("/generate", HandleGenerate(runner))
		traces := v1.Group("/traces")
		{
			traces.GET("", ListTraces(store))
			traces.GET("/:id", GetTrace(store))
		}
	}
}
