// Copyright (C) 2025 Claro Labs (oss@clarolabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/clarolabs/claro/services/gateway"
)

func runServe(cmd *cobra.Command, args []string) error {
	w, err := buildWorkflow(cfg)
	if err != nil {
		return err
	}
	defer w.close()

	if w.store == nil {
		return fmt.Errorf("serve requires storage.trace_dir so traces can be fetched over HTTP")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	gateway.SetupRoutes(router, w.orch, w.store, w.registry)

	addr := cfg.Server.Addr
	if addr == "" {
		addr = ":8745"
	}
	slog.Info("Starting the claro gateway", "addr", addr)
	return router.Run(addr)
}
