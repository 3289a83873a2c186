// Copyright (C) 2025 Claro Labs (oss@clarolabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package gateway exposes the clarification workflow over HTTP.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clarolabs/claro/services/codegen/agent"
	"github.com/clarolabs/claro/services/codegen/ledger"
	"github.com/clarolabs/claro/services/codegen/tracestore"
)

// Runner starts one workflow per request; the orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, requirement string) (*agent.Result, error)
}

// TraceReader serves stored traces; the trace store satisfies it.
type TraceReader interface {
	Get(ctx context.Context, runID string) (*ledger.Trace, error)
	List(ctx context.Context) ([]tracestore.Summary, error)
}

// GenerateRequest is the POST /v1/generate body.
type GenerateRequest struct {
	Requirement string `json:"requirement" binding:"required"`
}

// GenerateResponse is the successful reply, including the budget-exceeded
// best-effort case.
type GenerateResponse struct {
	RunID                string   `json:"run_id"`
	Status               string   `json:"status"`
	FinalRequirement     string   `json:"final_requirement"`
	RequirementVersion   int      `json:"requirement_version"`
	Code                 string   `json:"code"`
	Tests                string   `json:"tests,omitempty"`
	Assumptions          []string `json:"assumptions,omitempty"`
	CorrectionIterations int      `json:"correction_iterations"`
}

// HealthCheck reports service liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleGenerate runs the full clarification workflow synchronously. A
// failed workflow still reports its run id so the partial trace can be
// fetched.
func HandleGenerate(runner Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req GenerateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		slog.Info("Received generate request", "bytes", len(req.Requirement))
		res, err := runner.Run(c.Request.Context(), req.Requirement)
		if err != nil {
			var runID string
			if res != nil {
				runID = res.RunID
			}
			slog.Error("Workflow failed", "run_id", runID, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{
				"error":  "Workflow failed",
				"run_id": runID,
				"detail": err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, GenerateResponse{
			RunID:                res.RunID,
			Status:               string(res.Status),
			FinalRequirement:     res.FinalRequirement.Text,
			RequirementVersion:   res.FinalRequirement.Version,
			Code:                 res.Code,
			Tests:                res.Tests,
			Assumptions:          res.Assumptions,
			CorrectionIterations: res.CorrectionIterations,
		})
	}
}

// GetTrace returns the full stored trace for a run id.
func GetTrace(store TraceReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		runID := c.Param("id")
		trace, err := store.Get(c.Request.Context(), runID)
		if errors.Is(err, tracestore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Trace not found", "run_id": runID})
			return
		}
		if err != nil {
			slog.Error("Trace lookup failed", "run_id", runID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Trace lookup failed"})
			return
		}
		c.JSON(http.StatusOK, trace)
	}
}

// ListTraces returns summaries of every stored run, newest first.
func ListTraces(store TraceReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := store.List(c.Request.Context())
		if err != nil {
			slog.Error("Trace listing failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Trace listing failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"traces": list, "count": len(list)})
	}
}
