// Copyright (C) 2025 Claro Labs (oss@clarolabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clarolabs/claro/services/codegen/agent"
	"github.com/clarolabs/claro/services/codegen/ledger"
	"github.com/clarolabs/claro/services/codegen/tracestore"
)

type stubRunner struct {
	result *agent.Result
	err    error
	seen   []string
}

func (s *stubRunner) Run(_ context.Context, requirement string) (*agent.Result, error) {
	s.seen = append(s.seen, requirement)
	return s.result, s.err
}

type stubStore struct {
	traces map[string]*ledger.Trace
}

func (s *stubStore) Get(_ context.Context, runID string) (*ledger.Trace, error) {
	if t, ok := s.traces[runID]; ok {
		return t, nil
	}
	return nil, tracestore.ErrNotFound
}

func (s *stubStore) List(context.Context) ([]tracestore.Summary, error) {
	var out []tracestore.Summary
	for id, t := range s.traces {
		out = append(out, tracestore.Summary{RunID: id, Status: t.Status, Rounds: len(t.Rounds)})
	}
	return out, nil
}

func newTestRouter(runner Runner, store TraceReader) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	SetupRoutes(router, runner, store, prometheus.NewRegistry())
	return router
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(&stubRunner{}, &stubStore{})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestGenerateSuccess(t *testing.T) {
	runner := &stubRunner{result: &agent.Result{
		RunID:                "run-1",
		Status:               ledger.StatusReady,
		FinalRequirement:     ledger.RequirementVersion{Version: 2, Text: "clarified"},
		Code:                 "def f(x: int) -> int:\n    return x * 2",
		CorrectionIterations: 1,
	}}
	router := newTestRouter(runner, &stubStore{})

	body, _ := json.Marshal(GenerateRequest{Requirement: "def f(x: int) -> int:\nDouble x."})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/generate", bytes.NewReader(body)))

	require.Equal(t, http.StatusOK, w.Code)
	var resp GenerateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "run-1", resp.RunID)
	assert.Equal(t, "ready", resp.Status)
	assert.Equal(t, 2, resp.RequirementVersion)
	assert.Contains(t, resp.Code, "return x * 2")
	assert.Equal(t, 1, resp.CorrectionIterations)
	require.Len(t, runner.seen, 1)
}

func TestGenerateRejectsEmptyBody(t *testing.T) {
	router := newTestRouter(&stubRunner{}, &stubStore{})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/generate", bytes.NewReader([]byte(`{}`))))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerateWorkflowFailure(t *testing.T) {
	runner := &stubRunner{
		result: &agent.Result{RunID: "run-bad", Status: ledger.StatusFailed},
		err:    errors.New("writer: signature mismatch"),
	}
	router := newTestRouter(runner, &stubStore{})

	body, _ := json.Marshal(GenerateRequest{Requirement: "something"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/generate", bytes.NewReader(body)))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "run-bad")
	assert.Contains(t, w.Body.String(), "signature mismatch")
}

func TestGetTrace(t *testing.T) {
	trace := ledger.NewTrace("run-1", "req")
	trace.Finalize(ledger.StatusReady, trace.FinalRequirement, "")
	router := newTestRouter(&stubRunner{}, &stubStore{traces: map[string]*ledger.Trace{"run-1": trace}})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/traces/run-1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"run_id":"run-1"`)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/traces/absent", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListTraces(t *testing.T) {
	trace := ledger.NewTrace("run-1", "req")
	router := newTestRouter(&stubRunner{}, &stubStore{traces: map[string]*ledger.Trace{"run-1": trace}})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/traces", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(&stubRunner{}, &stubStore{})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
