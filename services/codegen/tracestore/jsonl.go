// Copyright (C) 2025 Claro Labs (oss@clarolabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tracestore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/clarolabs/claro/services/codegen/ledger"
)

// FileRecorder appends workflow progress to a JSONL stream, one event per
// line. Unlike the Store it never rewrites earlier lines, so a crashed
// run still leaves every completed round on disk.
type FileRecorder struct {
	mu  sync.Mutex
	w   io.Writer
	c   io.Closer
	enc *json.Encoder
}

// event is one JSONL line.
type event struct {
	Event string        `json:"event"` // "round" or "final"
	At    time.Time     `json:"at"`
	RunID string        `json:"run_id"`
	Round *ledger.Round `json:"round,omitempty"`
	Trace *ledger.Trace `json:"trace,omitempty"`
}

// NewFileRecorder writes events to w. The caller keeps ownership of w.
func NewFileRecorder(w io.Writer) *FileRecorder {
	return &FileRecorder{w: w, enc: json.NewEncoder(w)}
}

// OpenFileRecorder appends to the JSONL file at path, creating it if
// needed. Close releases the file.
func OpenFileRecorder(path string) (*FileRecorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, fmt.Errorf("open trace log %s: %w", path, err)
	}
	r := NewFileRecorder(f)
	r.c = f
	return r, nil
}

// RecordRound appends the completed round.
func (r *FileRecorder) RecordRound(ctx context.Context, trace *ledger.Trace, round ledger.Round) error {
	return r.write(ctx, event{Event: "round", RunID: trace.RunID, Round: &round})
}

// RecordFinal appends the full finalized trace.
func (r *FileRecorder) RecordFinal(ctx context.Context, trace *ledger.Trace) error {
	return r.write(ctx, event{Event: "final", RunID: trace.RunID, Trace: trace})
}

func (r *FileRecorder) write(ctx context.Context, ev event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ev.At = time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enc.Encode(ev); err != nil {
		return fmt.Errorf("append trace event: %w", err)
	}
	return nil
}

// Close releases the underlying file when the recorder owns one.
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.c == nil {
		return nil
	}
	err := r.c.Close()
	r.c = nil
	return err
}
