// Copyright (C) 2025 Claro Labs (oss@clarolabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tracestore persists workflow traces in an embedded BadgerDB so
// completed and in-flight runs can be listed and replayed after the
// process exits.
package tracestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/clarolabs/claro/services/codegen/ledger"
)

// ErrNotFound is returned when no trace exists for the requested run id.
var ErrNotFound = errors.New("trace not found")

const keyPrefix = "trace/"

// Config holds the store's BadgerDB settings.
type Config struct {
	// Path is the directory for database files. Ignored when InMemory is
	// true, required otherwise.
	Path string

	// InMemory keeps everything in RAM; used by tests.
	InMemory bool

	// SyncWrites forces each commit to disk before returning.
	SyncWrites bool

	// Logger receives BadgerDB's internal logging. Nil disables it.
	Logger *slog.Logger
}

// DefaultConfig returns durable settings for a store at path.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is a trace database. Safe for concurrent use; callers must Close
// it when done.
type Store struct {
	db *badger.DB
}

// Open opens (creating if necessary) the store described by cfg.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for a persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open trace store: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a throwaway store for tests.
func OpenInMemory() (*Store, error) {
	return Open(Config{InMemory: true})
}

// Close releases the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Put upserts the full trace under its run id. Recording the whole trace
// on every round keeps a crash-consistent snapshot of in-flight runs.
func (s *Store) Put(ctx context.Context, trace *ledger.Trace) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if trace.RunID == "" {
		return errors.New("trace has no run id")
	}
	payload, err := json.Marshal(trace)
	if err != nil {
		return fmt.Errorf("encode trace %s: %w", trace.RunID, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+trace.RunID), payload)
	})
	if err != nil {
		return fmt.Errorf("store trace %s: %w", trace.RunID, err)
	}
	return nil
}

// Get loads the trace for the given run id.
func (s *Store) Get(ctx context.Context, runID string) (*ledger.Trace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var trace ledger.Trace
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + runID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &trace)
		})
	})
	if err != nil {
		return nil, err
	}
	return &trace, nil
}

// Summary is the listing view of one stored trace.
type Summary struct {
	RunID      string        `json:"run_id"`
	Status     ledger.Status `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitzero"`
	Rounds     int           `json:"rounds"`
	Corrected  int           `json:"corrected"`
}

// List returns summaries of every stored trace, newest first.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Summary
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var trace ledger.Trace
				if err := json.Unmarshal(val, &trace); err != nil {
					return err
				}
				out = append(out, Summary{
					RunID:      trace.RunID,
					Status:     trace.Status,
					StartedAt:  trace.StartedAt,
					FinishedAt: trace.FinishedAt,
					Rounds:     len(trace.Rounds),
					Corrected:  trace.CorrectionIterations(),
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list traces: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

// Delete removes the trace for the given run id. Missing ids are not an
// error.
func (s *Store) Delete(ctx context.Context, runID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + runID))
	})
}

// RecordRound persists the trace snapshot after a completed round,
// satisfying the orchestrator's Recorder dependency.
func (s *Store) RecordRound(ctx context.Context, trace *ledger.Trace, _ ledger.Round) error {
	return s.Put(ctx, trace)
}

// RecordFinal persists the finalized trace.
func (s *Store) RecordFinal(ctx context.Context, trace *ledger.Trace) error {
	return s.Put(ctx, trace)
}
