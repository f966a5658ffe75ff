// Copyright (C) 2026 Equisight Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package retention expires old conversation turns on a fixed schedule.
package retention

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("equisight.orchestrator.retention")

// TurnDeleter is the slice of the history store the sweeper needs.
type TurnDeleter interface {
	DeleteTurnsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper periodically deletes conversation turns older than the TTL.
//
// # Description
//
// Sessions have no explicit close; a session "ends" when its turns age
// out. The sweeper runs one deletion pass per interval against the shared
// history store, so a crashed or restarted orchestrator never leaks
// history beyond one TTL plus one interval.
//
// # Limitations
//
//   - Expiry resolution is the sweep interval. A turn can outlive its TTL
//     by up to one interval.
type Sweeper struct {
	store    TurnDeleter
	ttl      time.Duration
	interval time.Duration

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSweeper creates a Sweeper. Both durations must be positive.
func NewSweeper(store TurnDeleter, ttl, interval time.Duration) (*Sweeper, error) {
	if ttl <= 0 {
		return nil, errors.New("retention ttl must be positive")
	}
	if interval <= 0 {
		return nil, errors.New("sweep interval must be positive")
	}
	return &Sweeper{
		store:    store,
		ttl:      ttl,
		interval: interval,
		done:     make(chan struct{}),
	}, nil
}

// Start launches the background sweep loop. The first pass runs after one
// full interval, not immediately, so startup is not serialized behind a
// potentially large delete.
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		slog.Info("Retention sweeper started", "ttl", s.ttl, "interval", s.interval)
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.done:
				return
			}
		}
	}()
}

// Stop halts the sweep loop and waits for an in-flight pass to finish.
// Safe to call more than once.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
	s.wg.Wait()
}

// sweep runs one deletion pass. Errors are logged, never fatal; the next
// tick retries naturally.
func (s *Sweeper) sweep() {
	ctx, span := tracer.Start(context.Background(), "Sweeper.sweep")
	defer span.End()

	cutoff := time.Now().Add(-s.ttl)
	deleted, err := s.store.DeleteTurnsBefore(ctx, cutoff)
	if err != nil {
		slog.Error("Retention sweep failed", "cutoff", cutoff, "error", err)
		span.RecordError(err)
		return
	}
	if deleted > 0 {
		slog.Info("Retention sweep removed expired turns", "deleted", deleted, "cutoff", cutoff)
	}
}
