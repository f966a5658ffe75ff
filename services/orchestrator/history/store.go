// Copyright (C) 2026 Equisight Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package history persists and loads per-session conversation turns.
package history

import (
	"context"
	"time"

	"github.com/equisight-labs/equisight/services/orchestrator/datatypes"
)

// Store is the session history persistence interface.
//
// # Description
//
// Load returns the session's turns oldest-first, alternating user and
// assistant roles. An unknown session yields an empty slice, not an error.
//
// Append writes a completed round (user question plus assistant answer)
// atomically: a reader never observes the question without its answer.
//
// DeleteSession removes every turn for one session. DeleteTurnsBefore
// removes turns older than the cutoff across all sessions and reports how
// many objects matched.
type Store interface {
	Load(ctx context.Context, sessionID string) ([]datatypes.Turn, error)
	Append(ctx context.Context, sessionID, question, answer string) error
	DeleteSession(ctx context.Context, sessionID string) error
	DeleteTurnsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
