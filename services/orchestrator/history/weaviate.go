// Copyright (C) 2026 Equisight Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/equisight-labs/equisight/services/orchestrator/datatypes"
)

var tracer = otel.Tracer("equisight.orchestrator.history")

// turnClass is the Weaviate class holding persisted exchanges.
const turnClass = "ConversationTurn"

// defaultMaxTurns bounds how many exchanges Load returns.
const defaultMaxTurns = 10

// WeaviateStore implements Store on a Weaviate ConversationTurn class.
//
// # Description
//
// One Weaviate object holds a full exchange (question + answer + session_id
// + timestamp), so Append is a single object creation and is atomic by
// construction. Load reads the newest exchanges for a session and expands
// each into a user turn followed by an assistant turn.
//
// # Thread Safety
//
// WeaviateStore is safe for concurrent use. The underlying Weaviate client
// handles connection pooling.
type WeaviateStore struct {
	client   *weaviate.Client
	maxTurns int
}

// NewWeaviateStore creates a store over the given client. maxTurns bounds
// the number of exchanges Load returns; values < 1 fall back to the
// default.
func NewWeaviateStore(client *weaviate.Client, maxTurns int) *WeaviateStore {
	if maxTurns < 1 {
		slog.Warn("Invalid maxTurns config, using default",
			"provided", maxTurns, "default", defaultMaxTurns)
		maxTurns = defaultMaxTurns
	}
	return &WeaviateStore{client: client, maxTurns: maxTurns}
}

// Load implements the Store interface.
//
// # Description
//
// Queries the newest exchanges for the session (timestamp descending,
// limited to maxTurns), then reverses them so the returned slice is
// oldest-first as prompt rendering expects.
func (s *WeaviateStore) Load(ctx context.Context, sessionID string) ([]datatypes.Turn, error) {
	ctx, span := tracer.Start(ctx, "WeaviateStore.Load")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	// 1. Build the filter
	whereFilter := filters.Where().
		WithPath([]string{"session_id"}).
		WithOperator(filters.Equal).
		WithValueString(sessionID)

	// 2. Sort by timestamp descending (newest first)
	sortBy := graphql.Sort{
		Path:  []string{"timestamp"},
		Order: graphql.Desc,
	}

	// 3. Define fields to retrieve
	fields := []graphql.Field{
		{Name: "session_id"},
		{Name: "question"},
		{Name: "answer"},
		{Name: "timestamp"},
	}

	// 4. Execute the query
	result, err := s.client.GraphQL().Get().
		WithClassName(turnClass).
		WithFields(fields...).
		WithWhere(whereFilter).
		WithSort(sortBy).
		WithLimit(s.maxTurns).
		Do(ctx)

	if err != nil {
		slog.Error("Failed to load session history", "sessionId", sessionID, "error", err)
		return nil, fmt.Errorf("weaviate history query failed: %w", err)
	}

	// 5. Parse the results using the typed parser
	parsed, err := datatypes.ParseGraphQLResponse[datatypes.TurnQueryResponse](result)
	if err != nil {
		slog.Error("Failed to parse history results", "sessionId", sessionID, "error", err)
		return nil, fmt.Errorf("failed to parse history results: %w", err)
	}

	turns := expandExchanges(parsed.Get.ConversationTurn)
	slog.Debug("Loaded session history", "sessionId", sessionID, "turns", len(turns))
	return turns, nil
}

// Append implements the Store interface.
func (s *WeaviateStore) Append(ctx context.Context, sessionID, question, answer string) error {
	ctx, span := tracer.Start(ctx, "WeaviateStore.Append")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	props := datatypes.TurnProperties{
		SessionId: sessionID,
		Question:  question,
		Answer:    answer,
		Timestamp: time.Now().UnixMilli(),
	}

	_, err := s.client.Data().Creator().
		WithClassName(turnClass).
		WithProperties(props.ToMap()).
		Do(ctx)

	if err != nil {
		return fmt.Errorf("failed to save conversation turn to Weaviate: %w", err)
	}

	slog.Info("Successfully saved conversation turn", "sessionId", sessionID)
	return nil
}

// DeleteSession implements the Store interface.
func (s *WeaviateStore) DeleteSession(ctx context.Context, sessionID string) error {
	ctx, span := tracer.Start(ctx, "WeaviateStore.DeleteSession")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	whereFilter := filters.Where().
		WithPath([]string{"session_id"}).
		WithOperator(filters.Equal).
		WithValueString(sessionID)

	response, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(turnClass).
		WithOutput("minimal").
		WithWhere(whereFilter).
		Do(ctx)
	if err != nil {
		slog.Error("Failed to delete session turns from Weaviate", "sessionId", sessionID, "error", err)
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}

	slog.Info("Deleted all turns for session", "sessionId", sessionID, "matches", batchDeleteMatches(response))
	return nil
}

// DeleteTurnsBefore implements the Store interface.
//
// # Limitations
//
//   - Weaviate batch delete caps matches per call; very large backlogs
//     need repeated sweeps. The retention sweeper runs periodically, so
//     the backlog drains across ticks.
func (s *WeaviateStore) DeleteTurnsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, span := tracer.Start(ctx, "WeaviateStore.DeleteTurnsBefore")
	defer span.End()

	whereFilter := filters.Where().
		WithPath([]string{"timestamp"}).
		WithOperator(filters.LessThan).
		WithValueInt(cutoff.UnixMilli())

	response, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(turnClass).
		WithOutput("minimal").
		WithWhere(whereFilter).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired turns: %w", err)
	}

	return batchDeleteMatches(response), nil
}

// batchDeleteMatches reads the matched-object count out of a batch delete
// response, tolerating the nil responses the client returns on some
// error paths.
func batchDeleteMatches(response *models.BatchDeleteResponse) int64 {
	if response == nil || response.Results == nil {
		return 0
	}
	return response.Results.Matches
}

// expandExchanges converts newest-first exchange objects into an
// oldest-first alternating turn slice.
func expandExchanges(exchanges []datatypes.TurnResult) []datatypes.Turn {
	turns := make([]datatypes.Turn, 0, len(exchanges)*2)
	for i := len(exchanges) - 1; i >= 0; i-- {
		turns = append(turns,
			datatypes.Turn{Role: datatypes.RoleUser, Text: exchanges[i].Question},
			datatypes.Turn{Role: datatypes.RoleAssistant, Text: exchanges[i].Answer},
		)
	}
	return turns
}
