// Copyright (C) 2026 Equisight Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"encoding/json"
	"fmt"

	"github.com/weaviate/weaviate/entities/models"
)

// =============================================================================
// Generic GraphQL Response Parser
// =============================================================================

// ParseGraphQLResponse parses a Weaviate GraphQL response into the target type.
//
// # Description
//
// This generic function encapsulates the marshal/unmarshal pattern required to
// convert Weaviate's dynamic response (map[string]models.JSONObject) into a
// strongly-typed Go struct. The target type T must have json tags matching
// the expected response shape.
//
// # Example
//
//	type TurnQueryResponse struct {
//	    Get struct {
//	        ConversationTurn []TurnResult `json:"ConversationTurn"`
//	    } `json:"Get"`
//	}
//
//	resp, err := client.GraphQL().Get().WithClassName("ConversationTurn").Do(ctx)
//	if err != nil { ... }
//	parsed, err := ParseGraphQLResponse[TurnQueryResponse](resp)
//
// # Limitations
//
//   - Requires the target type to exactly match the expected response structure.
//   - Type mismatches will result in zero values, not errors.
func ParseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}

	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}

	return &result, nil
}

// =============================================================================
// Common Weaviate Response Types
// =============================================================================

// PassageResult is one retrieved document from any of the knowledge
// collections. All collections share this property shape.
type PassageResult struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	Category  string `json:"category"`
	UpdatedAt string `json:"updated_at"`
	Content   string `json:"content"`
}

// PassageQueryResponse is the response shape for knowledge collection
// queries. The Get map is keyed by class name, so one type serves every
// configured collection.
type PassageQueryResponse struct {
	Get map[string][]PassageResult `json:"Get"`
}

// TurnResult is a single persisted exchange from a history query.
type TurnResult struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	Timestamp int64  `json:"timestamp"`
}

// TurnQueryResponse is the response shape for ConversationTurn queries.
type TurnQueryResponse struct {
	Get struct {
		ConversationTurn []TurnResult `json:"ConversationTurn"`
	} `json:"Get"`
}

// ToMap converts TurnProperties to the map format required by Weaviate's
// WithProperties() method.
func (p *TurnProperties) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"session_id": p.SessionId,
		"question":   p.Question,
		"answer":     p.Answer,
		"timestamp":  p.Timestamp,
	}
}
