// Copyright (C) 2026 Equisight Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/equisight-labs/equisight/services/orchestrator/datatypes"
)

var tracer = otel.Tracer("equisight.orchestrator.retrieval")

// WeaviateRetriever implements Retriever against one Weaviate class using
// nearText semantic search.
//
// # Description
//
// WeaviateRetriever queries a single knowledge collection (news, stock
// info, analyst reports) whose class schema carries the shared property
// set: name, url, category, updated_at, content. The vectorizer module
// configured on the class handles query embedding server-side.
//
// # Thread Safety
//
// WeaviateRetriever is safe for concurrent use. The underlying Weaviate
// client handles connection pooling.
//
// # Example
//
//	news := NewWeaviateRetriever(client, "NewsArticle", "news")
//	passages, err := news.Retrieve(ctx, "삼성전자 실적 전망", 4)
type WeaviateRetriever struct {
	client     *weaviate.Client
	className  string
	collection string
}

// NewWeaviateRetriever creates a retriever for one Weaviate class.
//
// # Inputs
//
//   - client: Weaviate client for database access.
//   - className: Weaviate class to query (e.g. "NewsArticle").
//   - collection: Logical collection name stamped onto each passage.
func NewWeaviateRetriever(client *weaviate.Client, className, collection string) *WeaviateRetriever {
	return &WeaviateRetriever{
		client:     client,
		className:  className,
		collection: collection,
	}
}

// Retrieve implements the Retriever interface.
//
// # Description
//
// Runs a nearText search against the class and returns up to limit
// passages in similarity order. An empty result is not an error; the
// fusion layer decides what an empty collection means.
//
// # Assumptions
//
//   - The class has a vectorizer module configured (nearText requires one).
//   - The shared property set exists on the class schema.
func (r *WeaviateRetriever) Retrieve(ctx context.Context, query string, limit int) ([]datatypes.RetrievedPassage, error) {
	ctx, span := tracer.Start(ctx, "WeaviateRetriever.Retrieve")
	defer span.End()
	span.SetAttributes(
		attribute.String("retrieval.collection", r.collection),
		attribute.Int("retrieval.limit", limit),
	)

	// 1. Build the nearText search
	nearText := r.client.GraphQL().NearTextArgBuilder().
		WithConcepts([]string{query})

	// 2. Define fields to retrieve
	fields := []graphql.Field{
		{Name: "name"},
		{Name: "url"},
		{Name: "category"},
		{Name: "updated_at"},
		{Name: "content"},
	}

	// 3. Execute the search
	result, err := r.client.GraphQL().Get().
		WithClassName(r.className).
		WithFields(fields...).
		WithNearText(nearText).
		WithLimit(limit).
		Do(ctx)

	if err != nil {
		slog.Error("Weaviate passage search failed",
			"collection", r.collection, "class", r.className, "error", err)
		return nil, fmt.Errorf("weaviate search for %s failed: %w", r.collection, err)
	}

	// 4. Parse the results using the typed parser
	parsed, err := datatypes.ParseGraphQLResponse[datatypes.PassageQueryResponse](result)
	if err != nil {
		slog.Error("Failed to parse passage search results",
			"collection", r.collection, "error", err)
		return nil, fmt.Errorf("failed to parse results for %s: %w", r.collection, err)
	}

	passages := make([]datatypes.RetrievedPassage, 0, len(parsed.Get[r.className]))
	for _, p := range parsed.Get[r.className] {
		passages = append(passages, datatypes.RetrievedPassage{
			Collection: r.collection,
			Name:       p.Name,
			URL:        p.URL,
			Category:   p.Category,
			UpdatedAt:  p.UpdatedAt,
			Content:    p.Content,
		})
	}

	slog.Debug("Retrieved passages", "collection", r.collection, "count", len(passages))
	return passages, nil
}
