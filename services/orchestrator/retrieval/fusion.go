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

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/equisight-labs/equisight/services/orchestrator/datatypes"
	"github.com/equisight-labs/equisight/services/orchestrator/observability"
)

// Fuser fans a query out to every configured collection concurrently and
// concatenates the capped results in configuration order.
//
// # Description
//
// Fusion is deliberately rank-free: each collection's cap already bounds
// its contribution, and the fixed collection order makes prompt assembly
// deterministic for a given set of retrieval results. A failed collection
// degrades to zero passages; the query only fails when every collection
// fails.
//
// # Thread Safety
//
// Fuser is safe for concurrent use; each Fuse call owns its result slices.
type Fuser struct {
	collections []Collection
}

// NewFuser creates a Fuser over the given collections. Slice order is the
// fused output order.
func NewFuser(collections []Collection) *Fuser {
	return &Fuser{collections: collections}
}

// Fuse retrieves passages from all collections concurrently.
//
// # Description
//
// Each collection is queried with its own cap. Per-collection failures are
// logged, counted, and tolerated; the failing collection simply contributes
// nothing. If every collection fails, Fuse returns an error carrying the
// first failure so the caller can abort the request.
//
// # Inputs
//
//   - ctx: Context for cancellation and timeout.
//   - query: The condensed standalone query.
//
// # Outputs
//
//   - []datatypes.RetrievedPassage: Fused passages in collection order,
//     similarity order within each collection. May be empty.
//   - error: Non-nil only when all collections failed.
func (f *Fuser) Fuse(ctx context.Context, query string) ([]datatypes.RetrievedPassage, error) {
	ctx, span := tracer.Start(ctx, "Fuser.Fuse")
	defer span.End()
	span.SetAttributes(attribute.Int("retrieval.collections", len(f.collections)))

	results := make([][]datatypes.RetrievedPassage, len(f.collections))
	errs := make([]error, len(f.collections))

	// 1. Fan out one goroutine per collection. Goroutines record their
	// error instead of returning it so one failure does not cancel the
	// sibling queries.
	g, gctx := errgroup.WithContext(ctx)
	for i, col := range f.collections {
		g.Go(func() error {
			passages, err := col.Retriever.Retrieve(gctx, query, col.Cap)
			if err != nil {
				errs[i] = err
				return nil
			}
			if len(passages) > col.Cap {
				passages = passages[:col.Cap]
			}
			results[i] = passages
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// 2. Degrade per collection, abort only on total failure.
	failed := 0
	for i, err := range errs {
		if err == nil {
			continue
		}
		failed++
		slog.Warn("Collection retrieval failed, continuing without it",
			"collection", f.collections[i].Name, "error", err)
		if observability.DefaultMetrics != nil {
			observability.DefaultMetrics.RecordRetrievalFailure(f.collections[i].Name)
		}
	}
	if len(f.collections) > 0 && failed == len(f.collections) {
		return nil, fmt.Errorf("all %d collections failed, first error: %w", failed, firstErr(errs))
	}

	// 3. Concatenate in configuration order.
	var fused []datatypes.RetrievedPassage
	for _, passages := range results {
		fused = append(fused, passages...)
	}

	slog.Debug("Fused retrieval results", "passages", len(fused), "failed_collections", failed)
	return fused, nil
}

func firstErr(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
