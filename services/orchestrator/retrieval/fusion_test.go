// Copyright (C) 2026 Equisight Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/equisight-labs/equisight/services/orchestrator/datatypes"
)

// stubRetriever returns canned passages or a canned error.
type stubRetriever struct {
	passages []datatypes.RetrievedPassage
	err      error
}

func (s *stubRetriever) Retrieve(ctx context.Context, query string, limit int) ([]datatypes.RetrievedPassage, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.passages) > limit {
		return s.passages[:limit], nil
	}
	return s.passages, nil
}

func passagesFor(collection string, n int) []datatypes.RetrievedPassage {
	out := make([]datatypes.RetrievedPassage, n)
	for i := range out {
		out[i] = datatypes.RetrievedPassage{
			Collection: collection,
			Name:       fmt.Sprintf("%s-doc-%d", collection, i),
			Content:    fmt.Sprintf("content %d", i),
		}
	}
	return out
}

// TestFuse_OrderAndCaps verifies fused output follows configuration order
// with each collection limited to its cap.
func TestFuse_OrderAndCaps(t *testing.T) {
	t.Parallel()

	fuser := NewFuser([]Collection{
		{Name: "news", Cap: 4, Retriever: &stubRetriever{passages: passagesFor("news", 6)}},
		{Name: "stock", Cap: 2, Retriever: &stubRetriever{passages: passagesFor("stock", 5)}},
		{Name: "report", Cap: 4, Retriever: &stubRetriever{passages: passagesFor("report", 3)}},
	})

	fused, err := fuser.Fuse(context.Background(), "삼성전자 전망")
	require.NoError(t, err)
	require.Len(t, fused, 4+2+3)

	// News first, then stock, then report.
	for i := 0; i < 4; i++ {
		assert.Equal(t, "news", fused[i].Collection)
	}
	for i := 4; i < 6; i++ {
		assert.Equal(t, "stock", fused[i].Collection)
	}
	for i := 6; i < 9; i++ {
		assert.Equal(t, "report", fused[i].Collection)
	}

	// Within a collection, retriever order is preserved.
	assert.Equal(t, "news-doc-0", fused[0].Name)
	assert.Equal(t, "news-doc-3", fused[3].Name)
	assert.Equal(t, "stock-doc-0", fused[4].Name)
}

// TestFuse_PartialFailureDegrades verifies a failing collection contributes
// nothing while the others still return passages.
func TestFuse_PartialFailureDegrades(t *testing.T) {
	t.Parallel()

	fuser := NewFuser([]Collection{
		{Name: "news", Cap: 4, Retriever: &stubRetriever{err: errors.New("weaviate down")}},
		{Name: "stock", Cap: 2, Retriever: &stubRetriever{passages: passagesFor("stock", 2)}},
	})

	fused, err := fuser.Fuse(context.Background(), "query")
	require.NoError(t, err)
	require.Len(t, fused, 2)
	assert.Equal(t, "stock", fused[0].Collection)
}

// TestFuse_TotalFailureAborts verifies an error when every collection fails.
func TestFuse_TotalFailureAborts(t *testing.T) {
	t.Parallel()

	fuser := NewFuser([]Collection{
		{Name: "news", Cap: 4, Retriever: &stubRetriever{err: errors.New("down")}},
		{Name: "stock", Cap: 2, Retriever: &stubRetriever{err: errors.New("also down")}},
	})

	_, err := fuser.Fuse(context.Background(), "query")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 2 collections failed")
}

// TestFuse_EmptyResultsAreNotErrors verifies collections returning zero
// passages do not count as failures.
func TestFuse_EmptyResultsAreNotErrors(t *testing.T) {
	t.Parallel()

	fuser := NewFuser([]Collection{
		{Name: "news", Cap: 4, Retriever: &stubRetriever{}},
		{Name: "stock", Cap: 2, Retriever: &stubRetriever{}},
	})

	fused, err := fuser.Fuse(context.Background(), "query")
	require.NoError(t, err)
	assert.Empty(t, fused)
}
