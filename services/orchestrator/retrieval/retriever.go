// Copyright (C) 2026 Equisight Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package retrieval fans a condensed query out across the configured
// knowledge collections and fuses the results into one ordered context set.
package retrieval

import (
	"context"

	"github.com/equisight-labs/equisight/services/orchestrator/datatypes"
)

// Retriever fetches up to limit passages relevant to a query from one
// knowledge collection.
type Retriever interface {
	Retrieve(ctx context.Context, query string, limit int) ([]datatypes.RetrievedPassage, error)
}

// Collection binds a retriever to its logical name and per-query passage
// cap. The order of a Collection slice is the order passages appear in the
// fused result and in the assembled prompt.
type Collection struct {
	Name      string
	Cap       int
	Retriever Retriever
}
