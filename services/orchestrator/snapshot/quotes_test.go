// Copyright (C) 2026 Equisight Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestRenderQuotes_Format verifies the labeled block layout.
func TestRenderQuotes_Format(t *testing.T) {
	t.Parallel()

	quotes := []Quote{
		{Symbol: "005930.KS", Name: "삼성전자", Price: 81200, ChangePct: 1.2, Currency: "KRW"},
		{Symbol: "NVDA", Name: "NVIDIA", Price: 131.5, ChangePct: -0.8, Currency: "USD"},
	}

	out := RenderQuotes(quotes)
	assert.Contains(t, out, "Live quotes:")
	assert.Contains(t, out, "- 삼성전자: 81200.00 KRW (+1.20%)")
	assert.Contains(t, out, "- NVIDIA: 131.50 USD (-0.80%)")
}

// TestRenderQuotes_Empty verifies an empty slice yields no section.
func TestRenderQuotes_Empty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", RenderQuotes(nil))
}

// TestRenderQuotes_FallsBackToSymbol verifies the symbol labels a quote
// with no display name.
func TestRenderQuotes_FallsBackToSymbol(t *testing.T) {
	t.Parallel()

	out := RenderQuotes([]Quote{{Symbol: "AMD", Price: 155.25, ChangePct: 0.5, Currency: "USD"}})
	assert.Contains(t, out, "- AMD: 155.25 USD (+0.50%)")
}
