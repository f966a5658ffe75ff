// Copyright (C) 2026 Equisight Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestSplitAnswer_WithSources verifies body/citation separation.
func TestSplitAnswer_WithSources(t *testing.T) {
	t.Parallel()

	answer := "하이닉스의 주가가 상승하는 이유는 실적 전망 때문입니다.\n\nSOURCES: SK하이닉스 역대 최대 실적 예상, 반도체 시장 동향"
	result := SplitAnswer(answer)

	assert.Equal(t, "하이닉스의 주가가 상승하는 이유는 실적 전망 때문입니다.", result.Body)
	assert.Equal(t, "SK하이닉스 역대 최대 실적 예상, 반도체 시장 동향", result.CitedSources)
	assert.True(t, result.HasSources)
	assert.NotContains(t, result.Body, "SOURCES:")
}

// TestSplitAnswer_NoSources verifies an uncited answer passes through.
func TestSplitAnswer_NoSources(t *testing.T) {
	t.Parallel()

	result := SplitAnswer("죄송합니다, 잘 모르겠습니다.")
	assert.Equal(t, "죄송합니다, 잘 모르겠습니다.", result.Body)
	assert.Empty(t, result.CitedSources)
	assert.False(t, result.HasSources)
}

// TestSplitAnswer_RepeatedDelimiter verifies the split happens at the
// first occurrence.
func TestSplitAnswer_RepeatedDelimiter(t *testing.T) {
	t.Parallel()

	result := SplitAnswer("body SOURCES: one SOURCES: two")
	assert.Equal(t, "body", result.Body)
	assert.Equal(t, "one SOURCES: two", result.CitedSources)
	assert.True(t, result.HasSources)
}

// TestSplitAnswer_Empty verifies the degenerate case.
func TestSplitAnswer_Empty(t *testing.T) {
	t.Parallel()

	result := SplitAnswer("")
	assert.Empty(t, result.Body)
	assert.False(t, result.HasSources)
}
