// Copyright (C) 2026 Equisight Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"strings"

	"github.com/equisight-labs/equisight/services/orchestrator/datatypes"
)

// sourcesDelimiter splits the answer body from the trailing citation list.
const sourcesDelimiter = "SOURCES:"

// SplitAnswer separates a finished answer into its display body and the
// cited source list.
//
// # Description
//
// The generation prompt instructs the model to end its answer with a
// "SOURCES:" line naming the passages it used. SplitAnswer cuts at the
// FIRST occurrence of the delimiter so a pathological answer repeating
// the marker still splits deterministically. When the delimiter is absent
// the whole answer is the body and HasSources is false, which downstream
// uses to skip the evaluation pass.
func SplitAnswer(answer string) datatypes.AnswerResult {
	idx := strings.Index(answer, sourcesDelimiter)
	if idx == -1 {
		return datatypes.AnswerResult{Body: strings.TrimSpace(answer)}
	}

	return datatypes.AnswerResult{
		Body:         strings.TrimSpace(answer[:idx]),
		CitedSources: strings.TrimSpace(answer[idx+len(sourcesDelimiter):]),
		HasSources:   true,
	}
}
