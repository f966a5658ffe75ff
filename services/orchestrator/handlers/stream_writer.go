// Copyright (C) 2026 Equisight Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/equisight-labs/equisight/services/orchestrator/datatypes"
)

// Wire protocol tags. Every event is an SSE data line; the leading tag
// (or its absence, for answer fragments) tells the client what follows.
const (
	sessionIDTag = "[SESSION_ID]"
	sourceTag    = "[SOURCE]"
	doneTag      = "[DONE]"
	evalTag      = "[EVAL]"
)

// =============================================================================
// Interface Definition
// =============================================================================

// StreamWriter defines the contract for writing chat stream events to
// HTTP responses.
//
// # Description
//
// StreamWriter abstracts the tagged SSE wire format, enabling testability
// and separation from HTTP response mechanics. Events are plain SSE data
// lines:
//
//	data: [SESSION_ID] <id>
//	data: [SOURCE] <json>
//	data: <answer fragment>
//	data: [DONE]
//	data: [EVAL] Context Relevance: <n>, Groundedness: <n>, Answer Relevance: <n>
//
// Answer fragments carry no tag; anything that does not start with a
// bracketed tag is answer text. Fragments must therefore never contain
// newlines (the pipeline normalizes them to spaces before writing).
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. The keepalive goroutine
// writes concurrently with the pipeline.
//
// # Assumptions
//
//   - Caller has set Content-Type: text/event-stream before writing
//   - Caller has disabled buffering (X-Accel-Buffering: no)
type StreamWriter interface {
	// WriteSessionAck writes the session acknowledgement. Always the first
	// event of a stream.
	WriteSessionAck(sessionID string) error

	// WriteSource writes one retrieved passage as a JSON payload.
	//
	// # Assumptions
	//
	//   - Sources are written in fused retrieval order, before the first
	//     answer fragment.
	WriteSource(payload []byte) error

	// WriteFragment writes one answer fragment.
	//
	// # Limitations
	//
	//   - No batching; each fragment is flushed immediately.
	//
	// # Assumptions
	//
	//   - Fragment contains no newline characters.
	WriteFragment(content string) error

	// WriteDone writes the completion marker.
	//
	// # Assumptions
	//
	//   - Only [EVAL] may follow; never a fragment or source.
	WriteDone() error

	// WriteEval writes the evaluation scores for the finished answer.
	WriteEval(scores datatypes.EvalScores) error

	// WriteKeepAlive sends a comment line to prevent connection timeouts.
	//
	// # Description
	//
	// Sends an SSE comment (": ping\n\n") to keep the connection alive
	// during long operations like retrieval fan-out. SSE comments are
	// ignored by clients but keep the TCP connection active, preventing
	// timeout disconnections from load balancers (AWS ALB, Nginx default
	// 60s).
	WriteKeepAlive() error
}

// =============================================================================
// Struct Definition
// =============================================================================

// streamWriter implements StreamWriter for HTTP SSE responses.
//
// # Thread Safety
//
// Thread-safe via mutex.
//
// # Limitations
//
//   - Cannot be reused across requests.
type streamWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

// =============================================================================
// Constructor
// =============================================================================

// NewStreamWriter creates a StreamWriter for the given ResponseWriter.
//
// # Inputs
//
//   - w: HTTP ResponseWriter. Must implement http.Flusher.
//
// # Outputs
//
//   - StreamWriter: Ready to write events.
//   - error: Non-nil if ResponseWriter doesn't support flushing.
//
// # Assumptions
//
//   - Caller has set SSE headers via SetSSEHeaders().
func NewStreamWriter(w http.ResponseWriter) (StreamWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}

	return &streamWriter{
		writer:  w,
		flusher: flusher,
	}, nil
}

// =============================================================================
// Methods
// =============================================================================

func (w *streamWriter) WriteSessionAck(sessionID string) error {
	return w.writeData(fmt.Sprintf("%s %s", sessionIDTag, sessionID))
}

func (w *streamWriter) WriteSource(payload []byte) error {
	return w.writeData(fmt.Sprintf("%s %s", sourceTag, payload))
}

func (w *streamWriter) WriteFragment(content string) error {
	return w.writeData(content)
}

func (w *streamWriter) WriteDone() error {
	return w.writeData(doneTag)
}

func (w *streamWriter) WriteEval(scores datatypes.EvalScores) error {
	return w.writeData(fmt.Sprintf("%s %s", evalTag, scores.String()))
}

func (w *streamWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// SSE comment format: colon followed by text, then double newline
	if _, err := fmt.Fprintf(w.writer, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}

	w.flusher.Flush()
	return nil
}

// writeData writes one SSE data line and flushes immediately.
func (w *streamWriter) writeData(payload string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := fmt.Fprintf(w.writer, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	w.flusher.Flush()
	return nil
}

// =============================================================================
// Helper Functions
// =============================================================================

// SetSSEHeaders configures HTTP response headers for SSE streaming.
//
// # Description
//
// Sets the required headers for Server-Sent Events:
//   - Content-Type: text/event-stream
//   - Cache-Control: no-cache
//   - Connection: keep-alive
//   - X-Accel-Buffering: no (disables nginx buffering)
//
// Must be called before writing any response body.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ StreamWriter = (*streamWriter)(nil)
