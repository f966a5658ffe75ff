// Copyright (C) 2026 Equisight Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Event tags on the chat stream. Untagged data lines are answer text.
const (
	sessionIDTag = "[SESSION_ID] "
	sourceTag    = "[SOURCE] "
	doneTag      = "[DONE]"
	evalTag      = "[EVAL] "
)

// ChatEventKind classifies one parsed stream event.
type ChatEventKind int

const (
	EventSessionID ChatEventKind = iota
	EventSource
	EventFragment
	EventDone
	EventEval
)

// ChatEvent is one parsed event from the chat stream.
type ChatEvent struct {
	Kind    ChatEventKind
	Payload string
}

// StreamResult accumulates a complete chat exchange.
//
// # Fields
//
//   - SessionID: Server-assigned session, echo it on the next turn.
//   - Answer: Concatenated answer fragments.
//   - Sources: Raw [SOURCE] JSON payloads in announcement order.
//   - Eval: The [EVAL] scores line, empty when evaluation was skipped.
//   - Done: Whether [DONE] arrived. A false value means the answer was
//     truncated and must not be trusted as complete.
type StreamResult struct {
	SessionID string
	Answer    string
	Sources   []string
	Eval      string
	Done      bool
}

// SourceInfo is the subset of the [SOURCE] payload the CLI displays.
type SourceInfo struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	Category  string `json:"category"`
	UpdatedAt string `json:"updated_at"`
}

// StreamClient consumes the orchestrator's streaming chat endpoint.
type StreamClient struct {
	client  *http.Client
	baseURL string
}

// NewStreamClient creates a client for the given orchestrator base URL.
func NewStreamClient(baseURL string, timeout time.Duration) *StreamClient {
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	return &StreamClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Ask sends one question and consumes the event stream.
//
// # Description
//
// Posts to /chat, parses the tagged SSE stream, invokes onEvent for each
// parsed event in arrival order, and returns the accumulated result. A
// stream that ends without [DONE] is reported via Result.Done=false, not
// an error, so the caller can still show the partial answer.
//
// # Inputs
//
//   - ctx: Cancels the in-flight stream.
//   - question: The user's question. Must be non-empty.
//   - sessionID: Session to continue, or empty to start a new one.
//   - onEvent: Optional per-event callback; a non-nil return aborts the
//     stream with that error.
func (c *StreamClient) Ask(ctx context.Context, question, sessionID string,
	onEvent func(ChatEvent) error) (*StreamResult, error) {

	body, err := json.Marshal(map[string]string{"question": question})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	targetURL := c.baseURL + "/chat"
	if sessionID != "" {
		targetURL += "?session_id=" + url.QueryEscape(sessionID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server error (%d): %s", resp.StatusCode, string(errBody))
	}

	return parseStream(resp.Body, onEvent)
}

// parseStream reads SSE lines and classifies them into events.
func parseStream(body io.Reader, onEvent func(ChatEvent) error) (*StreamResult, error) {
	result := &StreamResult{}
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, ":") {
			continue // blank separators and keepalive comments
		}
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}

		event := classifyEvent(payload)
		switch event.Kind {
		case EventSessionID:
			result.SessionID = event.Payload
		case EventSource:
			result.Sources = append(result.Sources, event.Payload)
		case EventFragment:
			result.Answer += event.Payload
		case EventDone:
			result.Done = true
		case EventEval:
			result.Eval = event.Payload
		}

		if onEvent != nil {
			if err := onEvent(event); err != nil {
				return result, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("read stream: %w", err)
	}
	return result, nil
}

// classifyEvent maps one data payload to its event kind.
func classifyEvent(payload string) ChatEvent {
	switch {
	case strings.HasPrefix(payload, sessionIDTag):
		return ChatEvent{Kind: EventSessionID, Payload: strings.TrimPrefix(payload, sessionIDTag)}
	case strings.HasPrefix(payload, sourceTag):
		return ChatEvent{Kind: EventSource, Payload: strings.TrimPrefix(payload, sourceTag)}
	case payload == doneTag:
		return ChatEvent{Kind: EventDone}
	case strings.HasPrefix(payload, evalTag):
		return ChatEvent{Kind: EventEval, Payload: strings.TrimPrefix(payload, evalTag)}
	default:
		return ChatEvent{Kind: EventFragment, Payload: payload}
	}
}

// formatSource renders one [SOURCE] payload for terminal display. Falls
// back to the raw JSON when the payload does not parse.
func formatSource(index int, raw string) string {
	var info SourceInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil || info.Name == "" {
		return fmt.Sprintf("%d. %s", index, raw)
	}
	line := fmt.Sprintf("%d. %s", index, info.Name)
	if info.UpdatedAt != "" {
		line += fmt.Sprintf(" (%s)", info.UpdatedAt)
	}
	if info.URL != "" {
		line += "\n   " + info.URL
	}
	return line
}
