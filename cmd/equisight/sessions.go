// Copyright (C) 2026 Equisight Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HistoryTurn is one stored utterance as returned by the history endpoint.
type HistoryTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// SessionClient talks to the orchestrator's session administration routes.
type SessionClient struct {
	client  *http.Client
	baseURL string
}

// NewSessionClient creates a client for the given orchestrator base URL.
func NewSessionClient(baseURL string, timeout time.Duration) *SessionClient {
	if timeout == 0 {
		timeout = time.Minute
	}
	return &SessionClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// History fetches the stored turns for a session, oldest first.
func (c *SessionClient) History(ctx context.Context, sessionID string) ([]HistoryTurn, error) {
	historyURL := fmt.Sprintf("%s/v1/sessions/%s/history", c.baseURL, url.PathEscape(sessionID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, historyURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server error (%d): %s", resp.StatusCode, string(body))
	}

	var historyResp struct {
		SessionID string        `json:"session_id"`
		Turns     []HistoryTurn `json:"turns"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&historyResp); err != nil {
		return nil, fmt.Errorf("parse history: %w", err)
	}
	return historyResp.Turns, nil
}

// Delete removes all stored turns for a session.
func (c *SessionClient) Delete(ctx context.Context, sessionID string) error {
	deleteURL := fmt.Sprintf("%s/v1/sessions/%s", c.baseURL, url.PathEscape(sessionID))

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, deleteURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http delete: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, string(body))
	}
	return nil
}
