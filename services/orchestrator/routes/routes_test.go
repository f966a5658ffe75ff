// Copyright (C) 2026 Equisight Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/equisight-labs/equisight/services/orchestrator/datatypes"
	"github.com/equisight-labs/equisight/services/orchestrator/handlers"
)

// noopStore satisfies history.Store for routing tests.
type noopStore struct{}

func (noopStore) Load(ctx context.Context, sessionID string) ([]datatypes.Turn, error) {
	return nil, nil
}
func (noopStore) Append(ctx context.Context, sessionID, question, answer string) error { return nil }
func (noopStore) DeleteSession(ctx context.Context, sessionID string) error            { return nil }
func (noopStore) DeleteTurnsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	SetupRoutes(router, &handlers.Pipeline{}, noopStore{})
	return router
}

// TestSetupRoutes_Health verifies the liveness probe route.
func TestSetupRoutes_Health(t *testing.T) {
	router := newTestEngine(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

// TestSetupRoutes_Metrics verifies the Prometheus scrape route exists.
func TestSetupRoutes_Metrics(t *testing.T) {
	router := newTestEngine(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

// TestSetupRoutes_SessionRoutes verifies the admin routes are mounted
// under /v1/sessions.
func TestSetupRoutes_SessionRoutes(t *testing.T) {
	router := newTestEngine(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/abc/history", nil)
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/v1/sessions/abc", nil)
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// TestSetupRoutes_UnknownRoute verifies unmounted paths 404.
func TestSetupRoutes_UnknownRoute(t *testing.T) {
	router := newTestEngine(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/nope", nil)
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
