// Copyright (C) 2026 Equisight Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads orchestrator settings from the environment and the
// collections manifest.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable the orchestrator reads at startup. Values
// come from environment variables; the retrieval collections come from a
// YAML manifest so collections can be added without a rebuild.
type Config struct {
	// ListenAddr is the HTTP bind address, e.g. ":8000".
	ListenAddr string

	// WeaviateURL is the vector store endpoint.
	WeaviateURL string

	// BackendType selects the LLM backend: "ollama", "openai", "anthropic".
	BackendType string

	// MaxHistoryTurns caps how many stored rounds feed condensation and
	// the prompt.
	MaxHistoryTurns int

	// HistoryTTL is how long conversation turns live before the retention
	// sweeper removes them.
	HistoryTTL time.Duration

	// SweepInterval is how often the retention sweeper runs.
	SweepInterval time.Duration

	// EvalEnabled toggles the post-answer judging pass.
	EvalEnabled bool

	// EvalRatePerSecond caps judge calls across all sessions.
	EvalRatePerSecond float64

	// EvalBurst is the judge limiter burst size.
	EvalBurst int

	// Collections is the ordered retrieval manifest. Order here is fused
	// output order on the wire.
	Collections []CollectionConfig
}

// CollectionConfig describes one retrieval collection.
type CollectionConfig struct {
	// Name is the logical collection name stamped on passages, e.g. "news".
	Name string `yaml:"name"`

	// ClassName is the Weaviate class backing the collection.
	ClassName string `yaml:"class_name"`

	// Cap is the per-request passage limit for this collection.
	Cap int `yaml:"cap"`
}

// collectionsManifest is the YAML shape of the collections file.
type collectionsManifest struct {
	Collections []CollectionConfig `yaml:"collections"`
}

// DefaultCollections is the manifest used when no file is configured.
func DefaultCollections() []CollectionConfig {
	return []CollectionConfig{
		{Name: "news", ClassName: "NewsArticle", Cap: 4},
		{Name: "stock", ClassName: "StockInfo", Cap: 2},
		{Name: "report", ClassName: "AnalystReport", Cap: 4},
	}
}

// Load builds a Config from the environment. COLLECTIONS_FILE, when set,
// must parse and validate; a broken manifest is a startup failure, not a
// silent fallback to defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:        envOr("LISTEN_ADDR", ":8000"),
		WeaviateURL:       envOr("WEAVIATE_SERVICE_URL", "http://localhost:8080"),
		BackendType:       envOr("LLM_BACKEND_TYPE", "ollama"),
		MaxHistoryTurns:   10,
		HistoryTTL:        24 * time.Hour,
		SweepInterval:     10 * time.Minute,
		EvalEnabled:       true,
		EvalRatePerSecond: 1,
		EvalBurst:         2,
		Collections:       DefaultCollections(),
	}

	var err error
	if cfg.MaxHistoryTurns, err = envInt("MAX_HISTORY_TURNS", cfg.MaxHistoryTurns); err != nil {
		return nil, err
	}
	if cfg.HistoryTTL, err = envDuration("HISTORY_TTL", cfg.HistoryTTL); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = envDuration("RETENTION_SWEEP_INTERVAL", cfg.SweepInterval); err != nil {
		return nil, err
	}
	if raw := os.Getenv("EVAL_ENABLED"); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid EVAL_ENABLED %q: %w", raw, err)
		}
		cfg.EvalEnabled = enabled
	}
	if raw := os.Getenv("EVAL_RATE_PER_SECOND"); raw != "" {
		rate, err := strconv.ParseFloat(raw, 64)
		if err != nil || rate <= 0 {
			return nil, fmt.Errorf("invalid EVAL_RATE_PER_SECOND %q", raw)
		}
		cfg.EvalRatePerSecond = rate
	}
	if cfg.EvalBurst, err = envInt("EVAL_BURST", cfg.EvalBurst); err != nil {
		return nil, err
	}

	if path := os.Getenv("COLLECTIONS_FILE"); path != "" {
		collections, err := LoadCollections(path)
		if err != nil {
			return nil, err
		}
		cfg.Collections = collections
	}

	if cfg.MaxHistoryTurns <= 0 {
		return nil, fmt.Errorf("MAX_HISTORY_TURNS must be positive, got %d", cfg.MaxHistoryTurns)
	}
	return cfg, nil
}

// LoadCollections parses and validates a collections manifest file.
func LoadCollections(path string) ([]CollectionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read collections file: %w", err)
	}

	var manifest collectionsManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse collections file %s: %w", path, err)
	}
	if len(manifest.Collections) == 0 {
		return nil, fmt.Errorf("collections file %s defines no collections", path)
	}

	seen := make(map[string]bool, len(manifest.Collections))
	for i, col := range manifest.Collections {
		if col.Name == "" || col.ClassName == "" {
			return nil, fmt.Errorf("collection %d is missing name or class_name", i)
		}
		if col.Cap <= 0 {
			return nil, fmt.Errorf("collection %q has non-positive cap %d", col.Name, col.Cap)
		}
		if seen[col.Name] {
			return nil, fmt.Errorf("duplicate collection name %q", col.Name)
		}
		seen[col.Name] = true
	}
	return manifest.Collections, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, raw)
	}
	return v, nil
}
