// Copyright (C) 2026 Equisight Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command orchestrator starts the Equisight streaming chat server.
//
// # Environment Variables
//
//   - LISTEN_ADDR: HTTP bind address (default: :8000)
//   - LLM_BACKEND_TYPE: LLM provider - ollama, openai, anthropic (default: ollama)
//   - WEAVIATE_SERVICE_URL: Weaviate vector DB URL (default: http://localhost:8080)
//   - COLLECTIONS_FILE: YAML retrieval manifest (optional)
//   - INFLUXDB_URL / INFLUXDB_TOKEN / INFLUXDB_ORG / INFLUXDB_BUCKET:
//     market snapshot source (optional)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: otel-collector:4317)
//   - HISTORY_TTL / RETENTION_SWEEP_INTERVAL / MAX_HISTORY_TURNS
//   - EVAL_ENABLED / EVAL_RATE_PER_SECOND / EVAL_BURST
package main

import (
	"context"
	"log"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/joho/godotenv"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"google.golang.org/grpc/credentials/insecure"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"

	"github.com/equisight-labs/equisight/services/llm"
	"github.com/equisight-labs/equisight/services/orchestrator/config"
	"github.com/equisight-labs/equisight/services/orchestrator/conversation"
	"github.com/equisight-labs/equisight/services/orchestrator/handlers"
	"github.com/equisight-labs/equisight/services/orchestrator/history"
	"github.com/equisight-labs/equisight/services/orchestrator/observability"
	"github.com/equisight-labs/equisight/services/orchestrator/prompt"
	"github.com/equisight-labs/equisight/services/orchestrator/retention"
	"github.com/equisight-labs/equisight/services/orchestrator/retrieval"
	"github.com/equisight-labs/equisight/services/orchestrator/routes"
	"github.com/equisight-labs/equisight/services/orchestrator/snapshot"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("orchestrator-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// newWeaviateClient parses and sanitizes the service URL. Container
// runtimes sometimes pass env values with literal quotes, so trim them
// before parsing.
func newWeaviateClient(rawURL string) (*weaviate.Client, error) {
	rawURL = strings.Trim(rawURL, "\"' ")
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	return weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
}

// newLLMClient selects the generation backend.
func newLLMClient(backendType string) (llm.LLMClient, error) {
	switch backendType {
	case "openai":
		slog.Info("Using OpenAI LLM backend")
		return llm.NewOpenAIClient()
	case "claude", "anthropic":
		slog.Info("Using Anthropic (Claude) LLM backend")
		return llm.NewAnthropicClient()
	case "ollama":
		slog.Info("Using Ollama LLM backend")
		return llm.NewOllamaClient()
	default:
		slog.Warn("LLM_BACKEND_TYPE not set or invalid, defaulting to ollama",
			"backend", backendType)
		return llm.NewOllamaClient()
	}
}

func main() {
	// .env is a local-dev convenience; containers inject real env vars.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	slog.Info("Starting orchestrator",
		"listen_addr", cfg.ListenAddr,
		"llm_backend", cfg.BackendType,
		"weaviate_url", cfg.WeaviateURL,
		"collections", len(cfg.Collections),
	)

	observability.InitMetrics()

	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("Failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	// Weaviate backs both retrieval and session history; without it the
	// service cannot answer anything, so a bad URL is fatal.
	weaviateClient, err := newWeaviateClient(cfg.WeaviateURL)
	if err != nil {
		log.Fatalf("Failed to create Weaviate client: %v", err)
	}

	llmClient, err := newLLMClient(cfg.BackendType)
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}

	// Retrieval collections in manifest order; order here is [SOURCE]
	// order on the wire.
	collections := make([]retrieval.Collection, 0, len(cfg.Collections))
	for _, col := range cfg.Collections {
		collections = append(collections, retrieval.Collection{
			Name:      col.Name,
			Cap:       col.Cap,
			Retriever: retrieval.NewWeaviateRetriever(weaviateClient, col.ClassName, col.Name),
		})
	}

	historyStore := history.NewWeaviateStore(weaviateClient, cfg.MaxHistoryTurns)

	var evaluator handlers.AnswerEvaluator
	if cfg.EvalEnabled {
		evaluator = handlers.NewEvaluator(llmClient, cfg.EvalRatePerSecond, cfg.EvalBurst)
	}

	// Market snapshot is optional; the prompt just skips the quote section
	// when InfluxDB is not configured.
	var quotes snapshot.QuoteProvider
	if influxURL := os.Getenv("INFLUXDB_URL"); influxURL != "" {
		influxClient := influxdb2.NewClient(influxURL, os.Getenv("INFLUXDB_TOKEN"))
		defer influxClient.Close()
		quotes = snapshot.NewInfluxQuoteProvider(influxClient,
			os.Getenv("INFLUXDB_ORG"), os.Getenv("INFLUXDB_BUCKET"))
		slog.Info("Market snapshot enabled", "influxdb_url", influxURL)
	}

	pipeline := handlers.NewPipeline(
		historyStore,
		conversation.NewCondenser(llmClient),
		retrieval.NewFuser(collections),
		prompt.NewAssembler(),
		llmClient,
		evaluator,
		quotes,
	)

	sweeper, err := retention.NewSweeper(historyStore, cfg.HistoryTTL, cfg.SweepInterval)
	if err != nil {
		log.Fatalf("Failed to create retention sweeper: %v", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	router := gin.Default()
	router.Use(otelgin.Middleware("orchestrator-service"))
	routes.SetupRoutes(router, pipeline, historyStore)

	slog.Info("Orchestrator listening", "addr", cfg.ListenAddr)
	if err := router.Run(cfg.ListenAddr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
