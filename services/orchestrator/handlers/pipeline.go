// Copyright (C) 2026 Equisight Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/equisight-labs/equisight/services/llm"
	"github.com/equisight-labs/equisight/services/orchestrator/datatypes"
	"github.com/equisight-labs/equisight/services/orchestrator/history"
	"github.com/equisight-labs/equisight/services/orchestrator/observability"
	"github.com/equisight-labs/equisight/services/orchestrator/snapshot"
)

var tracer = otel.Tracer("equisight.orchestrator.handlers")

// keepAliveInterval paces the heartbeat comments during long operations.
const keepAliveInterval = 15 * time.Second

// =============================================================================
// Collaborator Interfaces
// =============================================================================

// QueryCondenser rewrites a follow-up question into a standalone query.
type QueryCondenser interface {
	Condense(ctx context.Context, question string, turns []datatypes.Turn) (string, error)
}

// PassageFuser retrieves and fuses passages for a query.
type PassageFuser interface {
	Fuse(ctx context.Context, query string) ([]datatypes.RetrievedPassage, error)
}

// PromptAssembler renders the generation prompt.
type PromptAssembler interface {
	Assemble(question string, passages []datatypes.RetrievedPassage,
		turns []datatypes.Turn, quoteSection string) (string, error)
}

// AnswerEvaluator scores a finished answer.
type AnswerEvaluator interface {
	Evaluate(ctx context.Context, question string,
		passages []datatypes.RetrievedPassage, answerBody string) (datatypes.EvalScores, error)
}

// =============================================================================
// Pipeline
// =============================================================================

// Pipeline runs one streaming chat request end to end.
//
// # Description
//
// Pipeline owns the per-request sequence: load history, condense the
// question, retrieve and fuse passages, assemble the prompt, stream the
// answer, persist the round, and evaluate. Event order on the wire is
// fixed: [SESSION_ID], zero or more [SOURCE], zero or more fragments,
// [DONE], optional [EVAL].
//
// Failure policy:
//   - History load, condensation, and total retrieval failure abort the
//     request before any answer fragment is written.
//   - A mid-stream generation failure ends the stream WITHOUT [DONE] and
//     without persisting, so the client can distinguish a truncated
//     answer from a complete one and the stored history never contains
//     half an answer.
//   - A persistence failure after a fully delivered answer is logged and
//     counted but not surfaced; the client already has the answer.
//   - Evaluation is best-effort; any failure just drops the [EVAL] event.
//
// # Thread Safety
//
// Pipeline is safe for concurrent use; all per-request state lives in Run.
type Pipeline struct {
	historyStore history.Store
	condenser    QueryCondenser
	fuser        PassageFuser
	assembler    PromptAssembler
	llmClient    llm.LLMClient
	evaluator    AnswerEvaluator
	quotes       snapshot.QuoteProvider
}

// NewPipeline creates a Pipeline. quotes and evaluator may be nil; the
// corresponding steps are skipped.
func NewPipeline(store history.Store, condenser QueryCondenser, fuser PassageFuser,
	assembler PromptAssembler, llmClient llm.LLMClient, evaluator AnswerEvaluator,
	quotes snapshot.QuoteProvider) *Pipeline {

	return &Pipeline{
		historyStore: store,
		condenser:    condenser,
		fuser:        fuser,
		assembler:    assembler,
		llmClient:    llmClient,
		evaluator:    evaluator,
		quotes:       quotes,
	}
}

// Run executes the full streaming sequence for one question.
//
// # Inputs
//
//   - ctx: Request context. Cancellation (client disconnect) stops the
//     stream and suppresses [DONE] and persistence.
//   - writer: Stream writer. The session ack is written first, so the SSE
//     response must already be open.
//   - sessionID: Validated session identifier.
//   - question: Validated user question.
//
// # Outputs
//
//   - error: Non-nil when the request aborted before completion. The
//     caller cannot send an HTTP error at that point; the error is for
//     logging and metrics.
func (p *Pipeline) Run(ctx context.Context, writer StreamWriter, sessionID, question string) error {
	ctx, span := tracer.Start(ctx, "Pipeline.Run")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	metrics := observability.DefaultMetrics
	if metrics != nil {
		metrics.StreamStarted()
		defer metrics.StreamEnded()
	}
	start := time.Now()

	// Step 1: Acknowledge the session before any slow work so the client
	// learns its ID even if retrieval takes a while.
	if err := writer.WriteSessionAck(sessionID); err != nil {
		return p.fail(span, metrics, observability.StageInternal, "Failed to write session ack", err)
	}

	// Step 2: Heartbeat until the first fragment is ready.
	stopKeepAlive := p.startKeepAlive(ctx, writer, metrics)

	// Step 3: Load session history.
	turns, err := p.historyStore.Load(ctx, sessionID)
	if err != nil {
		stopKeepAlive()
		return p.fail(span, metrics, observability.StagePersistence, "Failed to load session history", err)
	}

	// Step 4: Condense the question. First turns pass through unchanged.
	condensed, err := p.condenser.Condense(ctx, question, turns)
	if err != nil {
		stopKeepAlive()
		return p.fail(span, metrics, observability.StageCondense, "Query condensation failed", err)
	}
	slog.Debug("Condensed question", "sessionId", sessionID, "condensed", condensed)

	// Step 5: Retrieve and fuse passages with the condensed query.
	passages, err := p.fuser.Fuse(ctx, condensed)
	if err != nil {
		stopKeepAlive()
		return p.fail(span, metrics, observability.StageRetrieval, "Retrieval failed for all collections", err)
	}

	// Step 6: Announce sources in fused order before the answer starts.
	for _, passage := range passages {
		payload, err := passage.SourcePayload()
		if err != nil {
			slog.Warn("Skipping unserializable source", "name", passage.Name, "error", err)
			continue
		}
		if err := writer.WriteSource(payload); err != nil {
			stopKeepAlive()
			return p.fail(span, metrics, observability.StageInternal, "Failed to write source event", err)
		}
	}

	// Step 7: Optional market snapshot. Quote failures never block the
	// answer; the prompt just goes out without the section.
	quoteSection := ""
	if p.quotes != nil {
		if qs, err := p.quotes.Snapshot(ctx); err != nil {
			slog.Warn("Market snapshot unavailable, continuing without quotes", "error", err)
		} else {
			quoteSection = snapshot.RenderQuotes(qs)
		}
	}

	// Step 8: Assemble the generation prompt from the ORIGINAL question.
	generationPrompt, err := p.assembler.Assemble(question, passages, turns, quoteSection)
	if err != nil {
		stopKeepAlive()
		return p.fail(span, metrics, observability.StageInternal, "Prompt assembly failed", err)
	}

	// Step 9: Stream the answer. Fragments are newline-normalized on the
	// wire but accumulated raw so the answer body keeps its layout.
	var answer strings.Builder
	firstFragment := true
	streamErr := p.llmClient.GenerateStream(ctx, generationPrompt, llm.GenerationParams{},
		func(event llm.StreamEvent) error {
			if event.Type != llm.StreamEventToken {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if firstFragment {
				firstFragment = false
				stopKeepAlive()
				if metrics != nil {
					metrics.RecordTimeToFirstFragment(time.Since(start).Seconds())
				}
			}
			answer.WriteString(event.Content)
			return writer.WriteFragment(strings.ReplaceAll(event.Content, "\n", " "))
		})
	stopKeepAlive()

	if streamErr != nil {
		if errors.Is(streamErr, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
			slog.Info("Client disconnected mid-stream", "sessionId", sessionID)
			if metrics != nil {
				metrics.RecordClientDisconnect()
			}
			span.SetStatus(codes.Error, "client disconnected")
			return streamErr
		}
		return p.fail(span, metrics, observability.StageGeneration, "Answer generation failed", streamErr)
	}

	// Step 10: Completion marker. Only now is the answer authoritative.
	if err := writer.WriteDone(); err != nil {
		return p.fail(span, metrics, observability.StageInternal, "Failed to write done event", err)
	}
	if metrics != nil {
		metrics.RecordRequest(true)
		metrics.RecordStreamDuration(time.Since(start).Seconds(), true)
	}

	// Step 11: Persist the completed round. Only the answer body is stored;
	// the SOURCES tail is display metadata and would pollute later
	// condensation prompts if it leaked into history.
	split := SplitAnswer(answer.String())
	if err := p.historyStore.Append(ctx, sessionID, question, split.Body); err != nil {
		slog.Error("Failed to persist conversation round", "sessionId", sessionID, "error", err)
		if metrics != nil {
			metrics.RecordError(observability.StagePersistence)
		}
	}

	// Step 12: Evaluate the answer and emit [EVAL]. Best-effort.
	p.evaluate(ctx, writer, metrics, question, passages, split)

	return nil
}

// evaluate runs the post-answer judging pass.
func (p *Pipeline) evaluate(ctx context.Context, writer StreamWriter,
	metrics *observability.StreamingMetrics, question string,
	passages []datatypes.RetrievedPassage, split datatypes.AnswerResult) {

	if p.evaluator == nil {
		return
	}

	if !split.HasSources {
		slog.Debug("Skipping evaluation, answer cited no sources")
		if metrics != nil {
			metrics.RecordEvalRun("skipped")
		}
		return
	}

	scores, err := p.evaluator.Evaluate(ctx, question, passages, split.Body)
	if err != nil {
		slog.Warn("Answer evaluation failed", "error", err)
		if metrics != nil {
			metrics.RecordEvalRun("error")
		}
		return
	}

	if err := writer.WriteEval(scores); err != nil {
		slog.Warn("Failed to write eval event", "error", err)
		return
	}
	if metrics != nil {
		metrics.RecordEvalRun("success")
	}
}

// startKeepAlive pings the connection until stopped. The returned stop
// function is idempotent.
func (p *Pipeline) startKeepAlive(ctx context.Context, writer StreamWriter,
	metrics *observability.StreamingMetrics) func() {

	done := make(chan struct{})
	stopped := false
	stop := func() {
		if !stopped {
			stopped = true
			close(done)
		}
	}

	go func() {
		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := writer.WriteKeepAlive(); err != nil {
					return
				}
				if metrics != nil {
					metrics.RecordKeepAlive()
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return stop
}

// fail logs, counts, and records an abort in one place.
func (p *Pipeline) fail(span trace.Span, metrics *observability.StreamingMetrics,
	stage observability.Stage, msg string, err error) error {
	slog.Error(msg, "error", err)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if metrics != nil {
		metrics.RecordError(stage)
		metrics.RecordRequest(false)
	}
	return err
}
