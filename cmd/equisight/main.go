// Copyright (C) 2026 Equisight Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command equisight is the terminal client for the Equisight orchestrator.
//
// # Usage
//
//	# One-shot question
//	equisight ask "삼성전자 실적 전망은?"
//
//	# Interactive multi-turn chat
//	equisight chat
//	equisight chat --resume <session-id>
//
//	# Session administration
//	equisight sessions history <session-id>
//	equisight sessions delete <session-id>
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var serverURL string

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "equisight",
		Short: "Streaming chat client for the Equisight orchestrator",
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server",
		envOr("EQUISIGHT_SERVER_URL", "http://localhost:8000"),
		"orchestrator base URL")

	askCmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a single question and print the streamed answer",
		Args:  cobra.MinimumNArgs(1),
		Run:   runAskCommand,
	}
	askCmd.Flags().String("session", "", "session ID to continue")

	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive multi-turn chat",
		Run:   runChatCommand,
	}
	chatCmd.Flags().String("resume", "", "session ID to resume")

	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and manage chat sessions",
	}
	sessionsCmd.AddCommand(
		&cobra.Command{
			Use:   "history [session-id]",
			Short: "Print the stored turns for a session",
			Args:  cobra.ExactArgs(1),
			Run:   runHistoryCommand,
		},
		&cobra.Command{
			Use:   "delete [session-id]",
			Short: "Delete all stored turns for a session",
			Args:  cobra.ExactArgs(1),
			Run:   runDeleteCommand,
		},
	)

	rootCmd.AddCommand(askCmd, chatCmd, sessionsCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runAskCommand(cmd *cobra.Command, args []string) {
	question := strings.Join(args, " ")
	sessionID, _ := cmd.Flags().GetString("session")

	client := NewStreamClient(serverURL, 5*time.Minute)
	ctx, cancel := signalContext()
	defer cancel()

	result, err := streamOneQuestion(ctx, client, question, sessionID)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	if !result.Done {
		fmt.Fprintln(os.Stderr, "\n(warning: the stream ended before completion, answer may be truncated)")
	}
	fmt.Printf("\nSession: %s\n", result.SessionID)
}

func runChatCommand(cmd *cobra.Command, args []string) {
	sessionID, _ := cmd.Flags().GetString("resume")

	client := NewStreamClient(serverURL, 5*time.Minute)
	ctx, cancel := signalContext()
	defer cancel()

	if sessionID != "" {
		fmt.Printf("Resuming session %s\n", sessionID)
	}
	fmt.Println("Type a question, or /quit to exit.")

	stdin := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !stdin.Scan() {
			return
		}
		question := strings.TrimSpace(stdin.Text())
		if question == "" {
			continue
		}
		if question == "/quit" || question == "/exit" {
			return
		}

		result, err := streamOneQuestion(ctx, client, question, sessionID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
			continue
		}
		if !result.Done {
			fmt.Fprintln(os.Stderr, "\n(warning: answer may be truncated)")
		}
		// Carry the server-assigned session into the next turn.
		sessionID = result.SessionID
	}
}

// streamOneQuestion runs one exchange, rendering events as they arrive.
func streamOneQuestion(ctx context.Context, client *StreamClient,
	question, sessionID string) (*StreamResult, error) {

	sourceCount := 0
	result, err := client.Ask(ctx, question, sessionID, func(event ChatEvent) error {
		switch event.Kind {
		case EventSource:
			sourceCount++
			if sourceCount == 1 {
				fmt.Println("Sources:")
			}
			fmt.Println(formatSource(sourceCount, event.Payload))
		case EventFragment:
			fmt.Print(event.Payload)
		case EventDone:
			fmt.Println()
		case EventEval:
			fmt.Printf("Quality: %s\n", event.Payload)
		}
		return nil
	})
	if err != nil {
		return result, err
	}
	return result, nil
}

func runHistoryCommand(cmd *cobra.Command, args []string) {
	client := NewSessionClient(serverURL, time.Minute)
	ctx, cancel := signalContext()
	defer cancel()

	turns, err := client.History(ctx, args[0])
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	if len(turns) == 0 {
		fmt.Println("(no stored turns)")
		return
	}
	for _, turn := range turns {
		fmt.Printf("[%s] %s\n", turn.Role, turn.Text)
	}
}

func runDeleteCommand(cmd *cobra.Command, args []string) {
	client := NewSessionClient(serverURL, time.Minute)
	ctx, cancel := signalContext()
	defer cancel()

	if err := client.Delete(ctx, args[0]); err != nil {
		log.Fatalf("Error: %v", err)
	}
	fmt.Printf("Deleted session %s\n", args[0])
}

// signalContext cancels on SIGINT/SIGTERM so Ctrl-C tears down the
// in-flight stream cleanly.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
