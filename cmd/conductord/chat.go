// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/google/uuid"
	"github.com/r3labs/sse/v2"
	"github.com/spf13/cobra"

	"github.com/teradata-labs/conductor/pkg/types"
)

var (
	chatServerURL      string
	chatUserID         string
	chatConversationID string
	chatAgentType      string
	chatTimeout        time.Duration
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Send one chat turn and stream the response",
	Long: heredoc.Doc(`
		Send a single chat turn to a running conductord server and stream
		the response to the terminal as it arrives.

		The message comes from the arguments, or from stdin when no
		arguments are given. Status and warning chunks go to stderr so
		the content on stdout stays pipeable.

		Conversations are keyed by --user and --conversation. Reuse the
		same pair across invocations to continue a thread; omit
		--conversation to start a fresh one.
	`),
	Example: heredoc.Doc(`
		# One-off question
		conductord chat "what is the weather in Berlin?"

		# Continue a thread, pinned to the research agent
		conductord chat --conversation trip-planning --agent full_research_agent "dig deeper on rail options"

		# Pipe a document in
		cat draft.md | conductord chat --agent editing_agent
	`),
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringVar(&chatServerURL, "server", "http://localhost:2024", "Base URL of the conductord server")
	chatCmd.Flags().StringVar(&chatUserID, "user", "local", "User ID the conversation is keyed by")
	chatCmd.Flags().StringVar(&chatConversationID, "conversation", "", "Conversation ID (generated when empty)")
	chatCmd.Flags().StringVar(&chatAgentType, "agent", "auto", "Agent to dispatch to (auto routes by intent)")
	chatCmd.Flags().DurationVar(&chatTimeout, "timeout", 5*time.Minute, "How long to wait for the turn to finish")
}

func runChat(cmd *cobra.Command, args []string) error {
	message := strings.TrimSpace(strings.Join(args, " "))
	if message == "" {
		message = readMessageFromStdin()
	}
	if message == "" {
		return fmt.Errorf("message cannot be empty")
	}

	conversationID := chatConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
		fmt.Fprintf(os.Stderr, "conversation: %s\n", conversationID)
	}

	body, err := json.Marshal(&types.ChatRequest{
		UserID:         chatUserID,
		ConversationID: conversationID,
		Query:          message,
		AgentType:      chatAgentType,
	})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), chatTimeout)
	defer cancel()

	url := strings.TrimRight(chatServerURL, "/") + "/v1/chat:stream"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("connect to %s (is conductord serve running?): %w", chatServerURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	return streamChunks(resp.Body)
}

// streamChunks reads the SSE stream until the server closes it, printing
// content to stdout and progress to stderr.
func streamChunks(body io.Reader) error {
	reader := sse.NewEventStreamReader(body, 1<<20)
	for {
		event, err := reader.ReadEvent()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("read stream: %w", err)
		}

		for _, line := range bytes.Split(event, []byte("\n")) {
			if !bytes.HasPrefix(line, []byte("data:")) {
				continue
			}
			data := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
			if len(data) == 0 {
				continue
			}

			var chunk types.Chunk
			if err := json.Unmarshal(data, &chunk); err != nil {
				fmt.Fprintf(os.Stderr, "! unparseable chunk: %v\n", err)
				continue
			}

			switch chunk.Type {
			case types.ChunkStatus:
				fmt.Fprintf(os.Stderr, "· %s\n", chunk.Message)
			case types.ChunkWarning:
				fmt.Fprintf(os.Stderr, "! %s\n", chunk.Message)
			case types.ChunkContent:
				fmt.Println(chunk.Message)
			case types.ChunkError:
				return fmt.Errorf("%s", chunk.Message)
			case types.ChunkComplete:
				if chunk.Message != string(types.TaskStatusCompleted) {
					fmt.Fprintf(os.Stderr, "turn ended: %s\n", chunk.Message)
				}
				return nil
			}
		}
	}
}

// readMessageFromStdin collects lines until EOF so heredocs and pipes work.
func readMessageFromStdin() string {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
