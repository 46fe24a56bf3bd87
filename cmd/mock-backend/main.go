// Command mock-backend runs a deterministic DIAL-compatible chat
// completions server for manual testing of plauder. Every answer echoes
// the last user message; streamed answers arrive word by word.
//
// Configuration:
//
//	MOCK_PORT  - Listen port (default: 9090)
//	MOCK_EMPTY - When "1", successful responses carry no choices
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: newHandler(os.Getenv("MOCK_EMPTY") == "1"),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock backend starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock backend failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock backend shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

// newHandler builds the mock routes. With empty set, successful
// responses contain zero choices.
func newHandler(empty bool) http.Handler {
	b := &backend{empty: empty}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /openai/deployments/{deployment}/chat/completions", b.handleChatCompletions)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	return mux
}

type backend struct {
	empty bool
}

// --- Request types ---

type chatRequest struct {
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// --- Response types ---

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int     `json:"index"`
	Message      chatMsg `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type chatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// --- Handler ---

func (b *backend) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("api-key") == "" {
		writeError(w, http.StatusUnauthorized, "missing api-key header")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages must not be empty")
		return
	}

	deployment := r.PathValue("deployment")
	text := echo(&req)

	if req.Stream {
		b.handleStreaming(w, deployment, text)
		return
	}

	resp := chatResponse{
		ID:      "chatcmpl-mock",
		Object:  "chat.completion",
		Model:   deployment,
		Choices: []chatChoice{},
		Usage:   usage(&req, text),
	}
	if !b.empty {
		resp.Choices = append(resp.Choices, chatChoice{
			Message:      chatMsg{Role: "assistant", Content: text},
			FinishReason: "stop",
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// --- Streaming ---

func (b *backend) handleStreaming(w http.ResponseWriter, deployment, text string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	send := func(choices []any) {
		data, _ := json.Marshal(map[string]any{
			"id":      "chatcmpl-mock-stream",
			"object":  "chat.completion.chunk",
			"model":   deployment,
			"choices": choices,
		})
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
	delta := func(d map[string]any, finish any) []any {
		return []any{map[string]any{"index": 0, "delta": d, "finish_reason": finish}}
	}

	// Role announcement without content.
	send(delta(map[string]any{"role": "assistant"}, nil))

	fmt.Fprint(w, ": keep-alive\n\n")
	flusher.Flush()

	if b.empty {
		send([]any{})
	} else {
		for _, token := range tokens(text) {
			send(delta(map[string]any{"content": token}, nil))
		}
	}

	send(delta(map[string]any{}, "stop"))

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// --- Helpers ---

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    fmt.Sprint(status),
		},
	})
}

// echo answers with the last user message.
func echo(req *chatRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			return "You said: " + req.Messages[i].Content
		}
	}
	return "Hello, nice day!"
}

// tokens splits text into words, keeping the separating spaces attached
// so that the concatenation of all tokens equals text.
func tokens(text string) []string {
	var out []string
	for text != "" {
		i := strings.IndexByte(text[1:], ' ')
		if i < 0 {
			out = append(out, text)
			break
		}
		out = append(out, text[:i+1])
		text = text[i+1:]
	}
	return out
}

func usage(req *chatRequest, text string) chatUsage {
	prompt := 0
	for _, m := range req.Messages {
		prompt += len(strings.Fields(m.Content))
	}
	completion := len(strings.Fields(text))
	return chatUsage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}
