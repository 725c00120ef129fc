// Command mock-backend runs a deterministic Chat Completions server for
// development and demos. It answers the forced tool calls the service
// makes: optimize_prompt requests get a refined prompt, and
// write_python_code requests get a small working script derived from
// the instruction.
//
// Configuration:
//
//	MOCK_PORT       - Listen port (default: 9090)
//	MOCK_FAIL_FIRST - Return a broken script on the first generation per
//	                  process, exercising the retry path (default: false)
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
	"sync/atomic"
	"syscall"
	"time"
)

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}
	failFirst := os.Getenv("MOCK_FAIL_FIRST") == "true"

	backend := &mockBackend{failFirst: failFirst}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", backend.handleChatCompletions)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	srv := &http.Server{Addr: ":" + port, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock backend starting", "port", port, "fail_first", failFirst)
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

type mockBackend struct {
	failFirst   bool
	generations atomic.Int32
}

// --- Wire types ---

type chatRequest struct {
	Model      string        `json:"model"`
	Messages   []chatMessage `json:"messages"`
	Tools      []toolDef     `json:"tools,omitempty"`
	ToolChoice any           `json:"tool_choice,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type toolDef struct {
	Type     string `json:"type"`
	Function struct {
		Name string `json:"name"`
	} `json:"function"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Index        int     `json:"index"`
	Message      chatMsg `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type chatMsg struct {
	Role      string     `json:"role"`
	Content   *string    `json:"content"`
	ToolCalls []toolCall `json:"tool_calls,omitempty"`
}

type toolCall struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Function funcCall `json:"function"`
}

type funcCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// --- Handler ---

func (b *mockBackend) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":{"message":"invalid request","type":"invalid_request_error"}}`, http.StatusBadRequest)
		return
	}

	toolName := requestedTool(&req)
	slog.Info("chat completion request", "tool", toolName, "messages", len(req.Messages))

	var args map[string]string
	switch toolName {
	case "optimize_prompt":
		args = map[string]string{
			"optimized_prompt": "Write a Python script that does the following, printing the result to stdout: " + lastUserMessage(&req),
			"reasoning":        "Restated the instruction as an explicit script requirement.",
		}

	case "write_python_code":
		args = b.generateCode(&req)

	default:
		// No forced tool: reply with fenced code, exercising the
		// fence-extraction fallback.
		text := "Here is the code:\n```python\nprint(\"hello from mock\")\n```"
		writeChat(w, req.Model, chatMsg{Role: "assistant", Content: &text})
		return
	}

	argJSON, _ := json.Marshal(args)
	writeChat(w, req.Model, chatMsg{
		Role:    "assistant",
		Content: nil,
		ToolCalls: []toolCall{{
			ID:   fmt.Sprintf("call_%d", time.Now().UnixNano()),
			Type: "function",
			Function: funcCall{
				Name:      toolName,
				Arguments: string(argJSON),
			},
		}},
	})
}

// generateCode produces a canned script. With MOCK_FAIL_FIRST the first
// generation raises at runtime so retry and feedback paths light up.
func (b *mockBackend) generateCode(req *chatRequest) map[string]string {
	n := b.generations.Add(1)
	if b.failFirst && n == 1 {
		return map[string]string{
			"task_description": "First attempt, contains a deliberate runtime error.",
			"imports":          "",
			"code":             "raise RuntimeError(\"mock first-attempt failure\")",
		}
	}

	// After feedback arrives, or in the default mode, emit working code.
	instruction := lastUserMessage(req)
	return map[string]string{
		"task_description": "Prints a summary of the requested task.",
		"imports":          "import sys",
		"code": fmt.Sprintf(
			"print(%q)\nsys.stdout.flush()",
			"mock result for: "+firstLine(instruction)),
	}
}

// requestedTool returns the function name from a forced tool_choice, or
// the single offered tool, or empty.
func requestedTool(req *chatRequest) string {
	if m, ok := req.ToolChoice.(map[string]any); ok {
		if fn, ok := m["function"].(map[string]any); ok {
			if name, ok := fn["name"].(string); ok {
				return name
			}
		}
	}
	if len(req.Tools) == 1 {
		return req.Tools[0].Function.Name
	}
	return ""
}

func lastUserMessage(req *chatRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			return req.Messages[i].Content
		}
	}
	return ""
}

func firstLine(s string) string {
	if idx := strings.Index(s, "\n"); idx >= 0 {
		return s[:idx]
	}
	return s
}

func writeChat(w http.ResponseWriter, model string, msg chatMsg) {
	if model == "" {
		model = "mock-model"
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(chatResponse{
		ID:     fmt.Sprintf("chatcmpl-%d", time.Now().UnixNano()),
		Object: "chat.completion",
		Model:  model,
		Choices: []chatChoice{{
			Index:        0,
			Message:      msg,
			FinishReason: "tool_calls",
		}},
	})
}
