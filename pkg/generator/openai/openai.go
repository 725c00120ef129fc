// Package openai implements the generator contract against an
// OpenAI-compatible Chat Completions backend. It forces a tool call so the
// model answers with structured fields instead of free-form Markdown, and
// falls back to a configurable extractor for models that answer inline.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/codeloop-dev/codeloop/pkg/generator"
	"github.com/codeloop-dev/codeloop/pkg/task"
)

const (
	codeToolName     = "write_python_code"
	optimizeToolName = "optimize_prompt"
)

var codeToolSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"task_description": {"type": "string", "description": "Description of the task the code solves."},
		"imports": {"type": "string", "description": "All import statements, one per line."},
		"code": {"type": "string", "description": "The executable script body, excluding imports."}
	},
	"required": ["task_description", "imports", "code"]
}`)

var optimizeToolSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"optimized_prompt": {"type": "string", "description": "The refined prompt for the code generation AI."},
		"reasoning": {"type": "string", "description": "Why the prompt was refined this way."}
	},
	"required": ["optimized_prompt", "reasoning"]
}`)

// Adapter implements generator.Generator against a Chat Completions
// backend.
type Adapter struct {
	cfg       Config
	client    *http.Client
	extractor generator.Extractor
}

// Ensure Adapter implements generator.Generator at compile time.
var _ generator.Generator = (*Adapter)(nil)

// New creates a new Adapter with the given configuration.
// Returns an error if the configuration is invalid.
func New(cfg Config) (*Adapter, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("openai: BaseURL is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai: Model is required")
	}

	// Normalize: remove trailing slash from base URL.
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	return &Adapter{
		cfg:       cfg,
		client:    &http.Client{Timeout: cfg.Timeout},
		extractor: generator.FenceExtractor(),
	}, nil
}

// NewWithExtractor creates an Adapter with a custom fallback extractor
// used when the backend answers with plain content instead of the forced
// tool call.
func NewWithExtractor(cfg Config, ex generator.Extractor) (*Adapter, error) {
	a, err := New(cfg)
	if err != nil {
		return nil, err
	}
	a.extractor = ex
	return a, nil
}

// Name returns the adapter identifier.
func (a *Adapter) Name() string {
	return "openai"
}

// Generate requests code for the prompt and prior-attempt feedback.
func (a *Adapter) Generate(ctx context.Context, req *generator.Request) (*task.GeneratedCode, error) {
	chatReq := &chatCompletionRequest{
		Model: a.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: generator.GenerationSystemPrompt},
			{Role: "user", Content: generator.GenerationUserPrompt(req.Prompt, req.History)},
		},
		Tools: []chatTool{{
			Type: "function",
			Function: chatFunctionDef{
				Name:        codeToolName,
				Description: "Record the complete Python solution as structured fields.",
				Parameters:  codeToolSchema,
			},
		}},
		ToolChoice: forcedTool(codeToolName),
		N:          1,
	}
	if a.cfg.Temperature > 0 {
		t := a.cfg.Temperature
		chatReq.Temperature = &t
	}

	msg, err := a.complete(ctx, chatReq)
	if err != nil {
		return nil, err
	}

	args, found := toolArguments(msg, codeToolName)
	if !found {
		// Some backends ignore tool_choice and answer inline.
		if code, ok := a.extractor.Extract(msg.Content); ok {
			return code, nil
		}
		return nil, generator.NewFailure(generator.ReasonNoCode, "response carried neither a %s tool call nor extractable code", codeToolName)
	}

	var parsed pythonCodeArgs
	if err := json.Unmarshal([]byte(args), &parsed); err != nil {
		return nil, generator.NewFailure(generator.ReasonMalformed, "invalid tool arguments: %s", err.Error())
	}
	if strings.TrimSpace(parsed.Code) == "" {
		return nil, generator.NewFailure(generator.ReasonNoCode, "tool call carried an empty code field")
	}

	return &task.GeneratedCode{
		Description: parsed.TaskDescription,
		Imports:     parsed.Imports,
		Code:        parsed.Code,
	}, nil
}

// Optimize refines the raw instruction into a generation prompt.
func (a *Adapter) Optimize(ctx context.Context, instruction string) (string, string, error) {
	chatReq := &chatCompletionRequest{
		Model: a.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: generator.OptimizationSystemPrompt},
			{Role: "user", Content: generator.OptimizationUserPrompt(instruction)},
		},
		Tools: []chatTool{{
			Type: "function",
			Function: chatFunctionDef{
				Name:        optimizeToolName,
				Description: "Record the refined generation prompt and the reasoning behind it.",
				Parameters:  optimizeToolSchema,
			},
		}},
		ToolChoice: forcedTool(optimizeToolName),
		N:          1,
	}

	msg, err := a.complete(ctx, chatReq)
	if err != nil {
		return "", "", err
	}

	args, found := toolArguments(msg, optimizeToolName)
	if !found {
		return "", "", generator.NewFailure(generator.ReasonNoCode, "response carried no %s tool call", optimizeToolName)
	}

	var parsed optimizePromptArgs
	if err := json.Unmarshal([]byte(args), &parsed); err != nil {
		return "", "", generator.NewFailure(generator.ReasonMalformed, "invalid tool arguments: %s", err.Error())
	}
	if strings.TrimSpace(parsed.OptimizedPrompt) == "" {
		return "", "", generator.NewFailure(generator.ReasonNoCode, "tool call carried an empty optimized_prompt field")
	}

	return parsed.OptimizedPrompt, parsed.Reasoning, nil
}

// Close releases adapter resources.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

// complete performs one non-streaming Chat Completions call and returns
// the first choice's message.
func (a *Adapter) complete(ctx context.Context, chatReq *chatCompletionRequest) (*chatMessage, error) {
	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, generator.NewFailure(generator.ReasonMalformed, "failed to marshal request: %s", err.Error())
	}

	url := a.cfg.BaseURL + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, generator.NewFailure(generator.ReasonUnavailable, "failed to create HTTP request: %s", err.Error())
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if a.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}

	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, mapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, mapHTTPError(httpResp)
	}

	var chatResp chatCompletionResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&chatResp); err != nil {
		return nil, generator.NewFailure(generator.ReasonMalformed, "failed to parse backend response: %s", err.Error())
	}
	if len(chatResp.Choices) == 0 {
		return nil, generator.NewFailure(generator.ReasonMalformed, "backend response carried no choices")
	}

	return &chatResp.Choices[0].Message, nil
}

// toolArguments returns the argument string of the named tool call from
// the message, if present.
func toolArguments(msg *chatMessage, name string) (string, bool) {
	for _, tc := range msg.ToolCalls {
		if tc.Function.Name == name {
			return tc.Function.Arguments, true
		}
	}
	return "", false
}

// forcedTool builds the tool_choice value that pins the model to one tool.
func forcedTool(name string) any {
	return map[string]any{
		"type":     "function",
		"function": map[string]any{"name": name},
	}
}
