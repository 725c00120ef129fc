// Package generator defines the code-generation contract: instruction plus
// prior-attempt history in, structured Python code out. Adapters wrap a
// concrete LLM backend; the workflow engine only sees this interface.
package generator

import (
	"context"
	"fmt"

	"github.com/codeloop-dev/codeloop/pkg/task"
)

// Generator produces code for an instruction, incorporating feedback from
// prior failed attempts. Implementations keep no state between calls and
// must be safe for concurrent use by multiple goroutines.
type Generator interface {
	// Name returns the adapter identifier (e.g., "openai").
	Name() string

	// Generate translates the request into code. The returned error is a
	// *Failure for any upstream or structural problem; all such failures
	// are recoverable by regenerating.
	Generate(ctx context.Context, req *Request) (*task.GeneratedCode, error)

	// Optimize refines a raw instruction into a detailed generation prompt
	// and returns the model's reasoning for the refinement.
	Optimize(ctx context.Context, instruction string) (prompt, reasoning string, err error)

	// Close releases adapter resources (HTTP clients, connections).
	Close() error
}

// Request carries everything one generation call needs.
type Request struct {
	// Prompt is the (optimized) generation prompt.
	Prompt string

	// History is the ordered sequence of prior attempts for this task.
	// The adapter folds each attempt's failure text into the user prompt,
	// most recent last, so the model can correct its own mistakes.
	History []task.AttemptRecord
}

// FailureReason classifies why a generation call failed.
type FailureReason string

const (
	// ReasonUnavailable means the backend could not be reached or
	// returned a server-side error.
	ReasonUnavailable FailureReason = "backend_unavailable"

	// ReasonMalformed means the response could not be decoded.
	ReasonMalformed FailureReason = "malformed_response"

	// ReasonNoCode means the response carried no extractable code
	// (missing tool call, schema violation, or empty code field).
	ReasonNoCode FailureReason = "no_extractable_code"
)

// Failure is the typed error for generation problems. Every Failure is
// recoverable: the workflow retries by generating again.
type Failure struct {
	Reason  FailureReason
	Message string
}

// Error implements the error interface.
func (f *Failure) Error() string {
	return fmt.Sprintf("generation failed (%s): %s", f.Reason, f.Message)
}

// NewFailure creates a Failure with a formatted message.
func NewFailure(reason FailureReason, format string, args ...any) *Failure {
	return &Failure{Reason: reason, Message: fmt.Sprintf(format, args...)}
}
