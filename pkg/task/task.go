package task

import (
	"strings"
	"time"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusAborted   Status = "aborted"
)

// IsTerminal returns true for states that allow no outgoing transitions.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusAborted
}

// ExecutionStatus classifies the outcome of one sandbox execution.
type ExecutionStatus string

const (
	// ExecutionNotRun means no execution took place (generation failed,
	// or the task was cancelled before the executor was invoked).
	ExecutionNotRun ExecutionStatus = "not_run"

	// ExecutionSucceeded means the code ran to completion with exit code 0.
	ExecutionSucceeded ExecutionStatus = "succeeded"

	// ExecutionRuntimeError means the generated code itself failed:
	// retrying with revised code may succeed.
	ExecutionRuntimeError ExecutionStatus = "runtime_error"

	// ExecutionTimeout means the code exceeded the wall-clock limit.
	ExecutionTimeout ExecutionStatus = "timeout"

	// ExecutionInfraError means the sandbox service, not the code, failed:
	// regenerating the code cannot change the outcome.
	ExecutionInfraError ExecutionStatus = "infra_error"
)

// GeneratedCode is the structured output of one generation call.
type GeneratedCode struct {
	// Description is a short summary of the approach, as produced by the model.
	Description string `json:"description,omitempty"`

	// Imports holds the import statements, one per line.
	Imports string `json:"imports,omitempty"`

	// Code is the executable body, without import statements.
	Code string `json:"code"`
}

// FullSource joins imports and code into one runnable script.
func (g *GeneratedCode) FullSource() string {
	imports := strings.TrimSpace(g.Imports)
	code := strings.TrimSpace(g.Code)
	if imports == "" {
		return code
	}
	return imports + "\n\n" + code
}

// ExecutionOutcome records what happened when one attempt's code ran.
type ExecutionOutcome struct {
	Status   ExecutionStatus `json:"status"`
	Stdout   string          `json:"stdout,omitempty"`
	Error    string          `json:"error,omitempty"`
	ExitCode int             `json:"exit_code,omitempty"`
	Duration time.Duration   `json:"duration_ns,omitempty"`
}

// AttemptRecord is one generation+execution cycle within a task.
// It is created when the cycle starts and never mutated after the
// cycle's classification completes.
type AttemptRecord struct {
	// Index is the 1-based position within the task.
	Index int `json:"index"`

	// Generated is the code produced for this attempt, or nil when
	// generation itself failed.
	Generated *GeneratedCode `json:"generated,omitempty"`

	// GenerationError holds the failure text when Generated is nil.
	GenerationError string `json:"generation_error,omitempty"`

	// Execution records the sandbox outcome. Status is not_run when
	// generation failed or execution never started.
	Execution ExecutionOutcome `json:"execution"`

	// FeedbackConsumed is the error context that was injected into this
	// attempt's generation call, kept for traceability. Empty on the
	// first attempt.
	FeedbackConsumed string `json:"feedback_consumed,omitempty"`
}

// FinalOutput holds the successful result: the full script and its stdout.
type FinalOutput struct {
	Code   string `json:"code"`
	Stdout string `json:"stdout"`
}

// Task is one end-to-end request: an instruction plus the accumulated
// attempt history and final state.
type Task struct {
	ID          string `json:"id"`
	Object      string `json:"object"`
	Instruction string `json:"instruction"`

	// OptimizedPrompt is the refined generation prompt derived from the
	// instruction. Empty when prompt optimization is disabled or failed.
	OptimizedPrompt string `json:"optimized_prompt,omitempty"`

	// GenerateOnly stops the task after the first successful generation
	// without running the code in the sandbox.
	GenerateOnly bool `json:"generate_only,omitempty"`

	Status   Status          `json:"status"`
	Attempts []AttemptRecord `json:"attempts"`

	// FinalOutput is present only when Status is succeeded.
	FinalOutput *FinalOutput `json:"final_output,omitempty"`

	// FailureReason describes why a failed or aborted task ended.
	FailureReason string `json:"failure_reason,omitempty"`

	CreatedAt   int64 `json:"created_at"`
	CompletedAt int64 `json:"completed_at,omitempty"`
}

// New constructs a pending task for the given instruction.
func New(instruction string) *Task {
	return &Task{
		ID:          NewTaskID(),
		Object:      "task",
		Instruction: instruction,
		Status:      StatusPending,
		CreatedAt:   time.Now().Unix(),
	}
}

// LastAttempt returns the most recent attempt, or nil if none exist.
func (t *Task) LastAttempt() *AttemptRecord {
	if len(t.Attempts) == 0 {
		return nil
	}
	return &t.Attempts[len(t.Attempts)-1]
}

// Transition moves the task to a new status after validating the edge
// against the transition table. Terminal states are never left.
func (t *Task) Transition(to Status) error {
	if err := ValidateTransition(t.Status, to); err != nil {
		return err
	}
	t.Status = to
	if to.IsTerminal() {
		t.CompletedAt = time.Now().Unix()
	}
	return nil
}

// Clone returns a deep copy safe to hand to other goroutines while the
// engine keeps appending attempts to the original.
func (t *Task) Clone() *Task {
	c := *t
	c.Attempts = make([]AttemptRecord, len(t.Attempts))
	copy(c.Attempts, t.Attempts)
	if t.FinalOutput != nil {
		out := *t.FinalOutput
		c.FinalOutput = &out
	}
	for i := range c.Attempts {
		if g := c.Attempts[i].Generated; g != nil {
			gc := *g
			c.Attempts[i].Generated = &gc
		}
	}
	return &c
}
