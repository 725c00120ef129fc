package workflow

import (
	"fmt"
	"time"

	"github.com/codeloop-dev/codeloop/pkg/task"
)

// Action is the engine's next move after classifying an attempt.
type Action int

const (
	// ActionSuccess ends the task with the attempt's output.
	ActionSuccess Action = iota

	// ActionRetry regenerates with the verdict's feedback.
	ActionRetry

	// ActionFatal ends the task immediately; retrying cannot help.
	ActionFatal
)

// String returns the action name for logging.
func (a Action) String() string {
	switch a {
	case ActionSuccess:
		return "success"
	case ActionRetry:
		return "retry"
	case ActionFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Verdict is the result of classifying one attempt.
type Verdict struct {
	Action Action

	// Feedback is the text handed to the next generation on retry.
	Feedback string

	// Reason explains fatal verdicts.
	Reason string
}

// classify maps a completed attempt record to the engine's next action.
// It is a pure function of the record: generation failures and code
// failures retry, infrastructure failures are fatal, success ends the
// task.
func classify(rec *task.AttemptRecord) Verdict {
	if rec.GenerationError != "" {
		return Verdict{
			Action:   ActionRetry,
			Feedback: "Your previous attempt produced no usable code: " + rec.GenerationError,
		}
	}

	switch rec.Execution.Status {
	case task.ExecutionSucceeded:
		return Verdict{Action: ActionSuccess}
	case task.ExecutionRuntimeError:
		return Verdict{Action: ActionRetry, Feedback: RuntimeFeedback(rec.Execution.Error)}
	case task.ExecutionTimeout:
		// The engine records the full timeout message as the error text.
		return Verdict{Action: ActionRetry, Feedback: rec.Execution.Error}
	case task.ExecutionInfraError:
		return Verdict{Action: ActionFatal, Reason: rec.Execution.Error}
	default:
		return Verdict{Action: ActionFatal, Reason: fmt.Sprintf("unclassifiable execution status %q", rec.Execution.Status)}
	}
}

// RuntimeFeedback builds the retry feedback for a runtime error.
func RuntimeFeedback(stderr string) string {
	return "Your code failed to execute. Error:\n" + stderr
}

// TimeoutFeedback builds the retry feedback for a timed-out execution.
func TimeoutFeedback(limit time.Duration) string {
	return fmt.Sprintf("Your code took longer than %d seconds to run and was terminated. Please optimize for performance.", int(limit/time.Second))
}
