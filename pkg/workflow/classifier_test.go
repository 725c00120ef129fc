package workflow

import (
	"strings"
	"testing"
	"time"

	"github.com/codeloop-dev/codeloop/pkg/task"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		rec  task.AttemptRecord
		want Action
	}{
		{
			name: "success",
			rec:  task.AttemptRecord{Execution: task.ExecutionOutcome{Status: task.ExecutionSucceeded}},
			want: ActionSuccess,
		},
		{
			name: "runtime error",
			rec:  task.AttemptRecord{Execution: task.ExecutionOutcome{Status: task.ExecutionRuntimeError, Error: "boom"}},
			want: ActionRetry,
		},
		{
			name: "timeout",
			rec:  task.AttemptRecord{Execution: task.ExecutionOutcome{Status: task.ExecutionTimeout, Error: "too slow"}},
			want: ActionRetry,
		},
		{
			name: "generation failure",
			rec:  task.AttemptRecord{GenerationError: "no tool call"},
			want: ActionRetry,
		},
		{
			name: "infra error",
			rec:  task.AttemptRecord{Execution: task.ExecutionOutcome{Status: task.ExecutionInfraError, Error: "429"}},
			want: ActionFatal,
		},
		{
			name: "unknown status",
			rec:  task.AttemptRecord{Execution: task.ExecutionOutcome{Status: "mystery"}},
			want: ActionFatal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(&tt.rec)
			if got.Action != tt.want {
				t.Errorf("classify() action = %s, want %s", got.Action, tt.want)
			}
			if got.Action == ActionRetry && got.Feedback == "" {
				t.Error("retry verdict must carry feedback")
			}
			if got.Action == ActionFatal && got.Reason == "" {
				t.Error("fatal verdict must carry a reason")
			}
		})
	}
}

// classify must not mutate its input.
func TestClassify_Pure(t *testing.T) {
	rec := task.AttemptRecord{
		Index:     1,
		Execution: task.ExecutionOutcome{Status: task.ExecutionRuntimeError, Error: "boom"},
	}
	orig := rec

	v1 := classify(&rec)
	v2 := classify(&rec)

	if rec != orig {
		t.Error("classify mutated the attempt record")
	}
	if v1 != v2 {
		t.Error("classify is not deterministic")
	}
}

func TestRuntimeFeedback(t *testing.T) {
	got := RuntimeFeedback("Traceback: boom")
	if !strings.Contains(got, "Your code failed to execute. Error:\nTraceback: boom") {
		t.Errorf("feedback = %q", got)
	}
}

func TestTimeoutFeedback(t *testing.T) {
	got := TimeoutFeedback(45 * time.Second)
	want := "Your code took longer than 45 seconds to run and was terminated. Please optimize for performance."
	if got != want {
		t.Errorf("feedback = %q, want %q", got, want)
	}
}
