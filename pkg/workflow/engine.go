package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeloop-dev/codeloop/pkg/generator"
	"github.com/codeloop-dev/codeloop/pkg/observability"
	"github.com/codeloop-dev/codeloop/pkg/sandbox"
	"github.com/codeloop-dev/codeloop/pkg/task"
)

// Hook observes task snapshots after every state change. The engine
// hands over deep copies, so the hook may retain or serialize them
// freely. A nil hook disables snapshots.
type Hook func(t *task.Task)

// Engine runs one task through the generate-execute-retry cycle. It is
// stateless between tasks and safe for concurrent Run calls.
type Engine struct {
	gen  generator.Generator
	exec sandbox.Executor
	cfg  Config
	hook Hook
}

// New creates an Engine. Generator and executor must not be nil.
func New(gen generator.Generator, exec sandbox.Executor, cfg Config, hook Hook) (*Engine, error) {
	if gen == nil {
		return nil, fmt.Errorf("workflow: generator must not be nil")
	}
	if exec == nil {
		return nil, fmt.Errorf("workflow: executor must not be nil")
	}
	return &Engine{gen: gen, exec: exec, cfg: cfg, hook: hook}, nil
}

// Run drives the task from pending to a terminal state. All outcomes,
// including cancellation and exhaustion, land on the task itself; the
// returned error reports only misuse, such as running a task that is
// not pending.
func (e *Engine) Run(ctx context.Context, t *task.Task) error {
	if err := t.Transition(task.StatusRunning); err != nil {
		return fmt.Errorf("workflow: start task %s: %w", t.ID, err)
	}
	e.snapshot(t)

	log := slog.With("task_id", t.ID)

	prompt := e.preparePrompt(ctx, t, log)

	feedback := ""
	maxAttempts := e.cfg.maxAttempts()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return e.finishAborted(t, log)
		}

		rec := task.AttemptRecord{
			Index:            attempt,
			FeedbackConsumed: feedback,
			Execution:        task.ExecutionOutcome{Status: task.ExecutionNotRun},
		}

		code, infraErr := e.runAttempt(ctx, t, prompt, &rec, log)
		t.Attempts = append(t.Attempts, rec)
		e.snapshot(t)

		if ctx.Err() != nil {
			return e.finishAborted(t, log)
		}
		if infraErr != nil {
			return e.finishFatal(t, infraErr.Error(), log)
		}

		// Generation-only tasks stop at the first usable code.
		if t.GenerateOnly && code != nil {
			return e.finishSuccess(t, code, log)
		}

		verdict := classify(t.LastAttempt())
		switch verdict.Action {
		case ActionSuccess:
			return e.finishSuccess(t, code, log)
		case ActionFatal:
			return e.finishFatal(t, verdict.Reason, log)
		case ActionRetry:
			feedback = verdict.Feedback
			log.Info("attempt failed, retrying",
				"attempt", attempt,
				"max_attempts", maxAttempts,
			)
		}
	}

	return e.finishExhausted(t, maxAttempts, log)
}

// preparePrompt optionally refines the instruction into a generation
// prompt. Refinement failures fall back to the raw instruction so a
// flaky optimization call never kills the task.
func (e *Engine) preparePrompt(ctx context.Context, t *task.Task, log *slog.Logger) string {
	if !e.cfg.OptimizePrompt {
		return t.Instruction
	}

	prompt, reasoning, err := e.gen.Optimize(ctx, t.Instruction)
	if err != nil {
		log.Warn("prompt optimization failed, using raw instruction", "error", err.Error())
		return t.Instruction
	}

	log.Debug("prompt optimized", "reasoning", reasoning)
	t.OptimizedPrompt = prompt
	e.snapshot(t)
	return prompt
}

// runAttempt performs one generation+execution cycle, filling in the
// record. A non-nil return error is an infrastructure failure that must
// end the task.
func (e *Engine) runAttempt(ctx context.Context, t *task.Task, prompt string, rec *task.AttemptRecord, log *slog.Logger) (*task.GeneratedCode, error) {
	genStart := time.Now()
	code, err := e.gen.Generate(ctx, &generator.Request{
		Prompt:  prompt,
		History: t.Attempts,
	})
	genDuration := time.Since(genStart)

	if err != nil {
		observability.GenerationLatency.WithLabelValues(e.gen.Name(), "error").Observe(genDuration.Seconds())
		observability.AttemptsTotal.WithLabelValues("generation_error").Inc()
		rec.GenerationError = err.Error()
		log.Warn("code generation failed", "attempt", rec.Index, "error", err.Error())
		return nil, nil
	}
	observability.GenerationLatency.WithLabelValues(e.gen.Name(), "success").Observe(genDuration.Seconds())
	rec.Generated = code

	if t.GenerateOnly {
		observability.AttemptsTotal.WithLabelValues("generate_only").Inc()
		return code, nil
	}

	spec := &sandbox.Spec{
		Source:  code.FullSource(),
		Timeout: e.cfg.executionTimeout(),
	}
	if e.cfg.ScanRequirements {
		spec.Requirements = sandbox.ScanRequirements(spec.Source)
	}

	execStart := time.Now()
	res, execErr := e.exec.Execute(ctx, spec)
	execDuration := time.Since(execStart)

	if execErr != nil {
		observability.ExecutionLatency.WithLabelValues(e.exec.Name(), "infra_error").Observe(execDuration.Seconds())
		observability.AttemptsTotal.WithLabelValues("infra_error").Inc()
		rec.Execution = task.ExecutionOutcome{
			Status:   task.ExecutionInfraError,
			Error:    execErr.Error(),
			Duration: execDuration,
		}
		return code, execErr
	}

	observability.ExecutionLatency.WithLabelValues(e.exec.Name(), string(res.Status)).Observe(execDuration.Seconds())
	observability.AttemptsTotal.WithLabelValues(string(res.Status)).Inc()

	rec.Execution = task.ExecutionOutcome{
		Status:   res.Status,
		Stdout:   res.Stdout,
		ExitCode: res.ExitCode,
		Duration: res.Duration,
	}
	switch res.Status {
	case task.ExecutionRuntimeError:
		rec.Execution.Error = res.Stderr
	case task.ExecutionTimeout:
		rec.Execution.Error = TimeoutFeedback(e.cfg.executionTimeout())
	}

	return code, nil
}

func (e *Engine) finishSuccess(t *task.Task, code *task.GeneratedCode, log *slog.Logger) error {
	t.FinalOutput = &task.FinalOutput{
		Code:   code.FullSource(),
		Stdout: t.LastAttempt().Execution.Stdout,
	}
	e.finish(t, task.StatusSucceeded, "", log)
	return nil
}

func (e *Engine) finishFatal(t *task.Task, reason string, log *slog.Logger) error {
	e.finish(t, task.StatusFailed, reason, log)
	return nil
}

func (e *Engine) finishExhausted(t *task.Task, maxAttempts int, log *slog.Logger) error {
	e.finish(t, task.StatusFailed, fmt.Sprintf("no successful execution after %d attempts", maxAttempts), log)
	return nil
}

func (e *Engine) finishAborted(t *task.Task, log *slog.Logger) error {
	e.finish(t, task.StatusAborted, "cancelled", log)
	return nil
}

// finish moves the task to a terminal state and records metrics.
func (e *Engine) finish(t *task.Task, status task.Status, reason string, log *slog.Logger) {
	t.FailureReason = reason
	if err := t.Transition(status); err != nil {
		// Already terminal (e.g. a racing cancel). Keep the first outcome.
		log.Debug("terminal transition skipped", "to", string(status), "error", err.Error())
		return
	}

	observability.TasksTotal.WithLabelValues(string(status)).Inc()
	observability.AttemptsPerTask.Observe(float64(len(t.Attempts)))
	e.snapshot(t)

	log.Info("task finished",
		"status", string(status),
		"attempts", len(t.Attempts),
		"reason", reason,
	)
}

// snapshot hands a deep copy of the task to the hook.
func (e *Engine) snapshot(t *task.Task) {
	if e.hook != nil {
		e.hook(t.Clone())
	}
}
