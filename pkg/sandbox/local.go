package sandbox

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/codeloop-dev/codeloop/pkg/task"
)

// LocalExecutor runs scripts as python3 subprocesses on the host. It has
// no isolation and refuses to run unless explicitly allowed, which keeps
// a misconfigured deployment from executing untrusted code in-process.
type LocalExecutor struct {
	// Allowed gates execution. When false every call fails with an
	// *InfraError.
	Allowed bool

	// Python is the interpreter binary. Defaults to "python3".
	Python string
}

// Ensure LocalExecutor implements Executor at compile time.
var _ Executor = (*LocalExecutor)(nil)

// NewLocalExecutor creates a local executor. Execution stays disabled
// until allowed is true.
func NewLocalExecutor(allowed bool) *LocalExecutor {
	return &LocalExecutor{Allowed: allowed, Python: "python3"}
}

// Name returns the executor identifier.
func (e *LocalExecutor) Name() string {
	return "local"
}

// Execute writes the script to a temporary directory and runs it with
// the configured interpreter under the spec's timeout.
func (e *LocalExecutor) Execute(ctx context.Context, spec *Spec) (*Result, error) {
	if !e.Allowed {
		return nil, &InfraError{Op: "execute", Message: "local execution is disabled; set sandbox.allow_local to enable it"}
	}

	workDir, err := os.MkdirTemp("", "codeloop-exec-*")
	if err != nil {
		return nil, &InfraError{Op: "execute", Message: "create work directory", Err: err}
	}
	defer os.RemoveAll(workDir)

	scriptPath := filepath.Join(workDir, "main.py")
	if err := os.WriteFile(scriptPath, []byte(spec.Source), 0o600); err != nil {
		return nil, &InfraError{Op: "execute", Message: "write script", Err: err}
	}

	execCtx := ctx
	var cancel context.CancelFunc
	if spec.Timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	python := e.Python
	if python == "" {
		python = "python3"
	}

	cmd := exec.CommandContext(execCtx, python, scriptPath)
	cmd.Dir = workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: elapsed,
	}

	switch {
	case execCtx.Err() == context.DeadlineExceeded:
		result.Status = task.ExecutionTimeout
		result.ExitCode = -1
	case runErr == nil:
		result.Status = task.ExecutionSucceeded
	default:
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.Status = task.ExecutionRuntimeError
			result.ExitCode = exitErr.ExitCode()
		} else {
			// The interpreter itself could not be started.
			return nil, &InfraError{Op: "execute", Message: "run interpreter", Err: runErr}
		}
	}

	return result, nil
}

// Close releases executor resources.
func (e *LocalExecutor) Close() error {
	return nil
}
