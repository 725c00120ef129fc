// Package sandbox abstracts isolated execution of generated Python code.
// The primary implementation calls a sandbox server's REST API; a local
// subprocess executor exists for development and is disabled by default.
package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/codeloop-dev/codeloop/pkg/task"
)

// Executor runs one script in isolation and reports the outcome.
// Implementations must be safe for concurrent use.
type Executor interface {
	// Name returns the executor identifier (e.g., "rest", "local").
	Name() string

	// Execute runs the script. The returned Result classifies code-level
	// outcomes (success, runtime error, timeout); a non-nil error is
	// always an *InfraError meaning the sandbox itself failed and the
	// result cannot be trusted to reflect the code.
	Execute(ctx context.Context, spec *Spec) (*Result, error)

	// Close releases executor resources.
	Close() error
}

// Spec describes one execution request.
type Spec struct {
	// Source is the complete script to run.
	Source string

	// Requirements lists pip packages to install before execution.
	Requirements []string

	// Timeout is the wall-clock limit for the script itself.
	Timeout time.Duration
}

// Result is the outcome of one execution. Status is one of
// ExecutionSucceeded, ExecutionRuntimeError or ExecutionTimeout.
type Result struct {
	Status   task.ExecutionStatus
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// InfraError reports a sandbox-level failure: unreachable server,
// capacity exhaustion, malformed response. It is never caused by the
// generated code, so regenerating cannot fix it.
type InfraError struct {
	Op      string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *InfraError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sandbox %s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("sandbox %s: %s", e.Op, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *InfraError) Unwrap() error {
	return e.Err
}

// Acquirer abstracts sandbox acquisition. Implementations exist for
// static URL mode (a fixed URL) and SandboxClaim mode (Kubernetes CRDs).
type Acquirer interface {
	// Acquire returns a sandbox URL to use for execution.
	// The release function must be called after execution to clean up.
	Acquire(ctx context.Context) (sandboxURL string, release func(), err error)
}

// StaticURLAcquirer returns a fixed sandbox URL (development mode).
type StaticURLAcquirer struct {
	URL string
}

// Acquire implements Acquirer.
func (a *StaticURLAcquirer) Acquire(_ context.Context) (string, func(), error) {
	return a.URL, func() {}, nil
}
