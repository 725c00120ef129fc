package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/codeloop-dev/codeloop/pkg/task"
)

// defaultGrace pads the client-side deadline above the execution budget
// so the sandbox can enforce its own timeout and still deliver the
// verdict over the wire.
const defaultGrace = 30 * time.Second

// RESTExecutor executes code against a sandbox server's REST API. Each
// call acquires a sandbox through the configured Acquirer, posts the
// script to /execute, and releases the sandbox afterwards.
type RESTExecutor struct {
	acquirer   Acquirer
	httpClient *http.Client
	grace      time.Duration
}

// Ensure RESTExecutor implements Executor at compile time.
var _ Executor = (*RESTExecutor)(nil)

// NewRESTExecutor creates a REST executor over the given acquirer.
func NewRESTExecutor(acquirer Acquirer) *RESTExecutor {
	return &RESTExecutor{
		acquirer: acquirer,
		// No fixed client timeout: the per-request deadline scales with
		// the execution budget, which may exceed any static cap.
		httpClient: &http.Client{},
		grace:      defaultGrace,
	}
}

// Name returns the executor identifier.
func (e *RESTExecutor) Name() string {
	return "rest"
}

// Execute runs the script in an acquired sandbox.
func (e *RESTExecutor) Execute(ctx context.Context, spec *Spec) (*Result, error) {
	sandboxURL, release, err := e.acquirer.Acquire(ctx)
	if err != nil {
		return nil, &InfraError{Op: "acquire", Message: "failed to acquire sandbox", Err: err}
	}
	defer release()

	// The sandbox enforces spec.Timeout itself. The client deadline only
	// guards against a hung server, so it sits a grace period above the
	// execution budget instead of capping it.
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout+e.grace)
		defer cancel()
	}

	wireReq := &ExecuteRequest{
		Code:           spec.Source,
		TimeoutSeconds: int(spec.Timeout / time.Second),
		Requirements:   spec.Requirements,
	}

	body, err := json.Marshal(wireReq)
	if err != nil {
		return nil, &InfraError{Op: "execute", Message: "marshal request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, sandboxURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, &InfraError{Op: "execute", Message: "create request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, &InfraError{Op: "execute", Message: "sandbox request failed", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &InfraError{Op: "execute", Message: "read response", Err: err}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &InfraError{Op: "execute", Message: "sandbox at capacity (HTTP 429)"}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &InfraError{Op: "execute", Message: fmt.Sprintf("sandbox returned HTTP %d: %s", resp.StatusCode, string(respBody))}
	}

	var wireResp ExecuteResponse
	if err := json.Unmarshal(respBody, &wireResp); err != nil {
		return nil, &InfraError{Op: "execute", Message: "decode response", Err: err}
	}

	return fromWire(&wireResp)
}

// Close releases executor resources.
func (e *RESTExecutor) Close() error {
	e.httpClient.CloseIdleConnections()
	return nil
}

// fromWire maps a wire response to a Result. An unknown status is an
// infrastructure error: the sandbox and client disagree on the contract.
func fromWire(w *ExecuteResponse) (*Result, error) {
	r := &Result{
		Stdout:   w.Stdout,
		Stderr:   w.Stderr,
		ExitCode: w.ExitCode,
		Duration: time.Duration(w.ExecutionTimeMs) * time.Millisecond,
	}
	switch w.Status {
	case WireStatusSuccess:
		r.Status = task.ExecutionSucceeded
	case WireStatusError:
		r.Status = task.ExecutionRuntimeError
	case WireStatusTimeout:
		r.Status = task.ExecutionTimeout
	default:
		return nil, &InfraError{Op: "execute", Message: fmt.Sprintf("unknown sandbox status %q", w.Status)}
	}
	return r, nil
}
