package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/codeloop-dev/codeloop/pkg/task"
)

func newSandboxServer(t *testing.T, handler http.HandlerFunc) *RESTExecutor {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewRESTExecutor(&StaticURLAcquirer{URL: srv.URL})
}

func TestRESTExecutor_Success(t *testing.T) {
	var gotReq ExecuteRequest
	e := newSandboxServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/execute" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(ExecuteResponse{
			Status:          WireStatusSuccess,
			Stdout:          "42\n",
			ExecutionTimeMs: 12,
		})
	})

	res, err := e.Execute(context.Background(), &Spec{
		Source:       "print(42)",
		Requirements: []string{"numpy"},
		Timeout:      30 * time.Second,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != task.ExecutionSucceeded {
		t.Errorf("status = %q", res.Status)
	}
	if res.Stdout != "42\n" {
		t.Errorf("stdout = %q", res.Stdout)
	}

	if gotReq.Code != "print(42)" || gotReq.TimeoutSeconds != 30 {
		t.Errorf("unexpected wire request: %+v", gotReq)
	}
	if len(gotReq.Requirements) != 1 || gotReq.Requirements[0] != "numpy" {
		t.Errorf("requirements = %v", gotReq.Requirements)
	}
}

func TestRESTExecutor_RuntimeError(t *testing.T) {
	e := newSandboxServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ExecuteResponse{
			Status:   WireStatusError,
			Stderr:   "Traceback (most recent call last): ...",
			ExitCode: 1,
		})
	})

	res, err := e.Execute(context.Background(), &Spec{Source: "1/0"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != task.ExecutionRuntimeError {
		t.Errorf("status = %q", res.Status)
	}
	if res.ExitCode != 1 {
		t.Errorf("exit code = %d", res.ExitCode)
	}
}

func TestRESTExecutor_Timeout(t *testing.T) {
	e := newSandboxServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ExecuteResponse{Status: WireStatusTimeout})
	})

	res, err := e.Execute(context.Background(), &Spec{Source: "while True: pass"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != task.ExecutionTimeout {
		t.Errorf("status = %q", res.Status)
	}
}

func TestRESTExecutor_Capacity(t *testing.T) {
	e := newSandboxServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := e.Execute(context.Background(), &Spec{Source: "print(1)"})
	var infra *InfraError
	if !errors.As(err, &infra) {
		t.Fatalf("expected *InfraError, got %v", err)
	}
}

func TestRESTExecutor_UnknownStatus(t *testing.T) {
	e := newSandboxServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ExecuteResponse{Status: "exploded"})
	})

	_, err := e.Execute(context.Background(), &Spec{Source: "print(1)"})
	var infra *InfraError
	if !errors.As(err, &infra) {
		t.Fatalf("expected *InfraError, got %v", err)
	}
}

func TestRESTExecutor_Unreachable(t *testing.T) {
	e := NewRESTExecutor(&StaticURLAcquirer{URL: "http://127.0.0.1:1"})

	_, err := e.Execute(context.Background(), &Spec{Source: "print(1)"})
	var infra *InfraError
	if !errors.As(err, &infra) {
		t.Fatalf("expected *InfraError, got %v", err)
	}
}

func TestRESTExecutor_AcquireFailure(t *testing.T) {
	e := NewRESTExecutor(failingAcquirer{})

	_, err := e.Execute(context.Background(), &Spec{Source: "print(1)"})
	var infra *InfraError
	if !errors.As(err, &infra) {
		t.Fatalf("expected *InfraError, got %v", err)
	}
	if infra.Op != "acquire" {
		t.Errorf("op = %q, want acquire", infra.Op)
	}
}

// The client deadline must scale with the execution budget: a fixed
// HTTP client timeout would abort any run longer than the cap and
// misreport it as an infrastructure failure.
func TestRESTExecutor_DeadlineScalesWithBudget(t *testing.T) {
	e := newSandboxServer(t, func(w http.ResponseWriter, r *http.Request) {
		// Answer after the nominal budget but within the grace window,
		// the way a sandbox delivering its own timeout verdict does.
		time.Sleep(150 * time.Millisecond)
		json.NewEncoder(w).Encode(ExecuteResponse{Status: WireStatusTimeout})
	})
	e.grace = 2 * time.Second

	if e.httpClient.Timeout != 0 {
		t.Fatalf("fixed client timeout %s caps the execution budget", e.httpClient.Timeout)
	}

	res, err := e.Execute(context.Background(), &Spec{
		Source:  "while True: pass",
		Timeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("verdict within the grace window returned error: %v", err)
	}
	if res.Status != task.ExecutionTimeout {
		t.Errorf("status = %q, want timeout", res.Status)
	}
}

func TestRESTExecutor_DeadlineGuardsHungServer(t *testing.T) {
	release := make(chan struct{})
	e := newSandboxServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
	})
	defer close(release)
	e.grace = 50 * time.Millisecond

	start := time.Now()
	_, err := e.Execute(context.Background(), &Spec{
		Source:  "print(1)",
		Timeout: 50 * time.Millisecond,
	})
	elapsed := time.Since(start)

	var infra *InfraError
	if !errors.As(err, &infra) {
		t.Fatalf("expected *InfraError, got %v", err)
	}
	if elapsed > 2*time.Second {
		t.Errorf("gave up after %s, want roughly timeout+grace", elapsed)
	}
}

type failingAcquirer struct{}

func (failingAcquirer) Acquire(context.Context) (string, func(), error) {
	return "", nil, errors.New("no sandboxes available")
}
