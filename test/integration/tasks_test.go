package integration

import (
	"net/http"
	"strings"
	"testing"

	"github.com/codeloop-dev/codeloop/pkg/storage"
	"github.com/codeloop-dev/codeloop/pkg/task"
)

func TestTaskLifecycle_Success(t *testing.T) {
	created := createTask(t, "compute the square root of 16")

	if created.Status != task.StatusPending && created.Status != task.StatusRunning {
		t.Errorf("accepted snapshot status = %s", created.Status)
	}
	if !task.ValidateTaskID(created.ID) {
		t.Errorf("malformed task ID %q", created.ID)
	}

	final := waitForTerminal(t, created.ID)

	if final.Status != task.StatusSucceeded {
		t.Fatalf("status = %s, want succeeded (reason: %s)", final.Status, final.FailureReason)
	}
	if len(final.Attempts) != 1 {
		t.Errorf("attempts = %d, want 1", len(final.Attempts))
	}
	if final.FinalOutput == nil {
		t.Fatal("final output missing")
	}
	if !strings.Contains(final.FinalOutput.Code, "import math") {
		t.Errorf("final code missing imports:\n%s", final.FinalOutput.Code)
	}
	if final.FinalOutput.Stdout != "4.0\n" {
		t.Errorf("stdout = %q", final.FinalOutput.Stdout)
	}
	if final.CompletedAt == 0 {
		t.Error("completed_at not set")
	}
}

func TestTaskLifecycle_RetryAfterRuntimeError(t *testing.T) {
	created := createTask(t, "break once then recover")
	final := waitForTerminal(t, created.ID)

	if final.Status != task.StatusSucceeded {
		t.Fatalf("status = %s, want succeeded", final.Status)
	}
	if len(final.Attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(final.Attempts))
	}

	first, second := final.Attempts[0], final.Attempts[1]
	if first.Execution.Status != task.ExecutionRuntimeError {
		t.Errorf("attempt 1 execution = %s, want runtime_error", first.Execution.Status)
	}
	if !strings.Contains(first.Execution.Error, "RuntimeError: boom") {
		t.Errorf("attempt 1 error = %q", first.Execution.Error)
	}
	if !strings.Contains(second.FeedbackConsumed, "Your code failed to execute") {
		t.Errorf("attempt 2 feedback = %q", second.FeedbackConsumed)
	}
	if second.Execution.Status != task.ExecutionSucceeded {
		t.Errorf("attempt 2 execution = %s, want succeeded", second.Execution.Status)
	}
}

func TestTaskLifecycle_Exhaustion(t *testing.T) {
	created := createTask(t, "always break no matter what")
	final := waitForTerminal(t, created.ID)

	if final.Status != task.StatusFailed {
		t.Fatalf("status = %s, want failed", final.Status)
	}
	if len(final.Attempts) != 3 {
		t.Errorf("attempts = %d, want 3", len(final.Attempts))
	}
	if final.FailureReason != "no successful execution after 3 attempts" {
		t.Errorf("failure reason = %q", final.FailureReason)
	}
	if final.FinalOutput != nil {
		t.Error("failed task carries final output")
	}
}

func TestTaskLifecycle_GenerateOnly(t *testing.T) {
	resp := postJSON(t, testEnv.BaseURL()+"/v1/tasks", map[string]any{
		"instruction": "just generate, do not run",
		"execute":     false,
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var created task.Task
	decodeJSON(t, resp, &created)

	final := waitForTerminal(t, created.ID)

	if final.Status != task.StatusSucceeded {
		t.Fatalf("status = %s, want succeeded", final.Status)
	}
	if !final.GenerateOnly {
		t.Error("generate_only flag not persisted")
	}
	if len(final.Attempts) != 1 {
		t.Fatalf("attempts = %d, want 1", len(final.Attempts))
	}
	if got := final.Attempts[0].Execution.Status; got != task.ExecutionNotRun {
		t.Errorf("execution status = %s, want not_run", got)
	}
	if final.FinalOutput == nil || final.FinalOutput.Code == "" {
		t.Error("generated code missing from final output")
	}
}

func TestTaskCancel(t *testing.T) {
	created := createTask(t, "slow down and take your time")

	resp := postJSON(t, testEnv.BaseURL()+"/v1/tasks/"+created.ID+"/cancel", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("cancel status = %d, body = %s", resp.StatusCode, readBody(t, resp))
	}
	resp.Body.Close()

	final := waitForTerminal(t, created.ID)

	if final.Status != task.StatusAborted {
		t.Fatalf("status = %s, want aborted", final.Status)
	}
	if final.FailureReason != "cancelled" {
		t.Errorf("failure reason = %q", final.FailureReason)
	}
}

func TestGetCode_DownloadsFinalScript(t *testing.T) {
	created := createTask(t, "compute something downloadable")
	waitForTerminal(t, created.ID)

	resp := getURL(t, testEnv.BaseURL()+"/v1/tasks/"+created.ID+"/code")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/x-python" {
		t.Errorf("content type = %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, created.ID+".py") {
		t.Errorf("content disposition = %q", cd)
	}
	body := readBody(t, resp)
	if !strings.Contains(body, "print(math.sqrt(16))") {
		t.Errorf("downloaded code:\n%s", body)
	}
}

func TestListTasks_FilterByStatus(t *testing.T) {
	created := createTask(t, "a task for the listing filter")
	waitForTerminal(t, created.ID)

	resp := getURL(t, testEnv.BaseURL()+"/v1/tasks?status=succeeded&limit=100")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var result storage.TaskList
	decodeJSON(t, resp, &result)

	found := false
	for _, tk := range result.Tasks {
		if tk.Status != task.StatusSucceeded {
			t.Errorf("task %s in filtered list has status %s", tk.ID, tk.Status)
		}
		if tk.ID == created.ID {
			found = true
		}
	}
	if !found {
		t.Errorf("task %s missing from succeeded list", created.ID)
	}
}

func TestDeleteTask(t *testing.T) {
	created := createTask(t, "a task that gets deleted")
	waitForTerminal(t, created.ID)

	resp := deleteURL(t, testEnv.BaseURL()+"/v1/tasks/"+created.ID)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = getURL(t, testEnv.BaseURL()+"/v1/tasks/"+created.ID)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}
