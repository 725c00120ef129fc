// Package transport serves the task API over HTTP. It routes requests
// to the workflow runner and the task store, serializes results, and
// maps domain errors to a JSON error envelope.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/codeloop-dev/codeloop/pkg/storage"
	"github.com/codeloop-dev/codeloop/pkg/task"
)

// TaskRunner schedules tasks for asynchronous execution. It is
// implemented by workflow.Runner.
type TaskRunner interface {
	Submit(ctx context.Context, instruction string, generateOnly bool) (*task.Task, error)
	Cancel(ctx context.Context, id string) (*task.Task, error)
}

// Config holds configuration for the HTTP handler.
type Config struct {
	MaxBodySize int64
}

// DefaultConfig returns the default handler configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize: 1 << 20, // 1 MB
	}
}

// Handler routes the task API. Create and cancel go through the runner;
// reads go straight to the store.
type Handler struct {
	runner TaskRunner
	store  storage.TaskStore
	mux    *http.ServeMux
	config Config
}

// NewHandler creates the task API handler.
func NewHandler(runner TaskRunner, store storage.TaskStore, cfg Config) *Handler {
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = DefaultConfig().MaxBodySize
	}

	h := &Handler{
		runner: runner,
		store:  store,
		mux:    http.NewServeMux(),
		config: cfg,
	}

	h.mux.HandleFunc("POST /v1/tasks", h.handleCreateTask)
	h.mux.HandleFunc("GET /v1/tasks", h.handleListTasks)
	h.mux.HandleFunc("GET /v1/tasks/{id}", h.handleGetTask)
	h.mux.HandleFunc("GET /v1/tasks/{id}/code", h.handleGetCode)
	h.mux.HandleFunc("POST /v1/tasks/{id}/cancel", h.handleCancelTask)
	h.mux.HandleFunc("DELETE /v1/tasks/{id}", h.handleDeleteTask)
	h.mux.HandleFunc("GET /healthz", h.handleHealthz)
	h.mux.HandleFunc("GET /readyz", h.handleReadyz)

	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// CreateTaskRequest is the body of POST /v1/tasks.
type CreateTaskRequest struct {
	// Instruction is the natural-language description of what the
	// generated code should do.
	Instruction string `json:"instruction"`

	// Execute controls whether the generated code runs in the sandbox.
	// Defaults to true when omitted.
	Execute *bool `json:"execute,omitempty"`
}

// handleCreateTask handles POST /v1/tasks. The task is scheduled
// asynchronously; clients poll GET /v1/tasks/{id} for progress.
func (h *Handler) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" {
		WriteErrorResponse(w,
			NewInvalidRequestError("content_type", "Content-Type must be application/json"),
			http.StatusUnsupportedMediaType,
		)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxBodySize)

	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			WriteErrorResponse(w,
				NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", h.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return
		}
		WriteErrorResponse(w,
			NewInvalidRequestError("body", "invalid JSON: "+err.Error()),
			http.StatusBadRequest,
		)
		return
	}

	if req.Instruction == "" {
		WriteAPIError(w, NewInvalidRequestError("instruction", "instruction must not be empty"))
		return
	}

	generateOnly := req.Execute != nil && !*req.Execute

	t, err := h.runner.Submit(r.Context(), req.Instruction, generateOnly)
	if err != nil {
		WriteAPIError(w, NewServerError(err.Error()))
		return
	}

	writeJSON(w, http.StatusAccepted, t)
}

// handleGetTask handles GET /v1/tasks/{id}.
func (h *Handler) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	t, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, id, err)
		return
	}

	writeJSON(w, http.StatusOK, t)
}

// handleListTasks handles GET /v1/tasks.
func (h *Handler) handleListTasks(w http.ResponseWriter, r *http.Request) {
	opts, apiErr := parseListOptions(r)
	if apiErr != nil {
		WriteAPIError(w, apiErr)
		return
	}

	result, err := h.store.List(r.Context(), opts)
	if err != nil {
		WriteAPIError(w, NewServerError(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetCode handles GET /v1/tasks/{id}/code. It returns the final
// assembled script as a Python file attachment.
func (h *Handler) handleGetCode(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	t, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, id, err)
		return
	}

	if t.FinalOutput == nil {
		WriteAPIError(w, NewConflictError(
			fmt.Sprintf("task %s has no final code (status %s)", id, t.Status)))
		return
	}

	w.Header().Set("Content-Type", "text/x-python")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+".py"))
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(t.FinalOutput.Code))
}

// handleCancelTask handles POST /v1/tasks/{id}/cancel. Cancellation is
// asynchronous: the returned snapshot may still show the task running,
// and polling observes the aborted state once the engine yields.
func (h *Handler) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	t, err := h.runner.Cancel(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, id, err)
		return
	}

	writeJSON(w, http.StatusAccepted, t)
}

// handleDeleteTask handles DELETE /v1/tasks/{id}.
func (h *Handler) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		h.writeStoreError(w, id, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleHealthz reports process liveness.
func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz reports readiness, including store connectivity.
func (h *Handler) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := h.store.HealthCheck(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// taskID extracts and validates the {id} path segment, writing the error
// response itself when the ID is malformed.
func (h *Handler) taskID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if !task.ValidateTaskID(id) {
		WriteAPIError(w, NewInvalidRequestError("id", "malformed task ID"))
		return "", false
	}
	return id, true
}

// writeStoreError maps store errors to API errors.
func (h *Handler) writeStoreError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		WriteAPIError(w, NewNotFoundError("task "+id+" not found"))
		return
	}
	WriteAPIError(w, NewServerError(err.Error()))
}

// parseListOptions extracts pagination and filter parameters from the
// query string.
func parseListOptions(r *http.Request) (storage.ListOptions, *APIError) {
	q := r.URL.Query()
	opts := storage.ListOptions{
		After: q.Get("after"),
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			return opts, NewInvalidRequestError("limit", "limit must be a positive integer")
		}
		opts.Limit = limit
	}

	if statusStr := q.Get("status"); statusStr != "" {
		switch status := task.Status(statusStr); status {
		case task.StatusPending, task.StatusRunning, task.StatusSucceeded,
			task.StatusFailed, task.StatusAborted:
			opts.Status = status
		default:
			return opts, NewInvalidRequestError("status", "unknown status "+strconv.Quote(statusStr))
		}
	}

	return opts, nil
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
