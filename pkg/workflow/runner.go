package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/codeloop-dev/codeloop/pkg/observability"
	"github.com/codeloop-dev/codeloop/pkg/storage"
	"github.com/codeloop-dev/codeloop/pkg/task"
)

// Runner schedules engine runs on background goroutines. Submitted tasks
// are persisted immediately and progress through their lifecycle
// asynchronously; clients observe progress by polling the store.
type Runner struct {
	engine *Engine
	store  storage.TaskStore
	sem    chan struct{}

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	closed  bool

	wg sync.WaitGroup
}

// NewRunner creates a Runner that executes at most maxConcurrent tasks
// at a time. Submissions beyond the cap queue in goroutines until a
// slot frees up.
func NewRunner(engine *Engine, store storage.TaskStore, maxConcurrent int) *Runner {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Runner{
		engine:  engine,
		store:   store,
		sem:     make(chan struct{}, maxConcurrent),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Submit creates a pending task for the instruction, persists it, and
// schedules it for execution. When generateOnly is true the task stops
// after the first successful generation without touching the sandbox.
// The returned task is a snapshot; the authoritative state lives in the
// store.
func (r *Runner) Submit(ctx context.Context, instruction string, generateOnly bool) (*task.Task, error) {
	t := task.New(instruction)
	t.GenerateOnly = generateOnly
	if err := r.store.Save(ctx, t.Clone()); err != nil {
		return nil, fmt.Errorf("persist task: %w", err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, fmt.Errorf("runner is shutting down")
	}
	// The run outlives the submit request, so it gets its own context.
	runCtx, cancel := context.WithCancel(context.Background())
	r.cancels[t.ID] = cancel
	r.wg.Add(1)
	r.mu.Unlock()

	go r.run(runCtx, t)

	return t.Clone(), nil
}

// run waits for a concurrency slot and drives the task to completion.
func (r *Runner) run(ctx context.Context, t *task.Task) {
	defer r.wg.Done()
	defer r.dropCancel(t.ID)

	select {
	case r.sem <- struct{}{}:
		defer func() { <-r.sem }()
	case <-ctx.Done():
		// Cancelled while queued.
		t.FailureReason = "cancelled"
		if err := t.Transition(task.StatusAborted); err == nil {
			observability.TasksTotal.WithLabelValues(string(task.StatusAborted)).Inc()
			r.persist(t)
		}
		return
	}

	observability.TasksInFlight.Inc()
	defer observability.TasksInFlight.Dec()

	if err := r.engine.Run(ctx, t); err != nil {
		slog.Error("engine run failed", "task_id", t.ID, "error", err.Error())
	}
}

// Cancel requests cancellation of a task. Running tasks abort at the
// next cycle boundary; queued tasks abort immediately. Cancelling a
// task that already reached a terminal state is a no-op. The returned
// task is the stored snapshot at the time of the call.
func (r *Runner) Cancel(ctx context.Context, id string) (*task.Task, error) {
	t, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	cancel, ok := r.cancels[id]
	r.mu.Unlock()
	if ok {
		cancel()
	}

	return t, nil
}

// Shutdown stops accepting submissions, cancels all in-flight tasks,
// and waits for their goroutines to drain or the context to expire.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	for _, cancel := range r.cancels {
		cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("runner shutdown: %w", ctx.Err())
	}
}

// dropCancel removes the task's cancel handle once the run ends.
func (r *Runner) dropCancel(id string) {
	r.mu.Lock()
	if cancel, ok := r.cancels[id]; ok {
		cancel()
		delete(r.cancels, id)
	}
	r.mu.Unlock()
}

// persist writes a snapshot to the store, logging failures instead of
// propagating them so a storage hiccup cannot strand a finished task.
func (r *Runner) persist(t *task.Task) {
	if err := r.store.Update(context.Background(), t.Clone()); err != nil {
		slog.Warn("failed to persist task snapshot", "task_id", t.ID, "error", err.Error())
	}
}

// StoreHook returns an engine Hook that persists every snapshot to the
// given store.
func StoreHook(store storage.TaskStore) Hook {
	return func(t *task.Task) {
		if err := store.Update(context.Background(), t); err != nil {
			slog.Warn("failed to persist task snapshot", "task_id", t.ID, "error", err.Error())
		}
	}
}
