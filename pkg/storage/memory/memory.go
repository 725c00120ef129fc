// Package memory provides an in-memory implementation of storage.TaskStore
// for testing and lightweight deployments. Tasks are stored in memory and
// lost when the process restarts. Optional LRU eviction limits memory usage.
package memory

import (
	"container/list"
	"context"
	"sort"
	"sync"

	"github.com/codeloop-dev/codeloop/pkg/storage"
	"github.com/codeloop-dev/codeloop/pkg/task"
)

// entry holds a stored task and its LRU position.
type entry struct {
	task    *task.Task
	lruElem *list.Element
}

// Store is an in-memory TaskStore with optional LRU eviction. Only
// terminal tasks are evicted; pending and running tasks stay resident
// so an eviction can never strand an in-flight run.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	lruList *list.List // front = most recently used, back = least recently used
	maxSize int        // 0 = unlimited
}

// Ensure Store implements storage.TaskStore at compile time.
var _ storage.TaskStore = (*Store)(nil)

// New creates a new in-memory store. If maxSize is 0, the store grows
// without limit. If maxSize > 0, the least recently used terminal task
// is evicted when the limit is reached.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[string]*entry),
		lruList: list.New(),
		maxSize: maxSize,
	}
}

// Save persists a new task in memory.
func (s *Store) Save(_ context.Context, t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[t.ID]; exists {
		return storage.ErrConflict
	}

	// Evict if at capacity.
	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evictOldest()
	}

	elem := s.lruList.PushFront(t.ID)
	s.entries[t.ID] = &entry{task: t, lruElem: elem}
	return nil
}

// Update overwrites an existing task.
func (s *Store) Update(_ context.Context, t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[t.ID]
	if !ok {
		return storage.ErrNotFound
	}

	e.task = t
	s.lruList.MoveToFront(e.lruElem)
	return nil
}

// Get retrieves a task by ID. The caller receives a deep copy and may
// mutate it freely.
func (s *Store) Get(_ context.Context, id string) (*task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return e.task.Clone(), nil
}

// List returns a paginated list of tasks, newest first.
func (s *Store) List(_ context.Context, opts storage.ListOptions) (*storage.TaskList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []*task.Task
	for _, e := range s.entries {
		if opts.Status != "" && e.task.Status != opts.Status {
			continue
		}
		matches = append(matches, e.task)
	}

	// Newest first, ID as tie-breaker for a stable order.
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].CreatedAt != matches[j].CreatedAt {
			return matches[i].CreatedAt > matches[j].CreatedAt
		}
		return matches[i].ID > matches[j].ID
	})

	// Apply cursor-based pagination.
	if opts.After != "" {
		idx := -1
		for i, t := range matches {
			if t.ID == opts.After {
				idx = i
				break
			}
		}
		if idx >= 0 {
			matches = matches[idx+1:]
		} else {
			matches = nil
		}
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	hasMore := len(matches) > limit
	if hasMore {
		matches = matches[:limit]
	}

	result := &storage.TaskList{HasMore: hasMore}
	result.Tasks = make([]*task.Task, 0, len(matches))
	for _, t := range matches {
		result.Tasks = append(result.Tasks, t.Clone())
	}

	return result, nil
}

// Delete removes a task by ID.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return storage.ErrNotFound
	}

	s.lruList.Remove(e.lruElem)
	delete(s.entries, id)
	return nil
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// evictOldest removes the least recently used terminal task.
// Must be called with s.mu held.
func (s *Store) evictOldest() {
	for elem := s.lruList.Back(); elem != nil; elem = elem.Prev() {
		id := elem.Value.(string)
		e, ok := s.entries[id]
		if !ok {
			continue
		}
		if !e.task.Status.IsTerminal() {
			continue
		}
		s.lruList.Remove(elem)
		delete(s.entries, id)
		return
	}
}
