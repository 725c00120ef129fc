// Package postgres provides a PostgreSQL implementation of storage.TaskStore.
// It uses pgx/v5 for connection pooling and stores each task as a JSONB
// document alongside a few indexed columns for filtering and ordering.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codeloop-dev/codeloop/pkg/storage"
	"github.com/codeloop-dev/codeloop/pkg/task"
)

// Store is a PostgreSQL-backed TaskStore.
type Store struct {
	pool *pgxpool.Pool
}

// Ensure Store implements storage.TaskStore at compile time.
var _ storage.TaskStore = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// Save persists a new task.
func (s *Store) Save(ctx context.Context, t *task.Task) error {
	doc, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshaling task: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO tasks (id, status, created_at, document)
		VALUES ($1, $2, $3, $4)
	`, t.ID, string(t.Status), t.CreatedAt, doc)

	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting task: %w", err)
	}

	return nil
}

// Update overwrites an existing task.
func (s *Store) Update(ctx context.Context, t *task.Task) error {
	doc, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshaling task: %w", err)
	}

	result, err := s.pool.Exec(ctx, `
		UPDATE tasks SET status = $2, document = $3
		WHERE id = $1
	`, t.ID, string(t.Status), doc)

	if err != nil {
		return fmt.Errorf("updating task: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// Get retrieves a task by ID.
func (s *Store) Get(ctx context.Context, id string) (*task.Task, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		"SELECT document FROM tasks WHERE id = $1", id,
	).Scan(&doc)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying task: %w", err)
	}

	var t task.Task
	if err := json.Unmarshal(doc, &t); err != nil {
		return nil, fmt.Errorf("unmarshaling task: %w", err)
	}

	return &t, nil
}

// List returns a paginated list of tasks, newest first.
func (s *Store) List(ctx context.Context, opts storage.ListOptions) (*storage.TaskList, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	query := "SELECT document FROM tasks"
	var conds []string
	var args []any

	if opts.Status != "" {
		args = append(args, string(opts.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}

	// Cursor pagination: everything strictly older than the cursor row,
	// with ID as tie-breaker to keep the order stable.
	if opts.After != "" {
		args = append(args, opts.After)
		conds = append(conds, fmt.Sprintf(
			"(created_at, id) < (SELECT created_at, id FROM tasks WHERE id = $%d)", len(args)))
	}

	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	// Fetch one extra row to determine has_more.
	args = append(args, limit+1)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scanning task row: %w", err)
		}
		var t task.Task
		if err := json.Unmarshal(doc, &t); err != nil {
			return nil, fmt.Errorf("unmarshaling task: %w", err)
		}
		tasks = append(tasks, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading task rows: %w", err)
	}

	hasMore := len(tasks) > limit
	if hasMore {
		tasks = tasks[:limit]
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}

	return &storage.TaskList{Tasks: tasks, HasMore: hasMore}, nil
}

// Delete removes a task by ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.pool.Exec(ctx, "DELETE FROM tasks WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// isDuplicateKey checks if the error is a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
