package repo

import (
	"context"
	"errors"
	"fmt"

	dom "tasktracker/internal/domain"
	"tasktracker/internal/utils"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgTaskColumns = `id, title, description, completed, created_at`

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGTaskStore implements TaskStore with Postgres.
type PGTaskStore struct {
	pool *pgxpool.Pool
	q    pgQuerier
	inTx bool
}

// NewPGTaskStore returns a store backed by pool. Closing the store closes the pool.
func NewPGTaskStore(pool *pgxpool.Pool) *PGTaskStore {
	return &PGTaskStore{pool: pool, q: pool}
}

func (r *PGTaskStore) Insert(ctx context.Context, title, description string) (dom.Task, error) {
	query := `
		INSERT INTO tasks (title, description)
		VALUES ($1, $2)
		RETURNING ` + pgTaskColumns
	t, err := scanPGTask(r.q.QueryRow(ctx, query, title, description))
	if err != nil {
		if utils.IsPGConstraintViolation(err) {
			return dom.Task{}, fmt.Errorf("insert task: %w", ErrInvalidTask)
		}
		return dom.Task{}, fmt.Errorf("insert task: %w", err)
	}
	return t, nil
}

func (r *PGTaskStore) FindByID(ctx context.Context, id int64) (dom.Task, error) {
	query := `SELECT ` + pgTaskColumns + ` FROM tasks WHERE id = $1`
	if r.inTx {
		query += ` FOR UPDATE`
	}
	t, err := scanPGTask(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return dom.Task{}, fmt.Errorf("find task %d: %w", id, ErrNotFound)
		}
		return dom.Task{}, fmt.Errorf("find task %d: %w", id, err)
	}
	return t, nil
}

func (r *PGTaskStore) Save(ctx context.Context, t dom.Task) (dom.Task, error) {
	query := `
		UPDATE tasks SET title = $2, description = $3, completed = completed OR $4
		WHERE id = $1
		RETURNING ` + pgTaskColumns
	out, err := scanPGTask(r.q.QueryRow(ctx, query, t.ID, t.Title, t.Description, t.Completed))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return dom.Task{}, fmt.Errorf("save task %d: %w", t.ID, ErrNotFound)
		}
		if utils.IsPGConstraintViolation(err) {
			return dom.Task{}, fmt.Errorf("save task %d: %w", t.ID, ErrInvalidTask)
		}
		return dom.Task{}, fmt.Errorf("save task %d: %w", t.ID, err)
	}
	return out, nil
}

func (r *PGTaskStore) QueryLatestActive(ctx context.Context, limit int) ([]dom.Task, error) {
	list := []dom.Task{}
	if limit <= 0 {
		return list, nil
	}
	query := `
		SELECT ` + pgTaskColumns + `
		FROM tasks WHERE completed = FALSE
		ORDER BY created_at DESC, id DESC
		LIMIT $1`
	rows, err := r.q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query latest active: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		t, err := scanPGTask(rows)
		if err != nil {
			return nil, fmt.Errorf("query latest active: %w", err)
		}
		list = append(list, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration: %w", err)
	}
	return list, nil
}

func (r *PGTaskStore) WithinTx(ctx context.Context, fn func(TaskStore) error) error {
	if r.inTx {
		return fn(r)
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&PGTaskStore{pool: r.pool, q: tx, inTx: true})
	})
}

func (r *PGTaskStore) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *PGTaskStore) Close() error {
	if !r.inTx {
		r.pool.Close()
	}
	return nil
}

func scanPGTask(row rowScanner) (dom.Task, error) {
	var t dom.Task
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Completed, &t.CreatedAt); err != nil {
		return dom.Task{}, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}
