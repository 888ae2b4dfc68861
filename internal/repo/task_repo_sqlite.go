package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	dom "tasktracker/internal/domain"
	"tasktracker/internal/migrations"

	"github.com/mattn/go-sqlite3"
)

const sqliteTaskColumns = `id, title, description, completed, created_at`

type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteTaskStore implements TaskStore on an embedded SQLite file.
// It keeps a single connection, so writers are serialized.
type SQLiteTaskStore struct {
	db   *sql.DB
	q    sqlQuerier
	inTx bool
	now  func() time.Time
}

// OpenSQLiteTaskStore opens (or creates) the database at path and migrates it.
func OpenSQLiteTaskStore(path string, opts ...Option) (*SQLiteTaskStore, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_txlock=immediate&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	if err := migrations.Up(db, migrations.DialectSQLite); err != nil {
		db.Close()
		return nil, err
	}

	o := buildOptions(opts)
	return &SQLiteTaskStore{db: db, q: db, now: o.now}, nil
}

func (r *SQLiteTaskStore) Insert(ctx context.Context, title, description string) (dom.Task, error) {
	query := `
		INSERT INTO tasks (title, description, completed, created_at)
		VALUES (?, ?, 0, ?)
		RETURNING ` + sqliteTaskColumns
	createdAt := stamp(r.now())
	t, err := scanSQLiteTask(r.q.QueryRowContext(ctx, query, title, description, createdAt.UnixMicro()))
	if err != nil {
		if isSQLiteConstraint(err) {
			return dom.Task{}, fmt.Errorf("insert task: %w", ErrInvalidTask)
		}
		return dom.Task{}, fmt.Errorf("insert task: %w", err)
	}
	return t, nil
}

func (r *SQLiteTaskStore) FindByID(ctx context.Context, id int64) (dom.Task, error) {
	query := `SELECT ` + sqliteTaskColumns + ` FROM tasks WHERE id = ?`
	t, err := scanSQLiteTask(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return dom.Task{}, fmt.Errorf("find task %d: %w", id, ErrNotFound)
		}
		return dom.Task{}, fmt.Errorf("find task %d: %w", id, err)
	}
	return t, nil
}

func (r *SQLiteTaskStore) Save(ctx context.Context, t dom.Task) (dom.Task, error) {
	query := `
		UPDATE tasks SET title = ?, description = ?, completed = (completed OR ?)
		WHERE id = ?
		RETURNING ` + sqliteTaskColumns
	out, err := scanSQLiteTask(r.q.QueryRowContext(ctx, query, t.Title, t.Description, t.Completed, t.ID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return dom.Task{}, fmt.Errorf("save task %d: %w", t.ID, ErrNotFound)
		}
		if isSQLiteConstraint(err) {
			return dom.Task{}, fmt.Errorf("save task %d: %w", t.ID, ErrInvalidTask)
		}
		return dom.Task{}, fmt.Errorf("save task %d: %w", t.ID, err)
	}
	return out, nil
}

func (r *SQLiteTaskStore) QueryLatestActive(ctx context.Context, limit int) ([]dom.Task, error) {
	list := []dom.Task{}
	if limit <= 0 {
		return list, nil
	}
	query := `
		SELECT ` + sqliteTaskColumns + `
		FROM tasks WHERE completed = 0
		ORDER BY created_at DESC, id DESC
		LIMIT ?`
	rows, err := r.q.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query latest active: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		t, err := scanSQLiteTask(rows)
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

func (r *SQLiteTaskStore) WithinTx(ctx context.Context, fn func(TaskStore) error) error {
	if r.inTx {
		return fn(r)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&SQLiteTaskStore{db: r.db, q: tx, inTx: true, now: r.now}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *SQLiteTaskStore) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteTaskStore) Close() error {
	if r.inTx {
		return nil
	}
	return r.db.Close()
}

func scanSQLiteTask(row rowScanner) (dom.Task, error) {
	var (
		t         dom.Task
		createdAt int64
	)
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Completed, &createdAt); err != nil {
		return dom.Task{}, err
	}
	t.CreatedAt = time.UnixMicro(createdAt).UTC()
	return t, nil
}

func isSQLiteConstraint(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrConstraint
	}
	return false
}
