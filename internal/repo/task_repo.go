package repo

import (
	"context"
	"errors"
	"time"

	dom "tasktracker/internal/domain"
)

var (
	// ErrNotFound is returned when no task has the requested id.
	ErrNotFound = errors.New("task not found")
	// ErrInvalidTask is returned when the backend rejects a row on a column constraint.
	ErrInvalidTask = errors.New("task violates storage constraints")
)

// TaskStore is the persistence boundary for tasks.
//
// Insert assigns ID and CreatedAt. Save never turns a completed task back
// into an active one. QueryLatestActive returns active tasks ordered by
// CreatedAt descending, then ID descending, capped at limit.
type TaskStore interface {
	Insert(ctx context.Context, title, description string) (dom.Task, error)
	FindByID(ctx context.Context, id int64) (dom.Task, error)
	Save(ctx context.Context, t dom.Task) (dom.Task, error)
	QueryLatestActive(ctx context.Context, limit int) ([]dom.Task, error)

	// WithinTx runs fn against a store whose reads and writes commit or
	// roll back together. Rows read by FindByID inside fn stay locked
	// until fn returns.
	WithinTx(ctx context.Context, fn func(TaskStore) error) error

	Ping(ctx context.Context) error
	Close() error
}

// Option configures the SQLite and in-memory stores.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the clock used to stamp CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// stamp normalizes a creation time the way Postgres stores it.
func stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// rowScanner covers pgx.Row, pgx.Rows, *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}
