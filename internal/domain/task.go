package domain

import "time"

// Task is the only managed entity.
// Не зависит от Gin, Postgres, Redis.
//
// ID and CreatedAt are assigned by the store on insert and never change.
// Completed only moves from false to true.
type Task struct {
	ID          int64
	Title       string
	Description string
	Completed   bool
	CreatedAt   time.Time
}

// Active reports whether the task still shows up in the latest-active list.
func (t Task) Active() bool { return !t.Completed }
