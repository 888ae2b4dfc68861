package repo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	dom "tasktracker/internal/domain"
)

// stepClock advances by step on every call so inserts get strictly increasing timestamps.
type stepClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC), step: time.Minute}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.step)
	return c.t
}

// runStoreContract exercises the TaskStore contract against a fresh, empty store per case.
func runStoreContract(t *testing.T, newStore func(t *testing.T) TaskStore) {
	ctx := context.Background()

	t.Run("InsertAssignsIdentityAndTimestamp", func(t *testing.T) {
		s := newStore(t)
		a := mustInsert(t, s, "Buy Milk", "two litres")
		b := mustInsert(t, s, "Review Code", "")

		if a.ID <= 0 || b.ID <= a.ID {
			t.Fatalf("ids must be positive and increasing: %d, %d", a.ID, b.ID)
		}
		if a.Completed {
			t.Fatalf("new task must be active")
		}
		if a.CreatedAt.IsZero() {
			t.Fatalf("CreatedAt not assigned")
		}
		if a.CreatedAt.Location() != time.UTC {
			t.Fatalf("CreatedAt should be UTC, got %v", a.CreatedAt.Location())
		}

		got, err := s.FindByID(ctx, a.ID)
		if err != nil {
			t.Fatalf("FindByID: %v", err)
		}
		if got.ID != a.ID || got.Title != "Buy Milk" || got.Description != "two litres" || got.Completed {
			t.Fatalf("FindByID returned %+v, want %+v", got, a)
		}
		if !got.CreatedAt.Equal(a.CreatedAt) {
			t.Fatalf("CreatedAt changed between insert and lookup: %v vs %v", a.CreatedAt, got.CreatedAt)
		}
	})

	t.Run("InsertRejectsEmptyTitle", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Insert(ctx, "", "x")
		if !errors.Is(err, ErrInvalidTask) {
			t.Fatalf("want ErrInvalidTask, got %v", err)
		}
	})

	t.Run("FindByIDMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.FindByID(ctx, 4242)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("want ErrNotFound, got %v", err)
		}
	})

	t.Run("LatestActiveSkipsCompletedNewestFirst", func(t *testing.T) {
		s := newStore(t)
		a := mustInsert(t, s, "Buy Milk", "")
		b := mustInsert(t, s, "Finished Project", "")
		b.Completed = true
		if _, err := s.Save(ctx, b); err != nil {
			t.Fatalf("Save: %v", err)
		}
		c := mustInsert(t, s, "Review Code", "")
		d := mustInsert(t, s, "Call Client", "")

		got, err := s.QueryLatestActive(ctx, 3)
		if err != nil {
			t.Fatalf("QueryLatestActive: %v", err)
		}
		assertIDs(t, got, d.ID, c.ID, a.ID)
		assertNewestFirst(t, got)
	})

	t.Run("LatestActiveLimitLargerThanAvailable", func(t *testing.T) {
		s := newStore(t)
		x := mustInsert(t, s, "Task X", "")
		y := mustInsert(t, s, "Task Y", "")

		got, err := s.QueryLatestActive(ctx, 10)
		if err != nil {
			t.Fatalf("QueryLatestActive: %v", err)
		}
		assertIDs(t, got, y.ID, x.ID)
	})

	t.Run("LatestActiveRespectsLimit", func(t *testing.T) {
		s := newStore(t)
		for _, title := range []string{"Task A", "Task B", "Task C"} {
			mustInsert(t, s, title, "")
		}
		got, err := s.QueryLatestActive(ctx, 2)
		if err != nil {
			t.Fatalf("QueryLatestActive: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("want 2 tasks, got %d", len(got))
		}
		if got[0].Title != "Task C" || got[1].Title != "Task B" {
			t.Fatalf("wrong order: %q, %q", got[0].Title, got[1].Title)
		}
	})

	t.Run("LatestActiveEmpty", func(t *testing.T) {
		s := newStore(t)
		got, err := s.QueryLatestActive(ctx, 5)
		if err != nil {
			t.Fatalf("QueryLatestActive: %v", err)
		}
		if got == nil || len(got) != 0 {
			t.Fatalf("want non-nil empty slice, got %#v", got)
		}
	})

	t.Run("LatestActiveAllCompleted", func(t *testing.T) {
		s := newStore(t)
		for _, title := range []string{"Task 1", "Task 2"} {
			tk := mustInsert(t, s, title, "")
			tk.Completed = true
			if _, err := s.Save(ctx, tk); err != nil {
				t.Fatalf("Save: %v", err)
			}
		}
		got, err := s.QueryLatestActive(ctx, 2)
		if err != nil {
			t.Fatalf("QueryLatestActive: %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("want no active tasks, got %d", len(got))
		}
	})

	t.Run("LatestActiveNonPositiveLimit", func(t *testing.T) {
		s := newStore(t)
		mustInsert(t, s, "Task", "")
		got, err := s.QueryLatestActive(ctx, 0)
		if err != nil {
			t.Fatalf("QueryLatestActive: %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("limit 0 at the store level returns nothing, got %d", len(got))
		}
	})

	t.Run("SaveNeverReopens", func(t *testing.T) {
		s := newStore(t)
		tk := mustInsert(t, s, "Task", "")
		tk.Completed = true
		if _, err := s.Save(ctx, tk); err != nil {
			t.Fatalf("Save: %v", err)
		}
		tk.Completed = false
		out, err := s.Save(ctx, tk)
		if err != nil {
			t.Fatalf("Save: %v", err)
		}
		if !out.Completed {
			t.Fatalf("Save reopened a completed task")
		}
	})

	t.Run("SaveIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		tk := mustInsert(t, s, "Task", "desc")
		tk.Completed = true
		first, err := s.Save(ctx, tk)
		if err != nil {
			t.Fatalf("Save: %v", err)
		}
		second, err := s.Save(ctx, tk)
		if err != nil {
			t.Fatalf("Save: %v", err)
		}
		if first.ID != second.ID || first.Title != second.Title || first.Completed != second.Completed ||
			!first.CreatedAt.Equal(second.CreatedAt) {
			t.Fatalf("re-saving changed state: %+v vs %+v", first, second)
		}
	})

	t.Run("SaveMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Save(ctx, dom.Task{ID: 99, Title: "ghost", Completed: true})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("want ErrNotFound, got %v", err)
		}
	})

	t.Run("WithinTxRollsBack", func(t *testing.T) {
		s := newStore(t)
		tk := mustInsert(t, s, "Task", "")
		boom := errors.New("boom")

		err := s.WithinTx(ctx, func(tx TaskStore) error {
			cur, err := tx.FindByID(ctx, tk.ID)
			if err != nil {
				return err
			}
			cur.Completed = true
			if _, err := tx.Save(ctx, cur); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("want callback error back, got %v", err)
		}
		got, err := s.FindByID(ctx, tk.ID)
		if err != nil {
			t.Fatalf("FindByID: %v", err)
		}
		if got.Completed {
			t.Fatalf("failed transaction left the task completed")
		}
	})

	t.Run("WithinTxCommits", func(t *testing.T) {
		s := newStore(t)
		tk := mustInsert(t, s, "Task", "")
		err := s.WithinTx(ctx, func(tx TaskStore) error {
			cur, err := tx.FindByID(ctx, tk.ID)
			if err != nil {
				return err
			}
			cur.Completed = true
			_, err = tx.Save(ctx, cur)
			return err
		})
		if err != nil {
			t.Fatalf("WithinTx: %v", err)
		}
		got, _ := s.FindByID(ctx, tk.ID)
		if !got.Completed {
			t.Fatalf("committed completion not visible")
		}
	})

	t.Run("ConcurrentCompletionsConverge", func(t *testing.T) {
		s := newStore(t)
		tk := mustInsert(t, s, "Contended", "")
		other := mustInsert(t, s, "Bystander", "")

		var wg sync.WaitGroup
		errs := make(chan error, 16)
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- s.WithinTx(ctx, func(tx TaskStore) error {
					cur, err := tx.FindByID(ctx, tk.ID)
					if err != nil {
						return err
					}
					cur.Completed = true
					_, err = tx.Save(ctx, cur)
					return err
				})
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("concurrent completion failed: %v", err)
			}
		}

		got, _ := s.FindByID(ctx, tk.ID)
		if !got.Completed {
			t.Fatalf("task not completed after concurrent completions")
		}
		untouched, _ := s.FindByID(ctx, other.ID)
		if untouched.Completed {
			t.Fatalf("completing one task touched another")
		}
	})
}

func mustInsert(t *testing.T, s TaskStore, title, desc string) dom.Task {
	t.Helper()
	tk, err := s.Insert(context.Background(), title, desc)
	if err != nil {
		t.Fatalf("Insert(%q): %v", title, err)
	}
	return tk
}

func assertIDs(t *testing.T, got []dom.Task, want ...int64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d tasks, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Fatalf("position %d: got id %d, want %d", i, got[i].ID, want[i])
		}
		if got[i].Completed {
			t.Fatalf("position %d: completed task in active list", i)
		}
	}
}

func assertNewestFirst(t *testing.T, got []dom.Task) {
	t.Helper()
	for i := 1; i < len(got); i++ {
		if got[i-1].CreatedAt.Before(got[i].CreatedAt) {
			t.Fatalf("not newest first at %d: %v before %v", i, got[i-1].CreatedAt, got[i].CreatedAt)
		}
	}
}
