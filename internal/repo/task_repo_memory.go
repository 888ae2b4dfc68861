package repo

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	dom "tasktracker/internal/domain"
)

// MemoryTaskStore keeps tasks in process memory. Used for local runs and tests.
type MemoryTaskStore struct {
	mu     sync.Mutex
	nextID int64
	tasks  map[int64]dom.Task
	now    func() time.Time
}

// NewMemoryTaskStore returns an empty in-memory store.
func NewMemoryTaskStore(opts ...Option) *MemoryTaskStore {
	o := buildOptions(opts)
	return &MemoryTaskStore{tasks: make(map[int64]dom.Task), now: o.now}
}

func (s *MemoryTaskStore) Insert(ctx context.Context, title, description string) (dom.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(title, description)
}

func (s *MemoryTaskStore) FindByID(ctx context.Context, id int64) (dom.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(id)
}

func (s *MemoryTaskStore) Save(ctx context.Context, t dom.Task) (dom.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(t)
}

func (s *MemoryTaskStore) QueryLatestActive(ctx context.Context, limit int) ([]dom.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latestActive(limit), nil
}

// WithinTx holds the store lock while fn runs. fn must only use the store it is given.
func (s *MemoryTaskStore) WithinTx(ctx context.Context, fn func(TaskStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[int64]dom.Task, len(s.tasks))
	for id, t := range s.tasks {
		snapshot[id] = t
	}

	// On failure the rows roll back but nextID does not, so ids are never reused.
	if err := fn(memoryTx{s}); err != nil {
		s.tasks = snapshot
		return err
	}
	return nil
}

func (s *MemoryTaskStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryTaskStore) Close() error { return nil }

func (s *MemoryTaskStore) insert(title, description string) (dom.Task, error) {
	if strings.TrimSpace(title) == "" {
		return dom.Task{}, fmt.Errorf("insert task: %w", ErrInvalidTask)
	}
	s.nextID++
	t := dom.Task{
		ID:          s.nextID,
		Title:       title,
		Description: description,
		CreatedAt:   stamp(s.now()),
	}
	s.tasks[t.ID] = t
	return t, nil
}

func (s *MemoryTaskStore) find(id int64) (dom.Task, error) {
	t, ok := s.tasks[id]
	if !ok {
		return dom.Task{}, fmt.Errorf("find task %d: %w", id, ErrNotFound)
	}
	return t, nil
}

func (s *MemoryTaskStore) save(t dom.Task) (dom.Task, error) {
	existing, ok := s.tasks[t.ID]
	if !ok {
		return dom.Task{}, fmt.Errorf("save task %d: %w", t.ID, ErrNotFound)
	}
	if strings.TrimSpace(t.Title) == "" {
		return dom.Task{}, fmt.Errorf("save task %d: %w", t.ID, ErrInvalidTask)
	}
	existing.Title = t.Title
	existing.Description = t.Description
	existing.Completed = existing.Completed || t.Completed
	s.tasks[t.ID] = existing
	return existing, nil
}

func (s *MemoryTaskStore) latestActive(limit int) []dom.Task {
	list := []dom.Task{}
	if limit <= 0 {
		return list
	}
	for _, t := range s.tasks {
		if t.Active() {
			list = append(list, t)
		}
	}
	slices.SortFunc(list, func(a, b dom.Task) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if len(list) > limit {
		list = list[:limit]
	}
	return list
}

// memoryTx is the view handed to WithinTx callbacks; the lock is already held.
type memoryTx struct{ s *MemoryTaskStore }

func (tx memoryTx) Insert(ctx context.Context, title, description string) (dom.Task, error) {
	return tx.s.insert(title, description)
}

func (tx memoryTx) FindByID(ctx context.Context, id int64) (dom.Task, error) {
	return tx.s.find(id)
}

func (tx memoryTx) Save(ctx context.Context, t dom.Task) (dom.Task, error) {
	return tx.s.save(t)
}

func (tx memoryTx) QueryLatestActive(ctx context.Context, limit int) ([]dom.Task, error) {
	return tx.s.latestActive(limit), nil
}

func (tx memoryTx) WithinTx(ctx context.Context, fn func(TaskStore) error) error {
	return fn(tx)
}

func (tx memoryTx) Ping(ctx context.Context) error { return nil }

func (tx memoryTx) Close() error { return nil }
