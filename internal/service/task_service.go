package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"tasktracker/internal/cache"
	dom "tasktracker/internal/domain"
	"tasktracker/internal/metrics"
	"tasktracker/internal/repo"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultLimit replaces any requested limit <= 0.
	DefaultLimit = 5

	MaxTitleLength = 255
)

type TaskService struct {
	repo     repo.TaskStore
	cache    *cache.TaskCache
	sf       singleflight.Group
	maxLimit int
	log      *logrus.Entry
}

type Option func(*TaskService)

// WithMaxLimit clamps positive limits to n. n <= 0 leaves them unbounded.
func WithMaxLimit(n int) Option {
	return func(s *TaskService) { s.maxLimit = n }
}

// WithLogger sets the logger used for cache failures.
func WithLogger(l *logrus.Logger) Option {
	return func(s *TaskService) { s.log = l.WithField("component", "task_service") }
}

// NewTaskService creates a TaskService. If c is nil, caching is disabled.
func NewTaskService(r repo.TaskStore, c *cache.TaskCache, opts ...Option) *TaskService {
	s := &TaskService{repo: r, cache: c}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		s.log = logrus.NewEntry(l)
	}
	return s
}

// CreateTask persists a new active task. The store assigns ID and CreatedAt.
func (s *TaskService) CreateTask(ctx context.Context, title, description string) (dom.Task, error) {
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)

	if title == "" {
		return dom.Task{}, &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return dom.Task{}, &ValidationError{Field: "title", Reason: "must be at most " + strconv.Itoa(MaxTitleLength) + " characters"}
	}

	t, err := s.repo.Insert(ctx, title, description)
	if err != nil {
		if errors.Is(err, repo.ErrInvalidTask) {
			return dom.Task{}, &ValidationError{Field: "title", Reason: "rejected by storage"}
		}
		return dom.Task{}, fmt.Errorf("create task: %w", err)
	}
	metrics.TasksCreated.Inc()
	s.invalidateCache(ctx)
	return t, nil
}

// GetTask looks a task up by id.
func (s *TaskService) GetTask(ctx context.Context, id int64) (dom.Task, error) {
	t, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return dom.Task{}, &TaskNotFoundError{ID: id}
		}
		return dom.Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// GetLatestActiveTasks returns up to limit incomplete tasks, newest first.
// limit <= 0 means DefaultLimit. The result is never nil.
func (s *TaskService) GetLatestActiveTasks(ctx context.Context, limit int) ([]dom.Task, error) {
	limit = s.EffectiveLimit(limit)
	if s.cache == nil {
		return s.queryLatest(ctx, limit)
	}

	gen, err := s.cache.Generation(ctx)
	if err != nil {
		s.log.WithError(err).Warn("latest cache generation read failed")
		return s.queryLatest(ctx, limit)
	}

	// Callers only share a fill started at the generation they observed.
	// The fill outlives any single caller's request.
	key := "latest:" + strconv.FormatInt(gen, 10) + ":" + strconv.Itoa(limit)
	v, err, _ := s.sf.Do(key, func() (interface{}, error) {
		fillCtx := context.WithoutCancel(ctx)
		list, ok, err := s.cache.GetLatest(fillCtx, gen, limit)
		if err != nil {
			s.log.WithError(err).Warn("latest cache read failed")
		}
		if ok {
			metrics.LatestCacheHits.Inc()
			return list, nil
		}
		metrics.LatestCacheMisses.Inc()
		list, err = s.queryLatest(fillCtx, limit)
		if err != nil {
			return nil, err
		}
		if err := s.cache.SetLatest(fillCtx, gen, limit, list); err != nil {
			s.log.WithError(err).Warn("latest cache write failed")
		}
		return list, nil
	})
	if err != nil {
		return nil, err
	}
	// singleflight hands the same slice to every waiter
	return slices.Clone(v.([]dom.Task)), nil
}

// CompleteTask marks the task completed. Completing an already completed
// task succeeds and changes nothing.
func (s *TaskService) CompleteTask(ctx context.Context, id int64) error {
	err := s.repo.WithinTx(ctx, func(tx repo.TaskStore) error {
		t, err := tx.FindByID(ctx, id)
		if err != nil {
			return err
		}
		t.Completed = true
		_, err = tx.Save(ctx, t)
		return err
	})
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return &TaskNotFoundError{ID: id}
		}
		return fmt.Errorf("complete task %d: %w", id, err)
	}
	metrics.TasksCompleted.Inc()
	s.invalidateCache(ctx)
	return nil
}

// EffectiveLimit applies the default and the optional ceiling.
func (s *TaskService) EffectiveLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if s.maxLimit > 0 && limit > s.maxLimit {
		return s.maxLimit
	}
	return limit
}

func (s *TaskService) queryLatest(ctx context.Context, limit int) ([]dom.Task, error) {
	list, err := s.repo.QueryLatestActive(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("latest active tasks: %w", err)
	}
	if list == nil {
		list = []dom.Task{}
	}
	return list, nil
}

func (s *TaskService) invalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateAll(ctx); err != nil {
		s.log.WithError(err).Warn("latest cache invalidation failed")
	}
}
