package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	dom "tasktracker/internal/domain"

	"github.com/redis/go-redis/v9"
)

const (
	keyLatestPrefix = "task:latest:"
	// keyLatestGen is bumped on every write. Lists are stored under the
	// generation they were read at, so a fill that raced a write lands in
	// a generation nobody reads any more.
	keyLatestGen = keyLatestPrefix + "gen"
)

// TaskCache caches latest-active query results in Redis, one key per generation and limit.
type TaskCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewTaskCache returns a new TaskCache.
func NewTaskCache(rdb *redis.Client, ttl time.Duration) *TaskCache {
	return &TaskCache{rdb: rdb, ttl: ttl}
}

// Generation returns the current write generation. 0 until the first write.
func (c *TaskCache) Generation(ctx context.Context) (int64, error) {
	n, err := c.rdb.Get(ctx, keyLatestGen).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// GetLatest returns the list cached for limit at gen. ok is false on a miss.
func (c *TaskCache) GetLatest(ctx context.Context, gen int64, limit int) (list []dom.Task, ok bool, err error) {
	b, err := c.rdb.Get(ctx, latestKey(gen, limit)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if err := json.Unmarshal(b, &list); err != nil {
		return nil, false, err
	}
	if list == nil {
		list = []dom.Task{}
	}
	return list, true, nil
}

// SetLatest stores the list for limit under gen.
func (c *TaskCache) SetLatest(ctx context.Context, gen int64, limit int, list []dom.Task) error {
	b, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, latestKey(gen, limit), b, c.ttl).Err()
}

// InvalidateAll starts a new generation. Lists cached under older
// generations are never read again and expire with their TTL.
func (c *TaskCache) InvalidateAll(ctx context.Context) error {
	return c.rdb.Incr(ctx, keyLatestGen).Err()
}

func latestKey(gen int64, limit int) string {
	return keyLatestPrefix + strconv.FormatInt(gen, 10) + ":" + strconv.Itoa(limit)
}
