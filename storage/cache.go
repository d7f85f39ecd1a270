package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"unitask/domain"
)

type unifiedBackend interface {
	FindAll(ctx context.Context) ([]domain.UnifiedTask, error)
	Create(ctx context.Context, task domain.UnifiedTask) (domain.UnifiedTask, error)
	Update(ctx context.Context, id string, patch domain.TaskPatch) (domain.UnifiedTask, error)
	Delete(ctx context.Context, id string) error
}

// Cache wraps a unified task repository with redis-backed caching for
// the full-list read. Every write evicts.
type Cache struct {
	base  unifiedBackend
	redis *redis.Client
	ttl   time.Duration
	key   string
}

// NewCache creates a caching wrapper using the provided redis client
// and TTL. The project id keeps instances from sharing entries.
func NewCache(base unifiedBackend, client *redis.Client, projectID string, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base repository is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl, key: "unified:" + projectID}
}

func (c *Cache) FindAll(ctx context.Context) ([]domain.UnifiedTask, error) {
	if tasks, ok := c.load(ctx); ok {
		return tasks, nil
	}
	tasks, err := c.base.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, tasks)
	return tasks, nil
}

func (c *Cache) Create(ctx context.Context, task domain.UnifiedTask) (domain.UnifiedTask, error) {
	created, err := c.base.Create(ctx, task)
	if err != nil {
		return domain.UnifiedTask{}, err
	}
	c.evict(ctx)
	return created, nil
}

func (c *Cache) Update(ctx context.Context, id string, patch domain.TaskPatch) (domain.UnifiedTask, error) {
	updated, err := c.base.Update(ctx, id, patch)
	if err != nil {
		return domain.UnifiedTask{}, err
	}
	c.evict(ctx)
	return updated, nil
}

func (c *Cache) Delete(ctx context.Context, id string) error {
	if err := c.base.Delete(ctx, id); err != nil {
		return err
	}
	c.evict(ctx)
	return nil
}

func (c *Cache) load(ctx context.Context) ([]domain.UnifiedTask, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, c.key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without
			// failing the read.
			_ = c.redis.Del(ctx, c.key).Err()
		}
		return nil, false
	}
	var tasks []domain.UnifiedTask
	if err := sonic.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, c.key).Err()
		return nil, false
	}
	return tasks, true
}

func (c *Cache) store(ctx context.Context, tasks []domain.UnifiedTask) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(tasks)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, c.key, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, c.key).Err()
}
