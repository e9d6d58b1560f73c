package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrMiss 键不存在或已过期
var ErrMiss = errors.New("cache miss")

// 原始数据缓存键
const (
	KeyStationsFeed = "stationgazer:feed:stations"
	KeyStatusFeed   = "stationgazer:feed:status"
)

// Cache 原始 feed 缓存
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

type entry struct {
	value     []byte
	expiresAt time.Time // 零值表示不过期
}

// LocalCache 进程内缓存，未配置 Redis 时使用
type LocalCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

// NewLocalCache 创建进程内缓存
func NewLocalCache() *LocalCache {
	return &LocalCache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

func (c *LocalCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, ErrMiss
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, ErrMiss
	}
	return e.value, nil
}

func (c *LocalCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return nil
}

func (c *LocalCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

func (c *LocalCache) Close() error {
	return nil
}
