package cache

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

var ErrMiss = errors.New("cache: miss")

// Backend is the key/value store under Cache.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error) // ErrMiss when absent
	Set(ctx context.Context, key string, b []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type Cache struct {
	backend Backend
	sf      singleflight.Group
	// 每次 Delete 加一；回源期间发生过失效则不回写
	epoch atomic.Uint64
}

func NewWithBackend(b Backend) *Cache { return &Cache{backend: b} }

// New 连接 redis
func New(addr, pass string, db int) *Cache {
	return NewWithBackend(&redisBackend{rdb: redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db})})
}

// NewMemory keeps entries in process; janitor runs every minute.
func NewMemory(defaultTTL time.Duration) *Cache {
	return NewWithBackend(&memoryBackend{c: gocache.New(defaultTTL, time.Minute)})
}

// GetOrLoad reads key or fills it from load. A load that overlaps a Delete
// on this Cache is returned but not stored. Deletes issued by other
// processes sharing a redis backend are not seen here; for them ttl is the
// staleness bound.
func (c *Cache) GetOrLoad(ctx context.Context, key string, ttl time.Duration, load func(context.Context) ([]byte, error)) ([]byte, error) {
	if b, err := c.backend.Get(ctx, key); err == nil {
		return b, nil
	}
	// single flight 合并回源
	v, err, _ := c.sf.Do(key, func() (any, error) {
		start := c.epoch.Load()
		b, e := load(ctx)
		if e != nil {
			return nil, e
		}
		if c.epoch.Load() == start {
			_ = c.backend.Set(ctx, key, b, ttl)
		}
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Close releases the backend connection, if it holds one.
func (c *Cache) Close() error {
	if cl, ok := c.backend.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	c.epoch.Add(1)
	err := c.backend.Delete(ctx, keys...)
	c.epoch.Add(1)
	return err
}

type redisBackend struct{ rdb *redis.Client }

func (r *redisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return b, err
}

func (r *redisBackend) Set(ctx context.Context, key string, b []byte, ttl time.Duration) error {
	return r.rdb.Set(ctx, key, b, ttl).Err()
}

func (r *redisBackend) Close() error { return r.rdb.Close() }

func (r *redisBackend) Delete(ctx context.Context, keys ...string) error {
	return r.rdb.Del(ctx, keys...).Err()
}

type memoryBackend struct{ c *gocache.Cache }

func (m *memoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	b, _ := v.([]byte)
	return b, nil
}

func (m *memoryBackend) Set(_ context.Context, key string, b []byte, ttl time.Duration) error {
	m.c.Set(key, b, ttl)
	return nil
}

func (m *memoryBackend) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		m.c.Delete(k)
	}
	return nil
}
