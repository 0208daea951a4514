// Package cache provides the trimmed key/value cache used by the insight
// enricher's LLM response cache (§4.4) and, optionally, the correlator's
// persistent dedup backend (§4.3). It is a deliberately narrow cut of the
// teacher's ValkeyCluster interface: no session management, no adaptive
// sizing, no pattern-index invalidation — this pipeline only ever needs
// get/set/delete/set-if-absent with a TTL.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platformbuilds/fleetops-core/pkg/logger"
)

// Cache is the interface every component depends on. Both implementations
// below satisfy it.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// SetNX sets key only if absent, returning whether it set the value.
	// Used by the correlator's optional persistent dedup backend to make
	// the dedup check-and-set atomic across replicas.
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
}

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = fmt.Errorf("cache: key not found")

func marshal(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return json.Marshal(v)
	}
}

// redisCache is backed by a go-redis client; it accepts either a single
// node or cluster client via the Cmdable interface.
type redisCache struct {
	client redis.Cmdable
	ttl    time.Duration
	log    logger.Logger
}

// NewRedis connects to a Redis/Valkey cluster at the given nodes.
func NewRedis(nodes []string, password string, db int, defaultTTL time.Duration, log logger.Logger) (Cache, error) {
	var client redis.Cmdable
	if len(nodes) > 1 {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        nodes,
			Password:     password,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			PoolSize:     10,
			MinIdleConns: 5,
		})
	} else {
		addr := "localhost:6379"
		if len(nodes) == 1 {
			addr = nodes[0]
		}
		client = redis.NewClient(&redis.Options{
			Addr:         addr,
			Password:     password,
			DB:           db,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			PoolSize:     10,
			MinIdleConns: 5,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: connect: %w", err)
	}

	return &redisCache{client: client, ttl: defaultTTL, log: log}, nil
}

func (c *redisCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cache: get %s: %w", key, err)
	}
	return b, nil
}

func (c *redisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := marshal(value)
	if err != nil {
		return fmt.Errorf("cache: marshal %s: %w", key, err)
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

func (c *redisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache: delete %s: %w", key, err)
	}
	return nil
}

func (c *redisCache) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	data, err := marshal(value)
	if err != nil {
		return false, fmt.Errorf("cache: marshal %s: %w", key, err)
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	ok, err := c.client.SetNX(ctx, key, data, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("cache: setnx %s: %w", key, err)
	}
	return ok, nil
}

// memoryCache is the in-process backend, used when cache.backend is
// "memory". It is not substituted when the redis backend is unreachable:
// NewRedis then returns an error.
type memoryCache struct {
	mu  sync.Mutex
	m   map[string]memoryEntry
	ttl time.Duration
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// NewMemory returns a process-local cache. Not shared across replicas;
// lost on restart.
func NewMemory(defaultTTL time.Duration) Cache {
	return &memoryCache{m: make(map[string]memoryEntry), ttl: defaultTTL}
}

func (m *memoryCache) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.m[key]
	if !ok || time.Now().After(e.expires) {
		delete(m.m, key)
		return nil, ErrNotFound
	}
	return e.value, nil
}

func (m *memoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := marshal(value)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = m.ttl
	}
	m.mu.Lock()
	m.m[key] = memoryEntry{value: data, expires: time.Now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *memoryCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.m, key)
	m.mu.Unlock()
	return nil
}

func (m *memoryCache) SetNX(_ context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.m[key]; ok && time.Now().Before(e.expires) {
		return false, nil
	}
	data, err := marshal(value)
	if err != nil {
		return false, err
	}
	if ttl <= 0 {
		ttl = m.ttl
	}
	m.m[key] = memoryEntry{value: data, expires: time.Now().Add(ttl)}
	return true, nil
}
