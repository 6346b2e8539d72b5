// Package cache memoizes finished analyses by input fingerprint.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mind-engage/mindengage-cohorts/internal/analysis"
)

const Prefix = "cohort:result:"

type Cache interface {
	Get(ctx context.Context, key string) (*analysis.Result, bool, error)
	Set(ctx context.Context, key string, res *analysis.Result, ttl time.Duration) error
}

var ErrEmptyKey = errors.New("cache: key cannot be empty")

func encode(res *analysis.Result) ([]byte, error) {
	if res == nil {
		return nil, errors.New("cache: value cannot be nil")
	}
	b, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("cache: encode: %w", err)
	}
	return b, nil
}

// decode restores a result. The clustering failure survives only as its
// message, which is what the report carries too.
func decode(b []byte) (*analysis.Result, error) {
	var res analysis.Result
	if err := json.Unmarshal(b, &res); err != nil {
		return nil, fmt.Errorf("cache: decode: %w", err)
	}
	if res.Cluster == nil && res.Report.ClusterError != "" {
		res.ClusterErr = errors.New(res.Report.ClusterError)
	}
	return &res, nil
}

// RedisCache stores JSON-encoded results under Prefix.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache { return &RedisCache{client: client} }

// Dial connects and pings before returning.
func Dial(ctx context.Context, addr, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: connect %s: %w", addr, err)
	}
	return NewRedisCache(client), nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (*analysis.Result, bool, error) {
	if key == "" {
		return nil, false, ErrEmptyKey
	}
	b, err := c.client.Get(ctx, Prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	res, err := decode(b)
	if err != nil {
		return nil, false, err
	}
	return res, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, res *analysis.Result, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	b, err := encode(res)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, Prefix+key, b, ttl).Err()
}

func (c *RedisCache) Ping(ctx context.Context) error { return c.client.Ping(ctx).Err() }

func (c *RedisCache) Close() error { return c.client.Close() }

type memoryEntry struct {
	data    []byte
	expires time.Time // zero means never
}

// MemoryCache keeps encoded results in process, so callers get a fresh copy
// on every hit.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: map[string]memoryEntry{}, now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) (*analysis.Result, bool, error) {
	if key == "" {
		return nil, false, ErrEmptyKey
	}
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && !e.expires.IsZero() && !c.now().Before(e.expires) {
		delete(c.entries, key)
		ok = false
	}
	c.mu.Unlock()
	if !ok {
		return nil, false, nil
	}
	res, err := decode(e.data)
	if err != nil {
		return nil, false, err
	}
	return res, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, res *analysis.Result, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	b, err := encode(res)
	if err != nil {
		return err
	}
	e := memoryEntry{data: b}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return nil
}

// Nop never hits.
type Nop struct{}

func (Nop) Get(context.Context, string) (*analysis.Result, bool, error) { return nil, false, nil }

func (Nop) Set(context.Context, string, *analysis.Result, time.Duration) error { return nil }
