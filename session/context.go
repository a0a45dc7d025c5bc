// Package session provides per-request session context implementations:
// a Redis-backed one for production and an in-memory one for tests. The
// engine treats both as an opaque key/value bag.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Factory builds Redis-backed contexts sharing one client, prefix, and
// TTL.
type Factory struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewFactory(client *redis.Client, prefix string, ttl time.Duration) *Factory {
	if prefix == "" {
		prefix = "ra"
	}
	return &Factory{client: client, prefix: prefix, ttl: ttl}
}

// NewID returns a fresh session identifier: 16 random bytes, base64url.
func (f *Factory) NewID() (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// Context binds a session id to the request context. The returned value
// lives for one request; errors on individual reads degrade to defaults.
func (f *Factory) Context(ctx context.Context, sessionID string) *RedisContext {
	return &RedisContext{
		ctx:    ctx,
		client: f.client,
		key:    f.prefix + ":sess:" + sessionID,
		ttl:    f.ttl,
	}
}

// Destroy removes the session hash.
func (f *Factory) Destroy(ctx context.Context, sessionID string) error {
	return f.client.Del(ctx, f.prefix+":sess:"+sessionID).Err()
}

// RedisContext stores session keys in one Redis hash with a sliding TTL.
type RedisContext struct {
	ctx    context.Context
	client *redis.Client
	key    string
	ttl    time.Duration
}

func (c *RedisContext) Get(key, def string) string {
	val, err := c.client.HGet(c.ctx, c.key, key).Result()
	if err != nil {
		return def
	}
	return val
}

func (c *RedisContext) Set(key, value string) {
	pipe := c.client.Pipeline()
	pipe.HSet(c.ctx, c.key, key, value)
	if c.ttl > 0 {
		pipe.Expire(c.ctx, c.key, c.ttl)
	}
	_, _ = pipe.Exec(c.ctx)
}

// Memory is a map-backed context for tests and single-process setups.
type Memory struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(key, def string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.values[key]; ok {
		return v
	}
	return def
}

func (m *Memory) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}
