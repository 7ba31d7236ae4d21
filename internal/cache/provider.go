// Package cache provides expiring key/value caches for remote register lookups.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Provider defines the cache operations used by the register clients.
type Provider interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Close() error
}

// ErrCacheMiss signals that a cache key was not found or has expired.
var ErrCacheMiss = errors.New("cache miss")

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is an in-process Provider. Expired entries are dropped on read.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
	nowFunc func() time.Time
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]entry),
		nowFunc: time.Now,
	}
}

// Get implements Provider.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrCacheMiss
	}
	if !e.expiresAt.IsZero() && !m.nowFunc().Before(e.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, ErrCacheMiss
	}
	return e.value, nil
}

// Set implements Provider. A non-positive ttl never expires.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = m.nowFunc().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

// Del implements Provider.
func (m *Memory) Del(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Close implements Provider.
func (m *Memory) Close() error { return nil }

// GetOrLoad returns the cached JSON value for key, or calls load and caches its
// result. Cache failures are logged and never fail the lookup. Concurrent misses
// may load more than once.
func GetOrLoad[T any](ctx context.Context, p Provider, key string, ttl time.Duration, load func(ctx context.Context) (T, error)) (T, error) {
	if p != nil {
		data, err := p.Get(ctx, key)
		if err == nil {
			var cached T
			if jsonErr := json.Unmarshal(data, &cached); jsonErr == nil {
				return cached, nil
			}
			zap.L().Debug("cache: dropping undecodable entry", zap.String("key", key))
		} else if !errors.Is(err, ErrCacheMiss) {
			zap.L().Warn("cache: get failed", zap.String("key", key), zap.Error(err))
		}
	}

	val, err := load(ctx)
	if err != nil {
		var zero T
		return zero, eris.Wrapf(err, "cache: load %s", key)
	}

	if p != nil {
		data, jsonErr := json.Marshal(val)
		if jsonErr == nil {
			if setErr := p.Set(ctx, key, data, ttl); setErr != nil {
				zap.L().Warn("cache: set failed", zap.String("key", key), zap.Error(setErr))
			}
		}
	}

	return val, nil
}
