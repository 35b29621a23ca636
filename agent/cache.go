package agent

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

type Cache[S any] interface {
	Set(ctx context.Context, key string, val S) error
	Get(ctx context.Context, key string) (S, bool, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

type MemoryCache[S any] struct {
	mu sync.RWMutex
	m  map[string]S
}

func NewMemoryCache[S any]() *MemoryCache[S] {
	return &MemoryCache[S]{m: map[string]S{}}
}

func (m *MemoryCache[S]) Set(ctx context.Context, key string, val S) error {
	m.mu.Lock()
	m.m[key] = val
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache[S]) Get(ctx context.Context, key string) (S, bool, error) {
	m.mu.RLock()
	val, ok := m.m[key]
	m.mu.RUnlock()
	return val, ok, nil
}

func (m *MemoryCache[S]) Del(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.m, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache[S]) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	_, ok := m.m[key]
	m.mu.RUnlock()
	return ok, nil
}

// GoCache is a Cache on top of patrickmn/go-cache. A ttl of zero or less
// keeps entries until they are deleted.
type GoCache[S any] struct {
	c *cache.Cache
}

func NewGoCache[S any](ttl time.Duration) *GoCache[S] {
	if ttl <= 0 {
		return &GoCache[S]{c: cache.New(cache.NoExpiration, 0)}
	}
	return &GoCache[S]{c: cache.New(ttl, ttl)}
}

func (g *GoCache[S]) Set(ctx context.Context, key string, val S) error {
	g.c.Set(key, val, cache.DefaultExpiration)
	return nil
}

func (g *GoCache[S]) Get(ctx context.Context, key string) (S, bool, error) {
	var zero S
	x, found := g.c.Get(key)
	if !found {
		return zero, false, nil
	}
	val, ok := x.(S)
	if !ok {
		return zero, false, nil
	}
	return val, true, nil
}

func (g *GoCache[S]) Del(ctx context.Context, key string) error {
	g.c.Delete(key)
	return nil
}

func (g *GoCache[S]) Exists(ctx context.Context, key string) (bool, error) {
	_, found := g.c.Get(key)
	return found, nil
}
