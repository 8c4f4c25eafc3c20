// Package cache holds the string-keyed caches shared by the identity layer:
// address and identifier interning, per-meta address derivation and the
// cipher-key table.
package cache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// Pool is a bounded LRU whose misses are filled at most once per key, even
// when several goroutines miss the same key together.
type Pool[V any] struct {
	entries *lru.Cache[string, V]
	flight  singleflight.Group
}

func NewPool[V any](size int) *Pool[V] {
	return NewPoolWithEvict[V](size, nil)
}

// NewPoolWithEvict calls onEvict for every entry the LRU pushes out.
func NewPoolWithEvict[V any](size int, onEvict func(key string, v V)) *Pool[V] {
	if size <= 0 {
		size = 1024
	}
	entries, err := lru.NewWithEvict[string, V](size, onEvict)
	if err != nil {
		// only returned for a non-positive size
		panic(fmt.Sprintf("cache: %v", err))
	}
	return &Pool[V]{entries: entries}
}

func (p *Pool[V]) Get(key string) (V, bool) {
	return p.entries.Get(key)
}

// Put stores v, replacing any previous value.
func (p *Pool[V]) Put(key string, v V) {
	p.entries.Add(key, v)
}

// GetOrCreate returns the cached value for key or calls create once to fill
// it. Concurrent callers for the same key share that single call. A failed
// create caches nothing.
func (p *Pool[V]) GetOrCreate(key string, create func() (V, error)) (V, error) {
	if v, ok := p.entries.Get(key); ok {
		return v, nil
	}
	res, err, _ := p.flight.Do(key, func() (any, error) {
		if v, ok := p.entries.Peek(key); ok {
			return v, nil
		}
		v, err := create()
		if err != nil {
			return nil, err
		}
		p.entries.Add(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

func (p *Pool[V]) Len() int {
	return p.entries.Len()
}
