package cipherkey

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"dim_chat/internal/cryptographic/keys"
	"dim_chat/internal/model"
	"dim_chat/internal/protocol/identity"
	"dim_chat/internal/utils/cache"
	"dim_chat/internal/utils/log"
)

const pairSeparator = "->"

// KeyStore persists cipher keys between runs. Entries are keyed by
// "sender->destination" and hold the key JSON.
type KeyStore interface {
	LoadCipherKeys(ctx context.Context) (map[string][]byte, error)
	SaveCipherKeys(ctx context.Context, entries map[string][]byte) error
}

// KeyCache holds one symmetric key per (sender, destination) pair. A key is
// generated at most once per pair, even under concurrent lookups.
type KeyCache struct {
	algorithm string
	pool      *cache.Pool[keys.SymmetricKey]
	store     KeyStore

	mu    sync.Mutex
	dirty map[string]struct{}
	// evicted holds dirty keys the LRU pushed out before they were flushed.
	evicted map[string]keys.SymmetricKey
}

// NewKeyCache returns a cache generating algorithm keys on miss. store may be
// nil.
func NewKeyCache(algorithm string, size int, store KeyStore) *KeyCache {
	c := &KeyCache{
		algorithm: algorithm,
		store:     store,
		dirty:     make(map[string]struct{}),
		evicted:   make(map[string]keys.SymmetricKey),
	}
	c.pool = cache.NewPoolWithEvict[keys.SymmetricKey](size, c.onEvict)
	return c
}

func (c *KeyCache) onEvict(k string, key keys.SymmetricKey) {
	if c.store == nil {
		return
	}
	c.mu.Lock()
	if _, ok := c.dirty[k]; ok {
		c.evicted[k] = key
	}
	c.mu.Unlock()
}

func pair(sender, destination *identity.ID) string {
	return sender.String() + pairSeparator + destination.String()
}

func (c *KeyCache) markDirty(k string) {
	c.mu.Lock()
	c.dirty[k] = struct{}{}
	c.mu.Unlock()
}

// CipherKey returns the key for (sender, destination). Broadcast destinations
// always get the plain key. Without generate a miss is ErrKeyNotFound.
func (c *KeyCache) CipherKey(sender, destination *identity.ID, generate bool) (keys.SymmetricKey, error) {
	if destination.IsBroadcast() {
		return keys.Plain, nil
	}
	k := pair(sender, destination)
	if !generate {
		if key, ok := c.pool.Get(k); ok {
			return key, nil
		}
		return nil, fmt.Errorf("%w: cipher key %s", model.ErrKeyNotFound, k)
	}
	return c.pool.GetOrCreate(k, func() (keys.SymmetricKey, error) {
		key, err := keys.GenerateSymmetricKey(c.algorithm)
		if err != nil {
			return nil, err
		}
		c.markDirty(k)
		return key, nil
	})
}

// CacheCipherKey stores key for (sender, destination). Broadcast keys are
// never stored.
func (c *KeyCache) CacheCipherKey(sender, destination *identity.ID, key keys.SymmetricKey) {
	if destination.IsBroadcast() || keys.IsPlain(key) {
		return
	}
	k := pair(sender, destination)
	if old, ok := c.pool.Get(k); ok && keys.Equal(old, key) {
		return
	}
	c.pool.Put(k, key)
	c.markDirty(k)
}

func (c *KeyCache) Len() int {
	return c.pool.Len()
}

// Reload fills the cache from the store. Entries that fail to parse are
// skipped and reported together.
func (c *KeyCache) Reload(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	entries, err := c.store.LoadCipherKeys(ctx)
	if err != nil {
		return fmt.Errorf("failed to load cipher keys: %w", err)
	}
	var errs error
	for k, data := range entries {
		if !strings.Contains(k, pairSeparator) {
			errs = multierr.Append(errs, fmt.Errorf("bad cipher key entry %q", k))
			continue
		}
		key, err := keys.UnmarshalSymmetricKey(data)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("cipher key %s: %w", k, err))
			continue
		}
		c.pool.Put(k, key)
	}
	log.Debug("cipher keys reloaded", zap.Int("count", len(entries)), zap.Error(errs))
	return errs
}

// Flush writes the keys changed since the last flush.
func (c *KeyCache) Flush(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	c.mu.Lock()
	pending := c.dirty
	evicted := c.evicted
	c.dirty = make(map[string]struct{})
	c.evicted = make(map[string]keys.SymmetricKey)
	c.mu.Unlock()
	if len(pending) == 0 {
		return nil
	}

	entries := make(map[string][]byte, len(pending))
	lost := 0
	for k := range pending {
		key, ok := c.pool.Get(k)
		if !ok {
			if key, ok = evicted[k]; !ok {
				lost++
				continue
			}
		}
		data, err := keys.Marshal(key)
		if err != nil {
			return err
		}
		entries[k] = data
	}
	if err := c.store.SaveCipherKeys(ctx, entries); err != nil {
		c.mu.Lock()
		for k := range pending {
			c.dirty[k] = struct{}{}
		}
		for k, key := range evicted {
			if _, ok := c.evicted[k]; !ok {
				c.evicted[k] = key
			}
		}
		c.mu.Unlock()
		return fmt.Errorf("failed to save cipher keys: %w", err)
	}
	log.Debug("cipher keys flushed", zap.Int("count", len(entries)), zap.Int("lost", lost))
	return nil
}
