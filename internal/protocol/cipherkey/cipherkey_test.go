package cipherkey

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dim_chat/internal/cryptographic/keys"
	"dim_chat/internal/model"
	"dim_chat/internal/protocol/address"
	"dim_chat/internal/protocol/identity"
)

func newID(name string, network address.EntityType) *identity.ID {
	return identity.Create(name, address.GenerateBTC([]byte(name), uint8(network)), "")
}

var (
	alice = newID("alice", address.User)
	bob   = newID("bob", address.User)
	team  = newID("team", address.Group)
)

func TestDestination(t *testing.T) {
	cases := []struct {
		name     string
		receiver *identity.ID
		group    *identity.ID
		want     *identity.ID
	}{
		{"personal", bob, nil, bob},
		{"unsplit group", team, nil, team},
		{"broadcast receiver", identity.Anyone, nil, identity.Anyone},
		{"broadcast group receiver", identity.Everyone, nil, identity.Everyone},
		{"broadcast group", bob, identity.Everyone, identity.Everyone},
		{"broadcast receiver in group", identity.Anyone, team, identity.Anyone},
		{"member of group", bob, team, team},
		{"group as its own group", team, team, team},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Same(t, c.want, Destination(c.receiver, c.group))
		})
	}
}

func TestCipherKeyGenerate(t *testing.T) {
	c := NewKeyCache(keys.AES, 16, nil)

	_, err := c.CipherKey(alice, bob, false)
	assert.ErrorIs(t, err, model.ErrKeyNotFound)

	key, err := c.CipherKey(alice, bob, true)
	require.NoError(t, err)
	assert.Equal(t, keys.AES, key.Algorithm())

	again, err := c.CipherKey(alice, bob, false)
	require.NoError(t, err)
	assert.True(t, keys.Equal(key, again))

	reverse, err := c.CipherKey(bob, alice, true)
	require.NoError(t, err)
	assert.False(t, keys.Equal(key, reverse))
}

func TestBroadcastNeverCached(t *testing.T) {
	c := NewKeyCache(keys.AES, 16, nil)
	key, err := c.CipherKey(alice, identity.Everyone, false)
	require.NoError(t, err)
	assert.True(t, keys.IsPlain(key))

	aes, err := keys.GenerateAES()
	require.NoError(t, err)
	c.CacheCipherKey(alice, identity.Anyone, aes)
	assert.Zero(t, c.Len())
}

func TestGroupMembersShareKey(t *testing.T) {
	c := NewKeyCache(keys.CHACHA20, 16, nil)
	carol := newID("carol", address.User)

	k1, err := c.CipherKey(alice, Destination(bob, team), true)
	require.NoError(t, err)
	k2, err := c.CipherKey(alice, Destination(carol, team), true)
	require.NoError(t, err)
	assert.True(t, keys.Equal(k1, k2))
}

func TestConcurrentGenerateOnce(t *testing.T) {
	c := NewKeyCache(keys.AES, 16, nil)
	const n = 32
	results := make([]keys.SymmetricKey, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key, err := c.CipherKey(alice, team, true)
			assert.NoError(t, err)
			results[i] = key
		}(i)
	}
	wg.Wait()
	for _, k := range results {
		assert.True(t, keys.Equal(results[0], k))
	}
	assert.Equal(t, 1, c.Len())
}

type memoryStore struct {
	entries map[string][]byte
	fail    error
}

func (m *memoryStore) LoadCipherKeys(context.Context) (map[string][]byte, error) {
	return m.entries, m.fail
}

func (m *memoryStore) SaveCipherKeys(_ context.Context, entries map[string][]byte) error {
	if m.fail != nil {
		return m.fail
	}
	for k, v := range entries {
		m.entries[k] = v
	}
	return nil
}

func TestFlushAndReload(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{entries: map[string][]byte{}}

	c := NewKeyCache(keys.AES, 16, store)
	key, err := c.CipherKey(alice, bob, true)
	require.NoError(t, err)
	require.NoError(t, c.Flush(ctx))
	assert.Len(t, store.entries, 1)

	fresh := NewKeyCache(keys.AES, 16, store)
	require.NoError(t, fresh.Reload(ctx))
	loaded, err := fresh.CipherKey(alice, bob, false)
	require.NoError(t, err)
	assert.True(t, keys.Equal(key, loaded))
}

func TestFlushOnlyDirty(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{entries: map[string][]byte{}}
	c := NewKeyCache(keys.AES, 16, store)

	require.NoError(t, c.Flush(ctx))
	assert.Empty(t, store.entries)

	_, err := c.CipherKey(alice, bob, true)
	require.NoError(t, err)
	store.fail = errors.New("down")
	assert.Error(t, c.Flush(ctx))

	store.fail = nil
	require.NoError(t, c.Flush(ctx))
	assert.Len(t, store.entries, 1)
}

func TestFlushKeepsEvictedDirtyKeys(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{entries: map[string][]byte{}}
	c := NewKeyCache(keys.AES, 1, store)

	first, err := c.CipherKey(alice, bob, true)
	require.NoError(t, err)
	_, err = c.CipherKey(bob, alice, true)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	require.NoError(t, c.Flush(ctx))
	assert.Len(t, store.entries, 2)

	fresh := NewKeyCache(keys.AES, 16, store)
	require.NoError(t, fresh.Reload(ctx))
	loaded, err := fresh.CipherKey(alice, bob, false)
	require.NoError(t, err)
	assert.True(t, keys.Equal(first, loaded))
}

func TestReloadSkipsBadEntries(t *testing.T) {
	store := &memoryStore{entries: map[string][]byte{
		"nonsense":  []byte(`{}`),
		"a->b":      []byte(`{"algorithm":"DES","data":"AA=="}`),
		"alice->me": []byte(`{"algorithm":"CHACHA20","data":"AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="}`),
	}}
	c := NewKeyCache(keys.AES, 16, store)
	err := c.Reload(context.Background())
	assert.ErrorIs(t, err, model.ErrUnknownAlgorithm)
	assert.Equal(t, 1, c.Len())
}
