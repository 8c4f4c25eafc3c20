// Package facebook is the identity directory behind the packer: metas,
// visas, local private keys and group members, cached in memory and written
// through to an optional archive.
package facebook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"dim_chat/internal/cryptographic/keys"
	"dim_chat/internal/model"
	"dim_chat/internal/protocol/document"
	"dim_chat/internal/protocol/identity"
	"dim_chat/internal/protocol/meta"
	"dim_chat/internal/utils/log"
)

// Archive persists directory records. Loads return nil, nil when the record
// does not exist.
type Archive interface {
	LoadMeta(ctx context.Context, id *identity.ID) (*meta.Meta, error)
	SaveMeta(ctx context.Context, id *identity.ID, m *meta.Meta) error
	LoadDocument(ctx context.Context, id *identity.ID) (*document.Document, error)
	SaveDocument(ctx context.Context, doc *document.Document) error
	LoadMembers(ctx context.Context, group *identity.ID) ([]*identity.ID, error)
	SaveMembers(ctx context.Context, group *identity.ID, members []*identity.ID) error
}

type localUser struct {
	id          *identity.ID
	signKey     keys.SignKey
	decryptKeys []keys.DecryptKey
}

type Facebook struct {
	archive Archive
	timeout time.Duration

	mu      sync.RWMutex
	metas   map[string]*meta.Meta
	visas   map[string]*document.Document
	members map[string][]*identity.ID
	users   []*localUser
}

// New returns a directory. archive may be nil for a purely in-memory one.
func New(archive Archive) *Facebook {
	return &Facebook{
		archive: archive,
		timeout: 5 * time.Second,
		metas:   make(map[string]*meta.Meta),
		visas:   make(map[string]*document.Document),
		members: make(map[string][]*identity.ID),
	}
}

func key(id *identity.ID) string {
	return id.WithoutTerminal().String()
}

func (f *Facebook) withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), f.timeout)
}

// AddLocalUser registers a user whose private keys live here. The sign key
// also decrypts when it can; extra decrypt keys (visa keys) are tried first.
func (f *Facebook) AddLocalUser(id *identity.ID, signKey keys.PrivateKey, decryptKeys ...keys.PrivateKey) error {
	sKey, ok := signKey.(keys.SignKey)
	if !ok {
		return fmt.Errorf("%w: %s key cannot sign", model.ErrKeyNotFound, signKey.Algorithm())
	}
	user := &localUser{id: id, signKey: sKey}
	for _, k := range decryptKeys {
		if dk, ok := k.(keys.DecryptKey); ok {
			user.decryptKeys = append(user.decryptKeys, dk)
		}
	}
	if dk, ok := signKey.(keys.DecryptKey); ok {
		user.decryptKeys = append(user.decryptKeys, dk)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, u := range f.users {
		if u.id.SameEntity(id) {
			f.users[i] = user
			return nil
		}
	}
	f.users = append(f.users, user)
	return nil
}

func (f *Facebook) localUser(id *identity.ID) *localUser {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, u := range f.users {
		if u.id.SameEntity(id) {
			return u
		}
	}
	return nil
}

func (f *Facebook) LocalUsers() []*identity.ID {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]*identity.ID, len(f.users))
	for i, u := range f.users {
		out[i] = u.id
	}
	return out
}

func (f *Facebook) Meta(id *identity.ID) *meta.Meta {
	f.mu.RLock()
	m, ok := f.metas[key(id)]
	f.mu.RUnlock()
	if ok || f.archive == nil {
		return m
	}
	ctx, cancel := f.withTimeout()
	defer cancel()
	m, err := f.archive.LoadMeta(ctx, id)
	if err != nil {
		log.Warn("failed to load meta", zap.Stringer("id", id), zap.Error(err))
		return nil
	}
	if m != nil {
		f.mu.Lock()
		f.metas[key(id)] = m
		f.mu.Unlock()
	}
	return m
}

// SaveMeta stores m after checking that it derives id.
func (f *Facebook) SaveMeta(m *meta.Meta, id *identity.ID) error {
	if !m.MatchesID(id) {
		return fmt.Errorf("%w: meta does not match %s", model.ErrInvalidMeta, id)
	}
	f.mu.Lock()
	_, known := f.metas[key(id)]
	f.metas[key(id)] = m
	f.mu.Unlock()
	if known || f.archive == nil {
		return nil
	}
	ctx, cancel := f.withTimeout()
	defer cancel()
	return f.archive.SaveMeta(ctx, id, m)
}

func (f *Facebook) Visa(id *identity.ID) *document.Document {
	f.mu.RLock()
	doc, ok := f.visas[key(id)]
	f.mu.RUnlock()
	if ok || f.archive == nil {
		return doc
	}
	ctx, cancel := f.withTimeout()
	defer cancel()
	doc, err := f.archive.LoadDocument(ctx, id)
	if err != nil {
		log.Warn("failed to load document", zap.Stringer("id", id), zap.Error(err))
		return nil
	}
	if doc != nil {
		f.mu.Lock()
		f.visas[key(id)] = doc
		f.mu.Unlock()
	}
	return doc
}

// SaveDocument stores doc after verifying it with the owner's meta key. An
// older document never replaces a newer one.
func (f *Facebook) SaveDocument(doc *document.Document) error {
	m := f.Meta(doc.ID())
	if m == nil {
		return fmt.Errorf("%w: no meta for %s", model.ErrKeyNotFound, doc.ID())
	}
	if !doc.Verify(m.Key()) {
		return fmt.Errorf("%w: document of %s", model.ErrSignatureInvalid, doc.ID())
	}
	f.mu.Lock()
	old, ok := f.visas[key(doc.ID())]
	if ok && old.Time().After(doc.Time()) {
		f.mu.Unlock()
		return nil
	}
	f.visas[key(doc.ID())] = doc
	f.mu.Unlock()
	if f.archive == nil {
		return nil
	}
	ctx, cancel := f.withTimeout()
	defer cancel()
	return f.archive.SaveDocument(ctx, doc)
}

func (f *Facebook) Members(group *identity.ID) []*identity.ID {
	f.mu.RLock()
	members, ok := f.members[key(group)]
	f.mu.RUnlock()
	if ok || f.archive == nil {
		return members
	}
	ctx, cancel := f.withTimeout()
	defer cancel()
	members, err := f.archive.LoadMembers(ctx, group)
	if err != nil {
		log.Warn("failed to load members", zap.Stringer("group", group), zap.Error(err))
		return nil
	}
	if len(members) > 0 {
		f.mu.Lock()
		f.members[key(group)] = members
		f.mu.Unlock()
	}
	return members
}

func (f *Facebook) SaveMembers(group *identity.ID, members []*identity.ID) error {
	if !group.IsGroup() {
		return fmt.Errorf("%w: %s is not a group", model.ErrIdentifierParse, group)
	}
	f.mu.Lock()
	f.members[key(group)] = members
	f.mu.Unlock()
	if f.archive == nil {
		return nil
	}
	ctx, cancel := f.withTimeout()
	defer cancel()
	return f.archive.SaveMembers(ctx, group, members)
}

func (f *Facebook) PublicKeyForEncryption(id *identity.ID) keys.EncryptKey {
	m := f.Meta(id)
	if m == nil {
		return nil
	}
	return document.EncryptKey(m, f.Visa(id))
}

func (f *Facebook) PublicKeysForVerification(id *identity.ID) []keys.VerifyKey {
	m := f.Meta(id)
	if m == nil {
		return nil
	}
	return document.VerifyKeys(m, f.Visa(id))
}

func (f *Facebook) PrivateKeysForDecryption(user *identity.ID) []keys.DecryptKey {
	if u := f.localUser(user); u != nil {
		return u.decryptKeys
	}
	return nil
}

func (f *Facebook) PrivateKeyForSignature(user *identity.ID) keys.SignKey {
	if u := f.localUser(user); u != nil {
		return u.signKey
	}
	return nil
}
