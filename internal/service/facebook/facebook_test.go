package facebook

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dim_chat/internal/cryptographic/keys"
	"dim_chat/internal/model"
	"dim_chat/internal/protocol/document"
	"dim_chat/internal/protocol/identity"
	"dim_chat/internal/protocol/meta"
)

type memoryArchive struct {
	metas   map[string]*meta.Meta
	docs    map[string]*document.Document
	members map[string][]*identity.ID
	saves   int
}

func newArchive() *memoryArchive {
	return &memoryArchive{
		metas:   map[string]*meta.Meta{},
		docs:    map[string]*document.Document{},
		members: map[string][]*identity.ID{},
	}
}

func (a *memoryArchive) LoadMeta(_ context.Context, id *identity.ID) (*meta.Meta, error) {
	return a.metas[id.String()], nil
}

func (a *memoryArchive) SaveMeta(_ context.Context, id *identity.ID, m *meta.Meta) error {
	a.saves++
	a.metas[id.String()] = m
	return nil
}

func (a *memoryArchive) LoadDocument(_ context.Context, id *identity.ID) (*document.Document, error) {
	return a.docs[id.String()], nil
}

func (a *memoryArchive) SaveDocument(_ context.Context, doc *document.Document) error {
	a.saves++
	a.docs[doc.ID().String()] = doc
	return nil
}

func (a *memoryArchive) LoadMembers(_ context.Context, group *identity.ID) ([]*identity.ID, error) {
	return a.members[group.String()], nil
}

func (a *memoryArchive) SaveMembers(_ context.Context, group *identity.ID, members []*identity.ID) error {
	a.saves++
	a.members[group.String()] = members
	return nil
}

type account struct {
	id   *identity.ID
	sKey keys.PrivateKey
	meta *meta.Meta
}

func newAccount(t *testing.T, name string, network uint8) account {
	t.Helper()
	sKey, err := keys.GeneratePrivateKey(keys.ECC)
	require.NoError(t, err)
	m, err := meta.Generate(meta.MKM, sKey, name)
	require.NoError(t, err)
	id, err := identity.Generate(m, network, "")
	require.NoError(t, err)
	return account{id: id, sKey: sKey, meta: m}
}

func TestSaveMetaChecksID(t *testing.T) {
	fb := New(nil)
	moky := newAccount(t, "moky", 0x00)
	hulk := newAccount(t, "hulk", 0x00)

	assert.ErrorIs(t, fb.SaveMeta(moky.meta, hulk.id), model.ErrInvalidMeta)
	require.NoError(t, fb.SaveMeta(moky.meta, moky.id))
	assert.Same(t, moky.meta, fb.Meta(moky.id))
	assert.True(t, keys.Equal(moky.meta.Key(), fb.PublicKeyForEncryption(moky.id)))
}

func TestArchiveWriteThroughAndLoad(t *testing.T) {
	archive := newArchive()
	moky := newAccount(t, "moky", 0x00)

	require.NoError(t, New(archive).SaveMeta(moky.meta, moky.id))
	assert.Equal(t, 1, archive.saves)

	fresh := New(archive)
	assert.Same(t, moky.meta, fresh.Meta(moky.id))
	assert.Len(t, fresh.PublicKeysForVerification(moky.id), 1)
}

func TestVisaKeyTakesPrecedence(t *testing.T) {
	fb := New(nil)
	moky := newAccount(t, "moky", 0x00)
	require.NoError(t, fb.SaveMeta(moky.meta, moky.id))

	visaKey, err := keys.GenerateX25519()
	require.NoError(t, err)
	doc := document.New(document.Visa, moky.id)
	doc.SetKey(visaKey.PublicKey().(keys.EncryptKey))

	assert.ErrorIs(t, fb.SaveDocument(doc), model.ErrSignatureInvalid)

	require.NoError(t, doc.Sign(moky.sKey.(keys.SignKey)))
	require.NoError(t, fb.SaveDocument(doc))
	assert.True(t, keys.Equal(visaKey.PublicKey(), fb.PublicKeyForEncryption(moky.id)))
	// X25519 cannot verify, so only the meta key is offered
	assert.Len(t, fb.PublicKeysForVerification(moky.id), 1)
}

func TestLocalUsers(t *testing.T) {
	fb := New(nil)
	moky := newAccount(t, "moky", 0x00)
	visaKey, err := keys.GenerateX25519()
	require.NoError(t, err)

	require.NoError(t, fb.AddLocalUser(moky.id, moky.sKey, visaKey))
	assert.Equal(t, []*identity.ID{moky.id}, fb.LocalUsers())
	assert.NotNil(t, fb.PrivateKeyForSignature(moky.id))
	decryptKeys := fb.PrivateKeysForDecryption(moky.id)
	require.Len(t, decryptKeys, 2)
	assert.Equal(t, keys.X25519, decryptKeys[0].Algorithm())

	x, err := keys.GenerateX25519()
	require.NoError(t, err)
	assert.ErrorIs(t, fb.AddLocalUser(moky.id, x), model.ErrKeyNotFound)

	stranger := newAccount(t, "hulk", 0x00)
	assert.Nil(t, fb.PrivateKeyForSignature(stranger.id))
}

func TestMembers(t *testing.T) {
	archive := newArchive()
	fb := New(archive)
	group := newAccount(t, "team", 0x01)
	moky := newAccount(t, "moky", 0x00)

	assert.Error(t, fb.SaveMembers(moky.id, nil))
	require.NoError(t, fb.SaveMembers(group.id, []*identity.ID{moky.id}))
	assert.Equal(t, []*identity.ID{moky.id}, New(archive).Members(group.id))
}
