package packer

import (
	"dim_chat/internal/cryptographic/keys"
	"dim_chat/internal/protocol/document"
	"dim_chat/internal/protocol/identity"
	"dim_chat/internal/protocol/meta"
)

// Facebook resolves identities: metas, visas, keys and group members. Lookups
// return nil when the record has not arrived yet.
type Facebook interface {
	Meta(id *identity.ID) *meta.Meta
	Visa(id *identity.ID) *document.Document

	PublicKeyForEncryption(id *identity.ID) keys.EncryptKey
	PublicKeysForVerification(id *identity.ID) []keys.VerifyKey
	PrivateKeysForDecryption(user *identity.ID) []keys.DecryptKey
	PrivateKeyForSignature(user *identity.ID) keys.SignKey

	Members(group *identity.ID) []*identity.ID
	LocalUsers() []*identity.ID

	SaveMeta(m *meta.Meta, id *identity.ID) error
	SaveDocument(doc *document.Document) error
}

// CipherKeyDelegate keeps the symmetric keys per (sender, destination).
type CipherKeyDelegate interface {
	CipherKey(sender, destination *identity.ID, generate bool) (keys.SymmetricKey, error)
	CacheCipherKey(sender, destination *identity.ID, key keys.SymmetricKey)
}
