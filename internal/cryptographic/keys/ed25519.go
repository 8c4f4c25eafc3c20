package keys

import (
	"crypto/ed25519"
	"fmt"

	"dim_chat/internal/cryptographic/signature"
)

type Ed25519PublicKey []byte

type Ed25519PrivateKey []byte

func GenerateEd25519() (PrivateKey, error) {
	_, priv, err := signature.NewEd25519Keypair()
	if err != nil {
		return nil, err
	}
	return Ed25519PrivateKey(priv), nil
}

func parseEd25519PublicKey(data []byte) (PublicKey, error) {
	if len(data) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("ED25519 public key: want %d bytes, got %d", ed25519.PublicKeySize, len(data))
	}
	return Ed25519PublicKey(data), nil
}

// parseEd25519PrivateKey accepts either the 32-byte seed or the 64-byte
// expanded key.
func parseEd25519PrivateKey(data []byte) (PrivateKey, error) {
	switch len(data) {
	case ed25519.SeedSize:
		return Ed25519PrivateKey(ed25519.NewKeyFromSeed(data)), nil
	case ed25519.PrivateKeySize:
		return Ed25519PrivateKey(data), nil
	}
	return nil, fmt.Errorf("ED25519 private key: bad length %d", len(data))
}

func (k Ed25519PublicKey) Algorithm() string { return ED25519 }

func (k Ed25519PublicKey) Data() []byte { return k }

func (k Ed25519PublicKey) Verify(data, sig []byte) bool {
	return signature.ED25519Verify(k, data, sig)
}

func (k Ed25519PrivateKey) Algorithm() string { return ED25519 }

func (k Ed25519PrivateKey) Data() []byte { return k }

func (k Ed25519PrivateKey) PublicKey() PublicKey {
	pub := ed25519.PrivateKey(k).Public().(ed25519.PublicKey)
	return Ed25519PublicKey(pub)
}

func (k Ed25519PrivateKey) Sign(data []byte) ([]byte, error) {
	return signature.ED25519Sign(k, data), nil
}
