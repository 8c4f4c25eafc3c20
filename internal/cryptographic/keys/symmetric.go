package keys

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"dim_chat/internal/cryptographic/encryption"
	"dim_chat/internal/model"
)

// AESKey is an AES-256-GCM key. The nonce travels as a ciphertext prefix.
type AESKey []byte

// ChaChaKey is a ChaCha20-Poly1305 key.
type ChaChaKey []byte

type plainKey struct{}

// Plain is the pass-through key used for broadcast messages.
var Plain SymmetricKey = plainKey{}

func randomKey(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return buf, nil
}

func GenerateAES() (SymmetricKey, error) {
	buf, err := randomKey(32)
	if err != nil {
		return nil, err
	}
	return AESKey(buf), nil
}

func GenerateChaCha() (SymmetricKey, error) {
	buf, err := randomKey(chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	return ChaChaKey(buf), nil
}

func parseAESKey(data []byte) (SymmetricKey, error) {
	switch len(data) {
	case 16, 24, 32:
		return AESKey(data), nil
	}
	return nil, fmt.Errorf("AES key: bad length %d", len(data))
}

func parseChaChaKey(data []byte) (SymmetricKey, error) {
	if len(data) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("CHACHA20 key: want %d bytes, got %d", chacha20poly1305.KeySize, len(data))
	}
	return ChaChaKey(data), nil
}

func (k AESKey) Algorithm() string { return AES }

func (k AESKey) Data() []byte { return k }

func (k AESKey) Encrypt(plaintext []byte) ([]byte, error) {
	return encryption.AEADEncrypt(k, plaintext, nil)
}

func (k AESKey) Decrypt(ciphertext []byte) ([]byte, error) {
	plaintext, err := encryption.AEADDecrypt(k, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

func (k ChaChaKey) Algorithm() string { return CHACHA20 }

func (k ChaChaKey) Data() []byte { return k }

func (k ChaChaKey) Encrypt(plaintext []byte) ([]byte, error) {
	return encryption.ChaChaEncrypt(k, plaintext, nil)
}

func (k ChaChaKey) Decrypt(ciphertext []byte) ([]byte, error) {
	plaintext, err := encryption.ChaChaDecrypt(k, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

func (plainKey) Algorithm() string { return PLAIN }

func (plainKey) Data() []byte { return nil }

func (plainKey) Encrypt(plaintext []byte) ([]byte, error) { return plaintext, nil }

func (plainKey) Decrypt(ciphertext []byte) ([]byte, error) { return ciphertext, nil }

// IsPlain reports whether k passes data through unchanged.
func IsPlain(k Key) bool {
	return k != nil && k.Algorithm() == PLAIN
}
