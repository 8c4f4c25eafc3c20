package keys

import (
	"fmt"

	"dim_chat/internal/cryptographic/dh"
	"dim_chat/internal/cryptographic/encryption"
	"dim_chat/internal/cryptographic/kdf"
	"dim_chat/internal/model"
)

const x25519Info = "dim-x25519"

type X25519PublicKey [32]byte

type X25519PrivateKey [32]byte

func GenerateX25519() (PrivateKey, error) {
	priv, _, err := dh.NewX25519KeyPair()
	if err != nil {
		return nil, err
	}
	return X25519PrivateKey(priv), nil
}

func parseX25519PublicKey(data []byte) (PublicKey, error) {
	if len(data) != 32 {
		return nil, fmt.Errorf("X25519 public key: want 32 bytes, got %d", len(data))
	}
	var pub X25519PublicKey
	copy(pub[:], data)
	return pub, nil
}

func parseX25519PrivateKey(data []byte) (PrivateKey, error) {
	if len(data) != 32 {
		return nil, fmt.Errorf("X25519 private key: want 32 bytes, got %d", len(data))
	}
	var priv X25519PrivateKey
	copy(priv[:], data)
	return priv, nil
}

func (k X25519PublicKey) Algorithm() string { return X25519 }

func (k X25519PublicKey) Data() []byte { return k[:] }

// Encrypt returns ephemeral(32) || nonce || ciphertext.
func (k X25519PublicKey) Encrypt(plaintext []byte) ([]byte, error) {
	ephPriv, ephPub, err := dh.NewX25519KeyPair()
	if err != nil {
		return nil, err
	}
	shared, err := dh.X25519SharedSecret(ephPriv, k)
	if err != nil {
		return nil, err
	}
	secret, err := kdf.DeriveKey(shared, nil, []byte(x25519Info), 32)
	if err != nil {
		return nil, err
	}
	sealed, err := encryption.AEADEncrypt(secret, plaintext, ephPub[:])
	if err != nil {
		return nil, err
	}
	return append(ephPub[:], sealed...), nil
}

func (k X25519PrivateKey) Algorithm() string { return X25519 }

func (k X25519PrivateKey) Data() []byte { return k[:] }

func (k X25519PrivateKey) PublicKey() PublicKey {
	return X25519PublicKey(dh.X25519PublicKey(k))
}

func (k X25519PrivateKey) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) <= 32 {
		return nil, fmt.Errorf("%w: X25519 ciphertext too short", model.ErrDecryptionFailed)
	}
	var ephPub [32]byte
	copy(ephPub[:], ciphertext[:32])
	shared, err := dh.X25519SharedSecret(k, ephPub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDecryptionFailed, err)
	}
	secret, err := kdf.DeriveKey(shared, nil, []byte(x25519Info), 32)
	if err != nil {
		return nil, err
	}
	plaintext, err := encryption.AEADDecrypt(secret, ciphertext[32:], ephPub[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDecryptionFailed, err)
	}
	return plaintext, nil
}
