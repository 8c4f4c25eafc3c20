package keys

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"dim_chat/internal/cryptographic/dh"
	"dim_chat/internal/cryptographic/encryption"
	"dim_chat/internal/cryptographic/kdf"
	"dim_chat/internal/cryptographic/signature"
	"dim_chat/internal/model"
)

const eciesInfo = "dim-ecies"

// ECCPublicKey is a secp256k1 point. Data returns the encoding the key was
// parsed from, compressed (33) or uncompressed (65), so that addresses hash
// the bytes the record carries.
type ECCPublicKey struct {
	key  *secp256k1.PublicKey
	data []byte
}

type ECCPrivateKey struct {
	key *secp256k1.PrivateKey
}

func GenerateECC() (PrivateKey, error) {
	priv, err := dh.NewSecp256k1KeyPair()
	if err != nil {
		return nil, err
	}
	return &ECCPrivateKey{key: priv}, nil
}

func parseECCPublicKey(data []byte) (PublicKey, error) {
	pub, err := secp256k1.ParsePubKey(data)
	if err != nil {
		return nil, fmt.Errorf("ECC public key: %w", err)
	}
	return &ECCPublicKey{key: pub, data: append([]byte(nil), data...)}, nil
}

func parseECCPrivateKey(data []byte) (PrivateKey, error) {
	if len(data) != secp256k1.PrivKeyBytesLen {
		return nil, fmt.Errorf("ECC private key: want %d bytes, got %d", secp256k1.PrivKeyBytesLen, len(data))
	}
	return &ECCPrivateKey{key: secp256k1.PrivKeyFromBytes(data)}, nil
}

func (k *ECCPublicKey) Algorithm() string { return ECC }

func (k *ECCPublicKey) Data() []byte {
	if k.data != nil {
		return k.data
	}
	return k.key.SerializeUncompressed()
}

// Uncompressed is the 65-byte form regardless of the parsed encoding.
func (k *ECCPublicKey) Uncompressed() []byte { return k.key.SerializeUncompressed() }

func (k *ECCPublicKey) Verify(data, sig []byte) bool {
	return signature.Secp256k1Verify(k.key, data, sig)
}

// Encrypt seals plaintext for the holder of the matching private key:
// ephemeral(33) || nonce || ciphertext.
func (k *ECCPublicKey) Encrypt(plaintext []byte) ([]byte, error) {
	eph, err := dh.NewSecp256k1KeyPair()
	if err != nil {
		return nil, err
	}
	ephPub := eph.PubKey().SerializeCompressed()
	secret, err := kdf.DeriveKey(dh.Secp256k1SharedSecret(eph, k.key), nil, []byte(eciesInfo), 32)
	if err != nil {
		return nil, err
	}
	sealed, err := encryption.AEADEncrypt(secret, plaintext, ephPub)
	if err != nil {
		return nil, err
	}
	return append(ephPub, sealed...), nil
}

func (k *ECCPrivateKey) Algorithm() string { return ECC }

func (k *ECCPrivateKey) Data() []byte { return k.key.Serialize() }

func (k *ECCPrivateKey) PublicKey() PublicKey {
	return &ECCPublicKey{key: k.key.PubKey()}
}

func (k *ECCPrivateKey) Sign(data []byte) ([]byte, error) {
	return signature.Secp256k1Sign(k.key, data), nil
}

func (k *ECCPrivateKey) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) <= secp256k1.PubKeyBytesLenCompressed {
		return nil, fmt.Errorf("%w: ECC ciphertext too short", model.ErrDecryptionFailed)
	}
	ephPub := ciphertext[:secp256k1.PubKeyBytesLenCompressed]
	eph, err := secp256k1.ParsePubKey(ephPub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDecryptionFailed, err)
	}
	secret, err := kdf.DeriveKey(dh.Secp256k1SharedSecret(k.key, eph), nil, []byte(eciesInfo), 32)
	if err != nil {
		return nil, err
	}
	plaintext, err := encryption.AEADDecrypt(secret, ciphertext[secp256k1.PubKeyBytesLenCompressed:], ephPub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDecryptionFailed, err)
	}
	return plaintext, nil
}
