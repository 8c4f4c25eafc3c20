package kdf

import (
	"io"

	"github.com/minio/sha256-simd"
	"golang.org/x/crypto/hkdf"
)

// HKDF fills buffer from HKDF-SHA256(secret, salt, info).
func HKDF(secret, salt, info, buffer []byte) (int, error) {
	h := hkdf.New(sha256.New, secret, salt, info)
	return io.ReadFull(h, buffer)
}

// DeriveKey returns length bytes of HKDF-SHA256 output.
func DeriveKey(secret, salt, info []byte, length int) ([]byte, error) {
	key := make([]byte, length)
	if _, err := HKDF(secret, salt, info, key); err != nil {
		return nil, err
	}
	return key, nil
}
