// Package digest wraps the hash functions used for address derivation.
package digest

import (
	"github.com/minio/sha256-simd"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // required by the hash-style address format
	"golang.org/x/crypto/sha3"
)

func SHA256(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// DoubleSHA256 is sha256(sha256(data)), the checksum hash of hash-style addresses.
func DoubleSHA256(data []byte) []byte {
	return SHA256(SHA256(data))
}

func RIPEMD160(data []byte) []byte {
	h := ripemd160.New()
	h.Write(data)
	return h.Sum(nil)
}

// Keccak256 is the pre-standard Keccak used by checksum-hex addresses, not SHA3-256.
func Keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}
