// Package keys implements the asymmetric and symmetric key algorithms the
// protocol speaks, and their JSON form {"algorithm": ..., "data": base64}.
//
// A key's capabilities are expressed by the interfaces it satisfies: an ECC
// public key both verifies and encrypts, an ED25519 key only verifies, an
// X25519 key only encrypts.
package keys

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"dim_chat/internal/cryptographic/format"
	"dim_chat/internal/model"
)

const (
	ECC     = "ECC"
	ED25519 = "ED25519"
	X25519  = "X25519"

	AES      = "AES"
	CHACHA20 = "CHACHA20"
	PLAIN    = "PLAIN"
)

type (
	Key interface {
		Algorithm() string
		// Data is the raw key material.
		Data() []byte
	}

	PublicKey interface {
		Key
	}

	PrivateKey interface {
		Key
		PublicKey() PublicKey
	}

	VerifyKey interface {
		Key
		Verify(data, signature []byte) bool
	}

	SignKey interface {
		Key
		Sign(data []byte) ([]byte, error)
	}

	EncryptKey interface {
		Key
		Encrypt(plaintext []byte) ([]byte, error)
	}

	DecryptKey interface {
		Key
		Decrypt(ciphertext []byte) ([]byte, error)
	}

	SymmetricKey interface {
		EncryptKey
		DecryptKey
	}

	// Info is the JSON form of a key.
	Info struct {
		Algorithm string `json:"algorithm" bson:"algorithm"`
		Data      string `json:"data,omitempty" bson:"data,omitempty"`
	}
)

type (
	publicParser  func(data []byte) (PublicKey, error)
	privateParser func(data []byte) (PrivateKey, error)
	symParser     func(data []byte) (SymmetricKey, error)
)

var (
	publicParsers = map[string]publicParser{
		ECC:     parseECCPublicKey,
		ED25519: parseEd25519PublicKey,
		X25519:  parseX25519PublicKey,
	}
	privateParsers = map[string]privateParser{
		ECC:     parseECCPrivateKey,
		ED25519: parseEd25519PrivateKey,
		X25519:  parseX25519PrivateKey,
	}
	privateGenerators = map[string]func() (PrivateKey, error){
		ECC:     GenerateECC,
		ED25519: GenerateEd25519,
		X25519:  GenerateX25519,
	}
	symParsers = map[string]symParser{
		AES:      parseAESKey,
		CHACHA20: parseChaChaKey,
		PLAIN:    func([]byte) (SymmetricKey, error) { return Plain, nil },
	}
	symGenerators = map[string]func() (SymmetricKey, error){
		AES:      GenerateAES,
		CHACHA20: GenerateChaCha,
		PLAIN:    func() (SymmetricKey, error) { return Plain, nil },
	}
)

func normalize(algorithm string) string {
	return strings.ToUpper(strings.TrimSpace(algorithm))
}

func unknown(kind, algorithm string) error {
	return fmt.Errorf("%w: %s key %q", model.ErrUnknownAlgorithm, kind, algorithm)
}

func InfoOf(k Key) Info {
	info := Info{Algorithm: k.Algorithm()}
	if data := k.Data(); len(data) > 0 {
		info.Data = format.Base64Encode(data)
	}
	return info
}

func (i Info) decode() ([]byte, error) {
	if i.Data == "" {
		return nil, nil
	}
	return format.Base64Decode(i.Data)
}

func ParsePublicKey(info Info) (PublicKey, error) {
	parse, ok := publicParsers[normalize(info.Algorithm)]
	if !ok {
		return nil, unknown("public", info.Algorithm)
	}
	data, err := info.decode()
	if err != nil {
		return nil, err
	}
	return parse(data)
}

func ParsePrivateKey(info Info) (PrivateKey, error) {
	parse, ok := privateParsers[normalize(info.Algorithm)]
	if !ok {
		return nil, unknown("private", info.Algorithm)
	}
	data, err := info.decode()
	if err != nil {
		return nil, err
	}
	return parse(data)
}

func ParseSymmetricKey(info Info) (SymmetricKey, error) {
	parse, ok := symParsers[normalize(info.Algorithm)]
	if !ok {
		return nil, unknown("symmetric", info.Algorithm)
	}
	data, err := info.decode()
	if err != nil {
		return nil, err
	}
	return parse(data)
}

func GeneratePrivateKey(algorithm string) (PrivateKey, error) {
	gen, ok := privateGenerators[normalize(algorithm)]
	if !ok {
		return nil, unknown("private", algorithm)
	}
	return gen()
}

func GenerateSymmetricKey(algorithm string) (SymmetricKey, error) {
	gen, ok := symGenerators[normalize(algorithm)]
	if !ok {
		return nil, unknown("symmetric", algorithm)
	}
	return gen()
}

// Marshal returns the JSON form of k.
func Marshal(k Key) ([]byte, error) {
	return json.Marshal(InfoOf(k))
}

func UnmarshalSymmetricKey(data []byte) (SymmetricKey, error) {
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("symmetric key: %w", err)
	}
	return ParseSymmetricKey(info)
}

func UnmarshalPublicKey(data []byte) (PublicKey, error) {
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("public key: %w", err)
	}
	return ParsePublicKey(info)
}

// Equal compares algorithm and key material. ECC public keys compare as
// points, so both encodings of one key are equal.
func Equal(a, b Key) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if pa, ok := a.(*ECCPublicKey); ok {
		if pb, ok := b.(*ECCPublicKey); ok {
			return pa.key.IsEqual(pb.key)
		}
	}
	return a.Algorithm() == b.Algorithm() && bytes.Equal(a.Data(), b.Data())
}

// Matches reports whether priv signs what pub verifies.
func Matches(priv SignKey, pub VerifyKey) bool {
	probe := []byte("dim key pair check")
	sig, err := priv.Sign(probe)
	if err != nil {
		return false
	}
	return pub.Verify(probe, sig)
}
