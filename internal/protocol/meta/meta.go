// Package meta builds and validates the signed record binding a public key,
// and optionally a seed, to the addresses derived from it.
package meta

import (
	"encoding/json"
	"fmt"
	"sync"

	"dim_chat/internal/cryptographic/format"
	"dim_chat/internal/cryptographic/keys"
	"dim_chat/internal/model"
	"dim_chat/internal/protocol/address"
)

// Identifier is the part of an ID a meta is matched against.
type Identifier interface {
	Name() string
	Address() address.Address
}

// Meta is immutable once built. Validity is a predicate: a meta missing its
// seed or fingerprint can still be built and inspected, but never yields an
// address.
type Meta struct {
	kind        Type
	scheme      scheme
	key         keys.VerifyKey
	seed        string
	fingerprint []byte

	valid     bool
	mu        sync.Mutex
	addresses map[uint8]address.Address
}

// Generate signs seed with sKey and builds a meta of type t. A BTC or ETH meta
// given a seed becomes its extended sibling.
func Generate(t Type, sKey keys.PrivateKey, seed string) (*Meta, error) {
	signer, ok := sKey.(keys.SignKey)
	if !ok {
		return nil, fmt.Errorf("%w: %s key cannot sign", model.ErrInvalidMeta, sKey.Algorithm())
	}
	pub, ok := sKey.PublicKey().(keys.VerifyKey)
	if !ok {
		return nil, fmt.Errorf("%w: %s key cannot verify", model.ErrInvalidMeta, sKey.Algorithm())
	}
	if seed != "" {
		switch t {
		case BTC:
			t = ExBTC
		case ETH:
			t = ExETH
		}
	}
	var fingerprint []byte
	if seed != "" {
		sig, err := signer.Sign([]byte(seed))
		if err != nil {
			return nil, err
		}
		fingerprint = sig
	}
	m, err := Create(t, pub, seed, fingerprint)
	if err != nil {
		return nil, err
	}
	if !m.IsValid() {
		return nil, fmt.Errorf("%w: type %d seed %q", model.ErrInvalidMeta, t, seed)
	}
	return m, nil
}

// Create builds a meta from its parts. Only an unknown type is an error; use
// IsValid to check the rest.
func Create(t Type, key keys.VerifyKey, seed string, fingerprint []byte) (*Meta, error) {
	s, ok := schemes[t]
	if !ok {
		return nil, fmt.Errorf("%w: meta type %d", model.ErrUnknownAlgorithm, t)
	}
	m := &Meta{
		kind:        t,
		scheme:      s,
		key:         key,
		seed:        seed,
		fingerprint: fingerprint,
		addresses:   make(map[uint8]address.Address),
	}
	m.valid = m.check()
	return m, nil
}

func (m *Meta) check() bool {
	if m.key == nil || !m.scheme.acceptsKey(m.key) {
		return false
	}
	required, optional := m.scheme.seeded()
	if m.seed == "" {
		return !required && len(m.fingerprint) == 0
	}
	if !optional || len(m.fingerprint) == 0 {
		return false
	}
	return m.key.Verify([]byte(m.seed), m.fingerprint)
}

func (m *Meta) Type() Type { return m.kind }

func (m *Meta) Key() keys.VerifyKey { return m.key }

func (m *Meta) Seed() string { return m.seed }

func (m *Meta) Fingerprint() []byte { return m.fingerprint }

func (m *Meta) IsValid() bool { return m.valid }

// GenerateAddress derives the address of this meta on network. Results are
// cached per network.
func (m *Meta) GenerateAddress(network uint8) (address.Address, error) {
	if !m.valid {
		return nil, model.ErrInvalidMeta
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if addr, ok := m.addresses[network]; ok {
		return addr, nil
	}
	addr := m.scheme.generate(m, network)
	m.addresses[network] = addr
	return addr, nil
}

// MatchesID reports whether id's name equals the seed and its address is
// the one this meta derives on the same network.
func (m *Meta) MatchesID(id Identifier) bool {
	if !m.valid || id == nil || id.Address() == nil {
		return false
	}
	if id.Name() != m.seed {
		return false
	}
	old := id.Address()
	gen, err := m.GenerateAddress(old.Network())
	if err != nil {
		return false
	}
	return address.Equal(old, gen)
}

// MatchesKey reports whether pub is the meta key, or failing that whether
// pub signed the seed. The latter lets a rotated key still prove ownership.
func (m *Meta) MatchesKey(pub keys.VerifyKey) bool {
	if !m.valid || pub == nil {
		return false
	}
	if keys.Equal(pub, m.key) {
		return true
	}
	if m.seed == "" || len(m.fingerprint) == 0 {
		return false
	}
	return pub.Verify([]byte(m.seed), m.fingerprint)
}

type record struct {
	Type        *Type     `json:"type,omitempty"`
	Version     *Type     `json:"version,omitempty"`
	Key         keys.Info `json:"key"`
	Seed        string    `json:"seed,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
}

func (m *Meta) MarshalJSON() ([]byte, error) {
	kind := m.kind
	r := record{
		Type: &kind,
		Key:  keys.InfoOf(m.key),
		Seed: m.seed,
	}
	if len(m.fingerprint) > 0 {
		r.Fingerprint = format.Base64Encode(m.fingerprint)
	}
	return json.Marshal(r)
}

// Parse decodes a meta record. It fails on malformed JSON, on an unknown
// type or key algorithm, and on a meta that does not validate.
func Parse(data []byte) (*Meta, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrInvalidMeta, err)
	}
	t := r.Type
	if t == nil {
		t = r.Version
	}
	if t == nil {
		return nil, fmt.Errorf("%w: missing type", model.ErrInvalidMeta)
	}
	pub, err := keys.ParsePublicKey(r.Key)
	if err != nil {
		return nil, err
	}
	vKey, ok := pub.(keys.VerifyKey)
	if !ok {
		return nil, fmt.Errorf("%w: %s key cannot verify", model.ErrInvalidMeta, pub.Algorithm())
	}
	var fingerprint []byte
	if r.Fingerprint != "" {
		if fingerprint, err = format.Base64Decode(r.Fingerprint); err != nil {
			return nil, fmt.Errorf("%w: fingerprint: %v", model.ErrInvalidMeta, err)
		}
	}
	m, err := Create(*t, vKey, r.Seed, fingerprint)
	if err != nil {
		return nil, err
	}
	if !m.IsValid() {
		return nil, fmt.Errorf("%w: seed/fingerprint/key mismatch", model.ErrInvalidMeta)
	}
	return m, nil
}

func (m *Meta) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*m = Meta{
		kind:        parsed.kind,
		scheme:      parsed.scheme,
		key:         parsed.key,
		seed:        parsed.seed,
		fingerprint: parsed.fingerprint,
		valid:       parsed.valid,
		addresses:   make(map[uint8]address.Address),
	}
	return nil
}
