package meta

import (
	"dim_chat/internal/cryptographic/keys"
	"dim_chat/internal/protocol/address"
)

// scheme is one meta family. It is chosen once when a meta is built.
type scheme interface {
	// seeded reports whether the family requires a seed. optional families
	// accept one but do not need it.
	seeded() (required, optional bool)
	generate(m *Meta, network uint8) address.Address
	acceptsKey(k keys.VerifyKey) bool
}

var schemes = map[Type]scheme{
	MKM:   mkmScheme{},
	BTC:   btcScheme{extended: false},
	ExBTC: btcScheme{extended: true},
	ETH:   ethScheme{extended: false},
	ExETH: ethScheme{extended: true},
}

type mkmScheme struct{}

func (mkmScheme) seeded() (bool, bool) { return true, true }

func (mkmScheme) generate(m *Meta, network uint8) address.Address {
	return address.GenerateBTC(m.fingerprint, network)
}

func (mkmScheme) acceptsKey(keys.VerifyKey) bool { return true }

type btcScheme struct {
	extended bool
}

func (s btcScheme) seeded() (bool, bool) { return false, s.extended }

func (btcScheme) generate(m *Meta, network uint8) address.Address {
	return address.GenerateBTC(m.key.Data(), network)
}

func (btcScheme) acceptsKey(keys.VerifyKey) bool { return true }

type ethScheme struct {
	extended bool
}

func (s ethScheme) seeded() (bool, bool) { return false, s.extended }

// generate ignores network; checksum-hex addresses are always users. The
// address hashes the uncompressed point, whichever encoding the record holds.
func (ethScheme) generate(m *Meta, _ uint8) address.Address {
	if k, ok := m.key.(*keys.ECCPublicKey); ok {
		return address.GenerateETH(k.Uncompressed())
	}
	return address.GenerateETH(m.key.Data())
}

func (ethScheme) acceptsKey(k keys.VerifyKey) bool {
	return k.Algorithm() == keys.ECC
}
