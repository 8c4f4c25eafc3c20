package address

import (
	"bytes"
	"fmt"

	"dim_chat/internal/cryptographic/digest"
	"dim_chat/internal/cryptographic/format"
	"dim_chat/internal/model"
)

const (
	btcMinLength = 26
	btcMaxLength = 35
	btcRawLength = 25
)

// btcAddress is base58(network || RIPEMD160(SHA256(fingerprint)) || checksum).
type btcAddress struct {
	encoded string
	network uint8
}

func (a *btcAddress) String() string { return a.encoded }

func (a *btcAddress) Network() uint8 { return a.network }

func (a *btcAddress) Type() EntityType { return TypeOf(a.network) }

func checksum(head []byte) []byte {
	return digest.DoubleSHA256(head)[:4]
}

// GenerateBTC derives a hash-style address from fingerprint on network.
func GenerateBTC(fingerprint []byte, network uint8) Address {
	head := make([]byte, 0, btcRawLength)
	head = append(head, network)
	head = append(head, digest.RIPEMD160(digest.SHA256(fingerprint))...)
	raw := append(head, checksum(head)...)
	return intern(&btcAddress{encoded: format.Base58Encode(raw), network: network})
}

// ParseBTC decodes a hash-style address and verifies its checksum.
func ParseBTC(s string) (Address, error) {
	if len(s) < btcMinLength || len(s) > btcMaxLength {
		return nil, fmt.Errorf("%w: base58 length %d", model.ErrAddressDecode, len(s))
	}
	raw, err := format.Base58Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrAddressDecode, err)
	}
	if len(raw) != btcRawLength {
		return nil, fmt.Errorf("%w: decoded %d bytes", model.ErrAddressDecode, len(raw))
	}
	head, sum := raw[:21], raw[21:]
	if !bytes.Equal(checksum(head), sum) {
		return nil, fmt.Errorf("%w: checksum mismatch for %s", model.ErrAddressDecode, s)
	}
	return &btcAddress{encoded: s, network: raw[0]}, nil
}
