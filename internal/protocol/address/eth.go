package address

import (
	"fmt"
	"strings"

	"dim_chat/internal/cryptographic/digest"
	"dim_chat/internal/cryptographic/format"
	"dim_chat/internal/model"
)

const ethLength = 42

// ethAddress is "0x" plus 40 hex characters cased by the EIP-55 checksum.
// Its network is always User.
type ethAddress string

func (a ethAddress) String() string { return string(a) }

func (a ethAddress) Network() uint8 { return uint8(User) }

func (a ethAddress) Type() EntityType { return User }

// GenerateETH derives a checksum-hex address from an secp256k1 public key in
// its 64-byte form or its 65-byte uncompressed form.
func GenerateETH(fingerprint []byte) Address {
	if len(fingerprint) == 65 {
		fingerprint = fingerprint[1:]
	}
	hash := digest.Keccak256(fingerprint)
	return intern(ethAddress("0x" + eip55(format.HexEncode(hash[len(hash)-20:]))))
}

// ParseETH accepts any casing. Use IsValidate for the strict checksum check.
func ParseETH(s string) (Address, error) {
	if !isETH(s) {
		return nil, fmt.Errorf("%w: not a checksum-hex address: %q", model.ErrAddressDecode, s)
	}
	return ethAddress(s), nil
}

// IsValidate reports whether s is a checksum-hex address whose casing matches
// its checksum.
func IsValidate(s string) bool {
	if !isETH(s) {
		return false
	}
	return s[2:] == eip55(strings.ToLower(s[2:]))
}

// GetValidateAddress returns s with the canonical checksum casing, or "" when
// s is not a checksum-hex address.
func GetValidateAddress(s string) string {
	if !isETH(s) {
		return ""
	}
	return "0x" + eip55(strings.ToLower(s[2:]))
}

func isETH(s string) bool {
	if len(s) != ethLength || s[0] != '0' || s[1] != 'x' {
		return false
	}
	for i := 2; i < len(s); i++ {
		if !isHex(s[i]) {
			return false
		}
	}
	return true
}

func isHex(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

// eip55 upper-cases each letter of lower whose nibble in keccak(lower) has
// its high bit set.
func eip55(lower string) string {
	hash := digest.Keccak256([]byte(lower))
	out := []byte(lower)
	for i, c := range out {
		if c < 'a' || c > 'f' {
			continue
		}
		nibble := hash[i>>1]
		if i&1 == 1 {
			nibble <<= 4
		}
		if nibble&0x80 != 0 {
			out[i] = c - ('a' - 'A')
		}
	}
	return string(out)
}
