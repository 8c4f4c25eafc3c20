// Package address derives and parses the self-certifying addresses that
// identifiers are built on.
//
// Two families exist: the base58 hash-style address generated from a meta
// fingerprint and a network tag, and the checksum-hex address generated from
// an secp256k1 public key. Two broadcast constants stand outside both.
package address

import (
	"fmt"
	"strings"
	"sync/atomic"

	"dim_chat/internal/model"
	"dim_chat/internal/utils/cache"
)

// Address values are immutable and compared by their string form.
type Address interface {
	String() string
	// Network is the raw tag byte carried by the address.
	Network() uint8
	Type() EntityType
}

var interned atomic.Pointer[cache.Pool[Address]]

func init() {
	interned.Store(cache.NewPool[Address](4096))
}

// SetCacheSize replaces the interning pool. Call it before any address is
// parsed.
func SetCacheSize(size int) {
	interned.Store(cache.NewPool[Address](size))
}

// Parse decodes any known address family. Results are interned, so parsing
// the same string twice yields the same value.
func Parse(s string) (Address, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty address", model.ErrAddressDecode)
	}
	// broadcast names match in any case and are never interned under a
	// non-canonical spelling
	switch strings.ToLower(s) {
	case Anywhere.String():
		return Anywhere, nil
	case Everywhere.String():
		return Everywhere, nil
	}
	return interned.Load().GetOrCreate(s, func() (Address, error) {
		return parse(s)
	})
}

func parse(s string) (Address, error) {
	switch n := len(s); {
	case n == ethLength:
		return ParseETH(s)
	case n >= btcMinLength && n <= btcMaxLength:
		return ParseBTC(s)
	}
	return nil, fmt.Errorf("%w: unsupported length %d", model.ErrAddressDecode, len(s))
}

func intern(a Address) Address {
	v, _ := interned.Load().GetOrCreate(a.String(), func() (Address, error) {
		return a, nil
	})
	return v
}

// Equal compares two addresses by value.
func Equal(a, b Address) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.String() == b.String()
}

func IsBroadcast(a Address) bool {
	return a != nil && a.Type().IsBroadcast()
}
