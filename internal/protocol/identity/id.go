// Package identity composes and parses identifiers of the form
// name@address/terminal.
package identity

import (
	"fmt"
	"strings"
	"sync/atomic"

	"dim_chat/internal/model"
	"dim_chat/internal/protocol/address"
	"dim_chat/internal/protocol/meta"
	"dim_chat/internal/utils/cache"
)

// ID is immutable. Its entity type is always read from the address.
type ID struct {
	name     string
	address  address.Address
	terminal string
	str      string
}

var (
	Anyone   = newID("anyone", address.Anywhere, "")
	Everyone = newID("everyone", address.Everywhere, "")
	// Founder is the well-known identifier behind the "founder" alias.
	Founder = newID("moky", address.Anywhere, "")
)

// aliases resolve without parsing.
var aliases = map[string]*ID{
	"anyone":   Anyone,
	"owner":    Anyone,
	"everyone": Everyone,
	"all":      Everyone,
	"founder":  Founder,
}

var interned atomic.Pointer[cache.Pool[*ID]]

func init() {
	SetCacheSize(4096)
}

// SetCacheSize replaces the interning pool. Call it before any identifier is
// parsed.
func SetCacheSize(size int) {
	pool := cache.NewPool[*ID](size)
	for _, id := range []*ID{Anyone, Everyone, Founder} {
		pool.Put(id.str, id)
	}
	interned.Store(pool)
}

func concat(name string, addr address.Address, terminal string) string {
	s := addr.String()
	if name != "" {
		s = name + "@" + s
	}
	if terminal != "" {
		s += "/" + terminal
	}
	return s
}

func newID(name string, addr address.Address, terminal string) *ID {
	return &ID{name: name, address: addr, terminal: terminal, str: concat(name, addr, terminal)}
}

// Create composes an identifier from its parts.
func Create(name string, addr address.Address, terminal string) *ID {
	id := newID(name, addr, terminal)
	v, _ := interned.Load().GetOrCreate(id.str, func() (*ID, error) {
		return id, nil
	})
	return v
}

// Generate derives the address of m on network and composes the identifier
// with the meta seed as its name.
func Generate(m *meta.Meta, network uint8, terminal string) (*ID, error) {
	addr, err := m.GenerateAddress(network)
	if err != nil {
		return nil, err
	}
	return Create(m.Seed(), addr, terminal), nil
}

// Parse decodes name@address/terminal. The name and terminal are optional.
func Parse(s string) (*ID, error) {
	if id, ok := aliases[strings.ToLower(s)]; ok {
		return id, nil
	}
	if s == "" {
		return nil, fmt.Errorf("%w: empty identifier", model.ErrIdentifierParse)
	}
	return interned.Load().GetOrCreate(s, func() (*ID, error) {
		return parse(s)
	})
}

func parse(s string) (*ID, error) {
	rest, terminal, hasTerminal := strings.Cut(s, "/")
	if hasTerminal && terminal == "" {
		return nil, fmt.Errorf("%w: empty terminal in %q", model.ErrIdentifierParse, s)
	}
	var name, addr string
	switch parts := strings.Split(rest, "@"); len(parts) {
	case 1:
		addr = parts[0]
	case 2:
		name, addr = parts[0], parts[1]
		if name == "" {
			return nil, fmt.Errorf("%w: empty name in %q", model.ErrIdentifierParse, s)
		}
	default:
		return nil, fmt.Errorf("%w: too many '@' in %q", model.ErrIdentifierParse, s)
	}
	if addr == "" {
		return nil, fmt.Errorf("%w: missing address in %q", model.ErrIdentifierParse, s)
	}
	a, err := address.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrIdentifierParse, err)
	}
	return &ID{name: name, address: a, terminal: terminal, str: s}, nil
}

// ParseAll parses every string, skipping the malformed ones.
func ParseAll(list []string) []*ID {
	out := make([]*ID, 0, len(list))
	for _, s := range list {
		if id, err := Parse(s); err == nil {
			out = append(out, id)
		}
	}
	return out
}

// Strings is the inverse of ParseAll.
func Strings(ids []*ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func (id *ID) Name() string { return id.name }

func (id *ID) Address() address.Address { return id.address }

func (id *ID) Terminal() string { return id.terminal }

func (id *ID) String() string { return id.str }

func (id *ID) Type() address.EntityType { return id.address.Type() }

func (id *ID) IsUser() bool { return id.Type().IsUser() }

func (id *ID) IsGroup() bool { return id.Type().IsGroup() }

func (id *ID) IsBroadcast() bool { return id.Type().IsBroadcast() }

// WithoutTerminal returns the identifier naming the same entity on any
// terminal.
func (id *ID) WithoutTerminal() *ID {
	if id.terminal == "" {
		return id
	}
	return Create(id.name, id.address, "")
}

// Equal compares two identifiers by string form. A nil ID only equals nil.
func (id *ID) Equal(other *ID) bool {
	if id == nil || other == nil {
		return id == other
	}
	return id.str == other.str
}

// SameEntity ignores the terminal.
func (id *ID) SameEntity(other *ID) bool {
	if id == nil || other == nil {
		return id == other
	}
	return id.name == other.name && address.Equal(id.address, other.address)
}

func (id *ID) MarshalText() ([]byte, error) {
	return []byte(id.str), nil
}

func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = *parsed
	return nil
}
