package meta

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"dim_chat/internal/model"
)

// Type selects the address algorithm of a meta.
type Type uint8

const (
	MKM   Type = 1 // address from the seed fingerprint
	BTC   Type = 2 // hash-style address from the key
	ExBTC Type = 3 // BTC carrying a seed
	ETH   Type = 4 // checksum-hex address from the key
	ExETH Type = 5 // ETH carrying a seed
)

var typeAliases = map[string]Type{
	"mkm": MKM,
	"btc": BTC,
	"eth": ETH,
}

// ParseType accepts the numeric form or one of the aliases "mkm", "btc" and
// "eth".
func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if t, ok := typeAliases[s]; ok {
		return t, nil
	}
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: meta type %q", model.ErrUnknownAlgorithm, s)
	}
	t := Type(n)
	if _, ok := schemes[t]; !ok {
		return 0, fmt.Errorf("%w: meta type %d", model.ErrUnknownAlgorithm, n)
	}
	return t, nil
}

func (t Type) String() string {
	return strconv.Itoa(int(t))
}

func (t Type) MarshalJSON() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Type) UnmarshalJSON(data []byte) error {
	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		s = string(data)
	}
	parsed, err := ParseType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
