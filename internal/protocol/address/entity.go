package address

import "fmt"

// EntityType is the network tag an address carries. Bit 0 separates users
// from groups and bit 7 marks broadcast addresses.
type EntityType uint8

const (
	User       EntityType = 0x00
	Group      EntityType = 0x01
	Station    EntityType = 0x02
	ISP        EntityType = 0x03
	Bot        EntityType = 0x04
	ICP        EntityType = 0x05
	Supervisor EntityType = 0x06
	Company    EntityType = 0x07

	Any   EntityType = 0x80
	Every EntityType = 0x81
)

func (t EntityType) IsUser() bool { return t&Group == User }

func (t EntityType) IsGroup() bool { return t&Group == Group }

func (t EntityType) IsBroadcast() bool { return t&Any == Any }

func (t EntityType) String() string {
	switch t {
	case User:
		return "user"
	case Group:
		return "group"
	case Station:
		return "station"
	case ISP:
		return "isp"
	case Bot:
		return "bot"
	case ICP:
		return "icp"
	case Supervisor:
		return "supervisor"
	case Company:
		return "company"
	case Any:
		return "any"
	case Every:
		return "every"
	}
	return fmt.Sprintf("0x%02x", uint8(t))
}

// Network ids used by older clients. Addresses generated with them are still
// in circulation, so their tags are mapped before classifying.
const (
	legacyMain      uint8 = 0x08
	legacyPolylogue uint8 = 0x10
	legacyChatroom  uint8 = 0x30
	legacyStation   uint8 = 0x88
	legacyProvider  uint8 = 0x76
	legacyBot       uint8 = 0xC8
)

// TypeOf maps a raw network byte to its entity type.
func TypeOf(network uint8) EntityType {
	switch network {
	case legacyMain:
		return User
	case legacyPolylogue:
		return Group
	case legacyChatroom:
		return Group | EntityType(legacyChatroom)
	case legacyStation:
		return Station
	case legacyProvider:
		return ISP
	case legacyBot:
		return Bot
	}
	return EntityType(network)
}
