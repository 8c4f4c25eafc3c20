package address

type broadcast struct {
	name    string
	network EntityType
}

var (
	// Anywhere addresses any single recipient.
	Anywhere Address = &broadcast{name: "anywhere", network: Any}
	// Everywhere addresses all recipients.
	Everywhere Address = &broadcast{name: "everywhere", network: Every}
)

func (b *broadcast) String() string { return b.name }

func (b *broadcast) Network() uint8 { return uint8(b.network) }

func (b *broadcast) Type() EntityType { return b.network }
