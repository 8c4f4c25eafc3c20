package address

import (
	"strings"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dim_chat/internal/model"
)

func TestParseBTC(t *testing.T) {
	addr, err := Parse("1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa")
	require.NoError(t, err)
	assert.Equal(t, "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", addr.String())
	assert.Equal(t, uint8(0), addr.Network())
	assert.True(t, addr.Type().IsUser())

	again, err := Parse("1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa")
	require.NoError(t, err)
	assert.Same(t, addr, again)
}

func TestParseBTCRejects(t *testing.T) {
	cases := []string{
		"",
		"1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNb",
		"1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfN0",
		"1A1zP1eP",
		strings.Repeat("1", 36),
	}
	for _, c := range cases {
		_, err := Parse(c)
		assert.ErrorIs(t, err, model.ErrAddressDecode, c)
	}
}

func TestGenerateBTCNetwork(t *testing.T) {
	for _, network := range []uint8{0x00, 0x01, 0x08, 0x10, 0x88, 0xC8} {
		fp := []byte{network, 1, 2, 3, 4, 5}
		addr := GenerateBTC(fp, network)
		parsed, err := ParseBTC(addr.String())
		require.NoError(t, err)
		assert.Equal(t, network, parsed.Network())
		assert.True(t, Equal(addr, parsed))
	}
}

func TestGenerateBTCDistinctNetworks(t *testing.T) {
	fp := []byte("moky")
	assert.NotEqual(t, GenerateBTC(fp, 0x00).String(), GenerateBTC(fp, 0x01).String())
}

func TestGenerateETH(t *testing.T) {
	one := make([]byte, 32)
	one[31] = 1
	pub := secp256k1.PrivKeyFromBytes(one).PubKey()

	addr := GenerateETH(pub.SerializeUncompressed())
	assert.Equal(t, "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf", addr.String())
	assert.Equal(t, User, addr.Type())
	assert.True(t, IsValidate(addr.String()))

	stripped := GenerateETH(pub.SerializeUncompressed()[1:])
	assert.True(t, Equal(addr, stripped))
}

func TestETHCasing(t *testing.T) {
	const canonical = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	lower := strings.ToLower(canonical)

	assert.True(t, IsValidate(canonical))
	assert.False(t, IsValidate(lower))
	assert.Equal(t, canonical, GetValidateAddress(lower))

	addr, err := Parse(lower)
	require.NoError(t, err)
	assert.Equal(t, lower, addr.String())

	_, err = ParseETH("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAeg")
	assert.ErrorIs(t, err, model.ErrAddressDecode)
	assert.Empty(t, GetValidateAddress("5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed00"))
}

func TestBroadcast(t *testing.T) {
	addr, err := Parse("anywhere")
	require.NoError(t, err)
	assert.Same(t, Anywhere, addr)
	assert.True(t, IsBroadcast(addr))
	assert.True(t, addr.Type().IsUser())

	addr, err = Parse("everywhere")
	require.NoError(t, err)
	assert.Same(t, Everywhere, addr)
	assert.True(t, addr.Type().IsGroup())
	assert.True(t, addr.Type().IsBroadcast())
}

func TestBroadcastAnyCase(t *testing.T) {
	for _, s := range []string{"ANYWHERE", "AnyWhere", "Everywhere"} {
		addr, err := Parse(s)
		require.NoError(t, err)
		assert.Equal(t, strings.ToLower(s), addr.String())

		again, err := Parse(addr.String())
		require.NoError(t, err)
		assert.Same(t, addr, again)
	}
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, User, TypeOf(0x08))
	assert.Equal(t, User, TypeOf(0x00))
	assert.Equal(t, Group, TypeOf(0x10))
	assert.True(t, TypeOf(0x30).IsGroup())
	assert.Equal(t, Station, TypeOf(0x88))
	assert.Equal(t, ISP, TypeOf(0x76))
	assert.Equal(t, Bot, TypeOf(0xC8))
	assert.Equal(t, Company, TypeOf(0x07))
	assert.Equal(t, "station", Station.String())
}
