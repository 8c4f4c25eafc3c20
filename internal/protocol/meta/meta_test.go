package meta

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dim_chat/internal/cryptographic/format"
	"dim_chat/internal/cryptographic/keys"
	"dim_chat/internal/model"
	"dim_chat/internal/protocol/address"
)

type fakeID struct {
	name string
	addr address.Address
}

func (f fakeID) Name() string             { return f.name }
func (f fakeID) Address() address.Address { return f.addr }

func newKey(t *testing.T, alg string) keys.PrivateKey {
	t.Helper()
	k, err := keys.GeneratePrivateKey(alg)
	require.NoError(t, err)
	return k
}

func TestGenerateMKM(t *testing.T) {
	m, err := Generate(MKM, newKey(t, keys.ECC), "moky")
	require.NoError(t, err)
	assert.True(t, m.IsValid())
	assert.Equal(t, "moky", m.Seed())

	user, err := m.GenerateAddress(0x00)
	require.NoError(t, err)
	group, err := m.GenerateAddress(0x01)
	require.NoError(t, err)
	assert.NotEqual(t, user.String(), group.String())
	assert.Equal(t, address.Group, group.Type())

	again, err := m.GenerateAddress(0x00)
	require.NoError(t, err)
	assert.Same(t, user, again)
}

func TestGenerateMKMNeedsSeed(t *testing.T) {
	_, err := Generate(MKM, newKey(t, keys.ECC), "")
	assert.ErrorIs(t, err, model.ErrInvalidMeta)
}

func TestGeneratePromotesExtended(t *testing.T) {
	m, err := Generate(BTC, newKey(t, keys.ECC), "")
	require.NoError(t, err)
	assert.Equal(t, BTC, m.Type())

	m, err = Generate(ETH, newKey(t, keys.ECC), "hulk")
	require.NoError(t, err)
	assert.Equal(t, ExETH, m.Type())
	assert.True(t, m.IsValid())
}

func TestBTCIgnoresSeed(t *testing.T) {
	sKey := newKey(t, keys.ECC)
	plain, err := Generate(BTC, sKey, "")
	require.NoError(t, err)
	extended, err := Generate(BTC, sKey, "hulk")
	require.NoError(t, err)

	a, err := plain.GenerateAddress(0x00)
	require.NoError(t, err)
	b, err := extended.GenerateAddress(0x00)
	require.NoError(t, err)
	assert.Equal(t, a.String(), b.String())
}

func TestETHRequiresECC(t *testing.T) {
	_, err := Generate(ETH, newKey(t, keys.ED25519), "")
	assert.ErrorIs(t, err, model.ErrInvalidMeta)

	m, err := Generate(ETH, newKey(t, keys.ECC), "")
	require.NoError(t, err)
	addr, err := m.GenerateAddress(0x01)
	require.NoError(t, err)
	assert.Equal(t, address.User, addr.Type())
	assert.True(t, address.IsValidate(addr.String()))
}

func TestInvalidMetaHasNoAddress(t *testing.T) {
	sKey := newKey(t, keys.ECC)
	pub := sKey.PublicKey().(keys.VerifyKey)

	m, err := Create(MKM, pub, "moky", []byte("forged"))
	require.NoError(t, err)
	assert.False(t, m.IsValid())
	_, err = m.GenerateAddress(0x00)
	assert.ErrorIs(t, err, model.ErrInvalidMeta)

	m, err = Create(BTC, pub, "moky", nil)
	require.NoError(t, err)
	assert.False(t, m.IsValid())

	_, err = Create(Type(9), pub, "", nil)
	assert.ErrorIs(t, err, model.ErrUnknownAlgorithm)
}

func TestMatchesID(t *testing.T) {
	m, err := Generate(MKM, newKey(t, keys.ECC), "moky")
	require.NoError(t, err)
	addr, err := m.GenerateAddress(0x00)
	require.NoError(t, err)

	assert.True(t, m.MatchesID(fakeID{name: "moky", addr: addr}))
	assert.False(t, m.MatchesID(fakeID{name: "hulk", addr: addr}))
	assert.False(t, m.MatchesID(fakeID{name: "", addr: addr}))

	other, err := m.GenerateAddress(0x01)
	require.NoError(t, err)
	assert.True(t, m.MatchesID(fakeID{name: "moky", addr: other}))

	stranger := address.GenerateBTC([]byte("x"), 0x00)
	assert.False(t, m.MatchesID(fakeID{name: "moky", addr: stranger}))
}

func TestMatchesKey(t *testing.T) {
	sKey := newKey(t, keys.ED25519)
	m, err := Generate(MKM, sKey, "moky")
	require.NoError(t, err)
	assert.True(t, m.MatchesKey(sKey.PublicKey().(keys.VerifyKey)))

	other := newKey(t, keys.ED25519)
	assert.False(t, m.MatchesKey(other.PublicKey().(keys.VerifyKey)))

	btc, err := Generate(BTC, sKey, "")
	require.NoError(t, err)
	assert.False(t, btc.MatchesKey(other.PublicKey().(keys.VerifyKey)))
}

func TestJSONRoundTrip(t *testing.T) {
	m, err := Generate(MKM, newKey(t, keys.ECC), "moky")
	require.NoError(t, err)

	raw, err := json.Marshal(m)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.EqualValues(t, 1, fields["type"])

	parsed, err := Parse(raw)
	require.NoError(t, err)
	assert.True(t, keys.Equal(m.Key(), parsed.Key()))
	assert.Equal(t, m.Fingerprint(), parsed.Fingerprint())

	a, _ := m.GenerateAddress(0x08)
	b, _ := parsed.GenerateAddress(0x08)
	assert.Equal(t, a.String(), b.String())

	var decoded Meta
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.True(t, decoded.IsValid())
}

func TestParseAliasesAndVersion(t *testing.T) {
	m, err := Generate(BTC, newKey(t, keys.ECC), "")
	require.NoError(t, err)
	key, err := json.Marshal(keys.InfoOf(m.Key()))
	require.NoError(t, err)

	for _, typ := range []string{`"btc"`, `"2"`, `2`} {
		parsed, err := Parse([]byte(`{"type":` + typ + `,"key":` + string(key) + `}`))
		require.NoError(t, err, typ)
		assert.Equal(t, BTC, parsed.Type())
	}
	parsed, err := Parse([]byte(`{"version":2,"key":` + string(key) + `}`))
	require.NoError(t, err)
	assert.Equal(t, BTC, parsed.Type())

	_, err = Parse([]byte(`{"type":"rsa","key":` + string(key) + `}`))
	assert.ErrorIs(t, err, model.ErrUnknownAlgorithm)

	_, err = Parse([]byte(`{"key":` + string(key) + `}`))
	assert.ErrorIs(t, err, model.ErrInvalidMeta)
}

func TestConcurrentAddress(t *testing.T) {
	m, err := Generate(MKM, newKey(t, keys.ECC), "moky")
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]address.Address, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = m.GenerateAddress(0x10)
		}(i)
	}
	wg.Wait()
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

func compressedRecord(t *testing.T, metaType int) (compressed, full []byte, raw []byte) {
	t.Helper()
	full = newKey(t, keys.ECC).PublicKey().Data()
	require.Len(t, full, 65)
	compressed = append([]byte{0x02 | full[64]&1}, full[1:33]...)
	raw, err := json.Marshal(map[string]any{
		"type": metaType,
		"key":  map[string]string{"algorithm": keys.ECC, "data": format.Base64Encode(compressed)},
	})
	require.NoError(t, err)
	return compressed, full, raw
}

func TestBTCHashesCompressedKeyAsGiven(t *testing.T) {
	compressed, _, raw := compressedRecord(t, 2)
	m, err := Parse(raw)
	require.NoError(t, err)

	addr, err := m.GenerateAddress(0x08)
	require.NoError(t, err)
	assert.Equal(t, address.GenerateBTC(compressed, 0x08).String(), addr.String())
	assert.True(t, m.MatchesID(fakeID{name: "", addr: address.GenerateBTC(compressed, 0x08)}))

	out, err := json.Marshal(m)
	require.NoError(t, err)
	again, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, compressed, again.Key().Data())
}

func TestETHHashesUncompressedPoint(t *testing.T) {
	_, full, raw := compressedRecord(t, 4)
	m, err := Parse(raw)
	require.NoError(t, err)

	addr, err := m.GenerateAddress(0x08)
	require.NoError(t, err)
	assert.Equal(t, address.GenerateETH(full).String(), addr.String())
}
