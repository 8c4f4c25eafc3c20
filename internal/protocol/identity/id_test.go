package identity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dim_chat/internal/cryptographic/keys"
	"dim_chat/internal/model"
	"dim_chat/internal/protocol/address"
	"dim_chat/internal/protocol/meta"
)

const satoshi = "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"

func TestParse(t *testing.T) {
	id, err := Parse("moky@" + satoshi + "/home")
	require.NoError(t, err)
	assert.Equal(t, "moky", id.Name())
	assert.Equal(t, satoshi, id.Address().String())
	assert.Equal(t, "home", id.Terminal())
	assert.Equal(t, "moky@"+satoshi+"/home", id.String())
	assert.True(t, id.IsUser())

	bare, err := Parse(satoshi)
	require.NoError(t, err)
	assert.Empty(t, bare.Name())
	assert.Empty(t, bare.Terminal())

	assert.True(t, id.SameEntity(Create("moky", bare.Address(), "")))
	assert.True(t, id.WithoutTerminal().Equal(Create("moky", bare.Address(), "")))
}

func TestParseTerminalKeepsSlashes(t *testing.T) {
	id, err := Parse(satoshi + "/a/b")
	require.NoError(t, err)
	assert.Equal(t, "a/b", id.Terminal())
}

func TestParseRejects(t *testing.T) {
	cases := []string{
		"",
		"moky@",
		"@" + satoshi,
		satoshi + "/",
		"a@b@" + satoshi,
		"moky@nowhere",
	}
	for _, c := range cases {
		_, err := Parse(c)
		assert.ErrorIs(t, err, model.ErrIdentifierParse, c)
	}
}

func TestSentinels(t *testing.T) {
	for alias, want := range map[string]*ID{
		"anyone":              Anyone,
		"Everyone":            Everyone,
		"founder":             Founder,
		"anyone@anywhere":     Anyone,
		"everyone@everywhere": Everyone,
		"moky@anywhere":       Founder,
	} {
		id, err := Parse(alias)
		require.NoError(t, err, alias)
		assert.Same(t, want, id, alias)
	}
	assert.True(t, Anyone.IsBroadcast())
	assert.True(t, Anyone.IsUser())
	assert.True(t, Everyone.IsGroup())
	assert.True(t, Everyone.IsBroadcast())
}

func TestInterning(t *testing.T) {
	a, err := Parse("hulk@" + satoshi)
	require.NoError(t, err)
	b, err := Parse("hulk@" + satoshi)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Same(t, a, Create("hulk", a.Address(), ""))
}

func TestGenerate(t *testing.T) {
	sKey, err := keys.GeneratePrivateKey(keys.ECC)
	require.NoError(t, err)
	m, err := meta.Generate(meta.MKM, sKey, "hulk")
	require.NoError(t, err)

	user, err := Generate(m, uint8(address.User), "")
	require.NoError(t, err)
	assert.Equal(t, "hulk", user.Name())
	assert.True(t, user.IsUser())
	assert.True(t, m.MatchesID(user))

	group, err := Generate(m, uint8(address.Group), "")
	require.NoError(t, err)
	assert.True(t, group.IsGroup())
	assert.True(t, m.MatchesID(group))

	parsed, err := Parse(user.String())
	require.NoError(t, err)
	assert.True(t, parsed.Equal(user))

	legacy, err := Generate(m, 0x08, "")
	require.NoError(t, err)
	assert.Equal(t, address.User, legacy.Type())
}

func TestGenerateInvalidMeta(t *testing.T) {
	sKey, err := keys.GeneratePrivateKey(keys.ECC)
	require.NoError(t, err)
	m, err := meta.Create(meta.MKM, sKey.PublicKey().(keys.VerifyKey), "hulk", nil)
	require.NoError(t, err)
	_, err = Generate(m, 0x00, "")
	assert.ErrorIs(t, err, model.ErrInvalidMeta)
}

func TestJSON(t *testing.T) {
	type wrapper struct {
		ID *ID `json:"id"`
	}
	raw, err := json.Marshal(wrapper{ID: Anyone})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"anyone@anywhere"}`, string(raw))

	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"id":"moky@`+satoshi+`"}`), &w))
	assert.Equal(t, "moky", w.ID.Name())

	assert.Error(t, json.Unmarshal([]byte(`{"id":"@"}`), &w))
}

func TestParseAll(t *testing.T) {
	ids := ParseAll([]string{"anyone", "bad@", satoshi})
	require.Len(t, ids, 2)
	assert.Equal(t, []string{"anyone@anywhere", satoshi}, Strings(ids))
}
