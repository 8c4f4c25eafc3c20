package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBase58(t *testing.T) {
	assert.Equal(t, "3oF5MJ", Base58Encode([]byte("moky")))

	data, err := Base58Decode("3oF5MJ")
	require.NoError(t, err)
	assert.Equal(t, []byte("moky"), data)

	_, err = Base58Decode("0OIl")
	assert.Error(t, err)
}

func TestBase64(t *testing.T) {
	assert.Equal(t, "bW9reQ==", Base64Encode([]byte("moky")))

	for _, s := range []string{"bW9reQ==", "bW9reQ"} {
		data, err := Base64Decode(s)
		require.NoError(t, err)
		assert.Equal(t, []byte("moky"), data)
	}

	_, err := Base64Decode("!!")
	assert.Error(t, err)
}

func TestHex(t *testing.T) {
	assert.Equal(t, "6d6f6b79", HexEncode([]byte("moky")))
	data, err := HexDecode("6d6f6b79")
	require.NoError(t, err)
	assert.Equal(t, []byte("moky"), data)
}
