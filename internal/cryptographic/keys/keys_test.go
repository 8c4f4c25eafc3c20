package keys

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dim_chat/internal/model"
)

func TestAsymmetricRoundTrip(t *testing.T) {
	for _, alg := range []string{ECC, ED25519, X25519} {
		t.Run(alg, func(t *testing.T) {
			priv, err := GeneratePrivateKey(alg)
			require.NoError(t, err)

			parsedPriv, err := ParsePrivateKey(InfoOf(priv))
			require.NoError(t, err)
			assert.True(t, Equal(priv, parsedPriv))

			pub := priv.PublicKey()
			parsedPub, err := ParsePublicKey(InfoOf(pub))
			require.NoError(t, err)
			assert.True(t, Equal(pub, parsedPub))

			if sk, ok := priv.(SignKey); ok {
				sig, err := sk.Sign([]byte("hello"))
				require.NoError(t, err)
				vk := parsedPub.(VerifyKey)
				assert.True(t, vk.Verify([]byte("hello"), sig))
				assert.False(t, vk.Verify([]byte("hellO"), sig))
				assert.True(t, Matches(sk, vk))
			}
			if ek, ok := parsedPub.(EncryptKey); ok {
				ct, err := ek.Encrypt([]byte("secret"))
				require.NoError(t, err)
				pt, err := priv.(DecryptKey).Decrypt(ct)
				require.NoError(t, err)
				assert.Equal(t, []byte("secret"), pt)

				ct[len(ct)-1] ^= 0xFF
				_, err = priv.(DecryptKey).Decrypt(ct)
				assert.ErrorIs(t, err, model.ErrDecryptionFailed)
			}
		})
	}
}

func TestCapabilities(t *testing.T) {
	ed, err := GenerateEd25519()
	require.NoError(t, err)
	_, ok := ed.PublicKey().(EncryptKey)
	assert.False(t, ok)

	x, err := GenerateX25519()
	require.NoError(t, err)
	_, ok = x.PublicKey().(VerifyKey)
	assert.False(t, ok)

	ecc, err := GenerateECC()
	require.NoError(t, err)
	_, ok = ecc.PublicKey().(VerifyKey)
	assert.True(t, ok)
	_, ok = ecc.PublicKey().(EncryptKey)
	assert.True(t, ok)
}

func TestECCPublicKeyCompressed(t *testing.T) {
	priv, err := GenerateECC()
	require.NoError(t, err)
	full := priv.PublicKey().Data()
	require.Len(t, full, 65)

	compressed := append([]byte{0x02 | full[64]&1}, full[1:33]...)
	pub, err := parseECCPublicKey(compressed)
	require.NoError(t, err)
	assert.Equal(t, compressed, pub.Data())
	assert.Equal(t, full, pub.(*ECCPublicKey).Uncompressed())
	assert.True(t, Equal(pub, priv.PublicKey()))

	raw, err := Marshal(pub)
	require.NoError(t, err)
	again, err := UnmarshalPublicKey(raw)
	require.NoError(t, err)
	assert.Equal(t, compressed, again.Data())

	sig, err := priv.(SignKey).Sign([]byte("moky"))
	require.NoError(t, err)
	assert.True(t, pub.(VerifyKey).Verify([]byte("moky"), sig))
}

func TestSymmetricRoundTrip(t *testing.T) {
	for _, alg := range []string{AES, CHACHA20, PLAIN} {
		t.Run(alg, func(t *testing.T) {
			key, err := GenerateSymmetricKey(alg)
			require.NoError(t, err)

			raw, err := Marshal(key)
			require.NoError(t, err)
			parsed, err := UnmarshalSymmetricKey(raw)
			require.NoError(t, err)
			assert.True(t, Equal(key, parsed))

			ct, err := key.Encrypt([]byte(`{"text":"hi"}`))
			require.NoError(t, err)
			pt, err := parsed.Decrypt(ct)
			require.NoError(t, err)
			assert.Equal(t, `{"text":"hi"}`, string(pt))
		})
	}
}

func TestSymmetricWrongKey(t *testing.T) {
	a, err := GenerateAES()
	require.NoError(t, err)
	b, err := GenerateAES()
	require.NoError(t, err)

	ct, err := a.Encrypt([]byte("x"))
	require.NoError(t, err)
	_, err = b.Decrypt(ct)
	assert.ErrorIs(t, err, model.ErrDecryptionFailed)

	_, err = a.Decrypt([]byte{1, 2, 3})
	assert.ErrorIs(t, err, model.ErrDecryptionFailed)
}

func TestPlain(t *testing.T) {
	assert.True(t, IsPlain(Plain))
	raw, err := Marshal(Plain)
	require.NoError(t, err)
	assert.JSONEq(t, `{"algorithm":"PLAIN"}`, string(raw))
}

func TestUnknownAlgorithm(t *testing.T) {
	_, err := GeneratePrivateKey("RSA")
	assert.ErrorIs(t, err, model.ErrUnknownAlgorithm)
	_, err = GenerateSymmetricKey("DES")
	assert.ErrorIs(t, err, model.ErrUnknownAlgorithm)
	_, err = ParsePublicKey(Info{Algorithm: "DSA"})
	assert.ErrorIs(t, err, model.ErrUnknownAlgorithm)

	var info Info
	require.NoError(t, json.Unmarshal([]byte(`{"algorithm":"aes","data":"AAAAAAAAAAAAAAAAAAAAAA=="}`), &info))
	key, err := ParseSymmetricKey(info)
	require.NoError(t, err)
	assert.Equal(t, AES, key.Algorithm())
}
