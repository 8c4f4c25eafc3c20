package dh

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

func NewSecp256k1KeyPair() (*secp256k1.PrivateKey, error) {
	return secp256k1.GeneratePrivateKey()
}

// Secp256k1SharedSecret returns the x coordinate of priv * pub.
func Secp256k1SharedSecret(priv *secp256k1.PrivateKey, pub *secp256k1.PublicKey) []byte {
	return secp256k1.GenerateSharedSecret(priv, pub)
}
