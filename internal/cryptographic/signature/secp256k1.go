package signature

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/minio/sha256-simd"
)

// Secp256k1Sign returns a DER encoded ECDSA signature over sha256(message).
func Secp256k1Sign(priv *secp256k1.PrivateKey, message []byte) []byte {
	hash := sha256.Sum256(message)
	return ecdsa.Sign(priv, hash[:]).Serialize()
}

func Secp256k1Verify(pub *secp256k1.PublicKey, message []byte, signature []byte) bool {
	sig, err := ecdsa.ParseDERSignature(signature)
	if err != nil {
		return false
	}
	hash := sha256.Sum256(message)
	return sig.Verify(hash[:], pub)
}
