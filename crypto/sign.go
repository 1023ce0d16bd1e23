package crypto

import (
	"crypto/ed25519"

	"github.com/btcsuite/btcutil/base58"
)

// Sign returns the base58 encoded signature of data
func (k *KeyPair) Sign(data []byte) string {
	return base58.Encode(ed25519.Sign(k.SignPrv, data))
}

// Verify checks sig against data for the identity addressed by pubKey
func Verify(pubKey string, data []byte, sig string) bool {
	pub := base58.Decode(pubKey)
	if len(pub) != ed25519.PublicKeySize {
		return false
	}

	s := base58.Decode(sig)
	if len(s) != ed25519.SignatureSize {
		return false
	}

	return ed25519.Verify(pub, data, s)
}
