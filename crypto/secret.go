package crypto

import (
	"fmt"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

// SharedSecret derives the key both parties of a conversation compute
// independently from their own private key and the other's public key
func SharedSecret(peerEncPub string, myEncPrv *[curve25519KeySize]byte) ([]byte, error) {
	peer, err := DecodeKey(peerEncPub)
	if err != nil {
		return nil, fmt.Errorf(`decoding peer encryption key failed - %v`, err)
	}

	var peerKey, shared [curve25519KeySize]byte
	copy(peerKey[:], peer)
	box.Precompute(&shared, &peerKey, myEncPrv)
	return shared[:], nil
}

func publicKey(prv *[curve25519KeySize]byte) ([]byte, error) {
	pub, err := curve25519.X25519(prv[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf(`deriving encryption public key failed - %v`, err)
	}
	return pub, nil
}
