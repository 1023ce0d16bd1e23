package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
	"golang.org/x/crypto/nacl/box"
)

const (
	curve25519KeySize = 32
)

// KeyPair holds the signing keys that identify a user and the curve25519
// keys used to derive pairwise secrets
type KeyPair struct {
	SignPub ed25519.PublicKey
	SignPrv ed25519.PrivateKey
	EncPub  *[curve25519KeySize]byte
	EncPrv  *[curve25519KeySize]byte
}

func GenerateKeys() (*KeyPair, error) {
	signPub, signPrv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf(`generating signing keys failed - %v`, err)
	}

	encPub, encPrv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf(`generating encryption keys failed - %v`, err)
	}

	return &KeyPair{SignPub: signPub, SignPrv: signPrv, EncPub: encPub, EncPrv: encPrv}, nil
}

// RestoreKeys rebuilds a key pair from the seeds returned by Seeds
func RestoreKeys(signSeed, encSeed string) (*KeyPair, error) {
	ss := base58.Decode(signSeed)
	if len(ss) != ed25519.SeedSize {
		return nil, fmt.Errorf(`invalid signing seed length (%d)`, len(ss))
	}

	es := base58.Decode(encSeed)
	if len(es) != curve25519KeySize {
		return nil, fmt.Errorf(`invalid encryption seed length (%d)`, len(es))
	}

	signPrv := ed25519.NewKeyFromSeed(ss)
	var encPrv, encPub [curve25519KeySize]byte
	copy(encPrv[:], es)
	pub, err := publicKey(&encPrv)
	if err != nil {
		return nil, err
	}
	copy(encPub[:], pub)

	return &KeyPair{
		SignPub: signPrv.Public().(ed25519.PublicKey),
		SignPrv: signPrv,
		EncPub:  &encPub,
		EncPrv:  &encPrv,
	}, nil
}

// Seeds returns base58 encodings of both private seeds
func (k *KeyPair) Seeds() (signSeed, encSeed string) {
	return base58.Encode(k.SignPrv.Seed()), base58.Encode(k.EncPrv[:])
}

// PublicKey is the textual identity of the key pair used in store paths
func (k *KeyPair) PublicKey() string {
	return base58.Encode(k.SignPub)
}

func (k *KeyPair) EncPublicKey() string {
	return base58.Encode(k.EncPub[:])
}

func DecodeKey(encoded string) ([]byte, error) {
	key := base58.Decode(encoded)
	if len(key) != curve25519KeySize {
		return nil, fmt.Errorf(`invalid key length (%d) for %s`, len(key), encoded)
	}
	return key, nil
}
