package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"

	chacha "github.com/GoKillers/libsodium-go/crypto/aead/chacha20poly1305ietf"
)

// sealed is the wire form of an encrypted chat message
type sealed struct {
	Iv         string `json:"iv"`
	Ciphertext string `json:"ciphertext"`
	Tag        string `json:"tag"`
}

// Encrypt seals the message with chacha20-poly1305 in detached mode under
// the given shared secret and returns the encoded envelope
func Encrypt(msg string, key []byte) (string, error) {
	if len(key) < chacha.KeyBytes {
		return ``, fmt.Errorf(`invalid key length (%d)`, len(key))
	}

	var convertedIv [chacha.NonceBytes]byte
	if _, err := rand.Read(convertedIv[:]); err != nil {
		return ``, fmt.Errorf(`generating nonce failed - %v`, err)
	}

	var convertedCek [chacha.KeyBytes]byte
	copy(convertedCek[:], key)

	cipher, mac := chacha.EncryptDetached([]byte(msg), nil, &convertedIv, &convertedCek)
	data, err := json.Marshal(sealed{
		Iv:         base64.StdEncoding.EncodeToString(convertedIv[:]),
		Ciphertext: base64.StdEncoding.EncodeToString(cipher),
		Tag:        base64.StdEncoding.EncodeToString(mac),
	})
	if err != nil {
		return ``, fmt.Errorf(`marshalling sealed message failed - %v`, err)
	}

	return string(data), nil
}

func Decrypt(envelope string, key []byte) (string, error) {
	if len(key) < chacha.KeyBytes {
		return ``, fmt.Errorf(`invalid key length (%d)`, len(key))
	}

	var s sealed
	if err := json.Unmarshal([]byte(envelope), &s); err != nil {
		return ``, fmt.Errorf(`unmarshalling sealed message failed - %v`, err)
	}

	iv, err := base64.StdEncoding.DecodeString(s.Iv)
	if err != nil || len(iv) != chacha.NonceBytes {
		return ``, fmt.Errorf(`invalid nonce`)
	}

	cipher, err := base64.StdEncoding.DecodeString(s.Ciphertext)
	if err != nil {
		return ``, fmt.Errorf(`decoding ciphertext failed - %v`, err)
	}

	mac, err := base64.StdEncoding.DecodeString(s.Tag)
	if err != nil {
		return ``, fmt.Errorf(`decoding tag failed - %v`, err)
	}

	var convertedIv [chacha.NonceBytes]byte
	copy(convertedIv[:], iv)

	var convertedCek [chacha.KeyBytes]byte
	copy(convertedCek[:], key)

	msg, err := chacha.DecryptDetached(cipher, mac, nil, &convertedIv, &convertedCek)
	if err != nil {
		return ``, fmt.Errorf(`opening sealed message failed - %v`, err)
	}

	return string(msg), nil
}
