// Package identity is the seam between the synchronization layer and the
// user's keys. It keeps the signed-in session, publishes the public
// profile peers need to reach this user, and wraps the crypto primitives.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/YasiruR/mule-sync/crypto"
	"github.com/YasiruR/mule-sync/domain/models"
	"github.com/YasiruR/mule-sync/domain/services"
	"github.com/YasiruR/mule-sync/graph/paths"
	"github.com/tryfix/log"
)

type session struct {
	alias string
	keys  *crypto.KeyPair
}

type keyFile struct {
	Alias    string `json:"alias"`
	SignSeed string `json:"sign"`
	EncSeed  string `json:"enc"`
}

type Service struct {
	store   services.GraphStore
	current *session
	log     log.Logger
	*sync.RWMutex
}

func NewService(store services.GraphStore, l log.Logger) *Service {
	return &Service{store: store, log: l, RWMutex: &sync.RWMutex{}}
}

// SignIn starts a session under the given alias with fresh keys and
// publishes the public profile of the new identity
func (s *Service) SignIn(alias string) (models.Identity, error) {
	alias = strings.TrimSpace(alias)
	if alias == `` {
		return models.Identity{}, fmt.Errorf(`alias cannot be empty`)
	}

	keys, err := crypto.GenerateKeys()
	if err != nil {
		return models.Identity{}, fmt.Errorf(`generating identity keys failed - %v`, err)
	}

	return s.start(alias, keys)
}

// Recall restores the session persisted at path
func (s *Service) Recall(path string) (models.Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Identity{}, fmt.Errorf(`reading key file failed - %v`, err)
	}

	var kf keyFile
	if err = json.Unmarshal(data, &kf); err != nil {
		return models.Identity{}, fmt.Errorf(`unmarshalling key file failed - %v`, err)
	}

	keys, err := crypto.RestoreKeys(kf.SignSeed, kf.EncSeed)
	if err != nil {
		return models.Identity{}, fmt.Errorf(`restoring keys failed - %v`, err)
	}

	return s.start(kf.Alias, keys)
}

// Save persists the current session so that it can be recalled later
func (s *Service) Save(path string) error {
	s.RLock()
	cur := s.current
	s.RUnlock()
	if cur == nil {
		return services.ErrNoSession
	}

	signSeed, encSeed := cur.keys.Seeds()
	data, err := json.Marshal(keyFile{Alias: cur.alias, SignSeed: signSeed, EncSeed: encSeed})
	if err != nil {
		return fmt.Errorf(`marshalling key file failed - %v`, err)
	}

	if err = os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf(`writing key file failed - %v`, err)
	}

	return nil
}

func (s *Service) SignOut() {
	s.Lock()
	defer s.Unlock()
	s.current = nil
}

func (s *Service) start(alias string, keys *crypto.KeyPair) (models.Identity, error) {
	s.Lock()
	s.current = &session{alias: alias, keys: keys}
	s.Unlock()

	id := models.Identity{Alias: alias, PublicKey: keys.PublicKey(), EncPublicKey: keys.EncPublicKey()}
	sig := keys.Sign(models.ProfilePayload(id.Alias, id.PublicKey, id.EncPublicKey))
	if err := s.store.Put(paths.User(id.PublicKey), id.ProfileNode(sig)); err != nil {
		return models.Identity{}, fmt.Errorf(`publishing profile failed - %v`, err)
	}

	s.log.Info(fmt.Sprintf(`signed in as %s (%s)`, id.Alias, id.PublicKey))
	return id, nil
}

func (s *Service) Current() (models.Identity, bool) {
	s.RLock()
	defer s.RUnlock()
	if s.current == nil {
		return models.Identity{}, false
	}

	return models.Identity{
		Alias:        s.current.alias,
		PublicKey:    s.current.keys.PublicKey(),
		EncPublicKey: s.current.keys.EncPublicKey(),
	}, true
}

func (s *Service) SharedSecret(peerEncPubKey string) ([]byte, error) {
	s.RLock()
	cur := s.current
	s.RUnlock()
	if cur == nil {
		return nil, services.ErrNoSession
	}

	return crypto.SharedSecret(peerEncPubKey, cur.keys.EncPrv)
}

func (s *Service) Encrypt(plaintext string, secret []byte) (string, error) {
	return crypto.Encrypt(plaintext, secret)
}

func (s *Service) Decrypt(ciphertext string, secret []byte) (string, error) {
	msg, err := crypto.Decrypt(ciphertext, secret)
	if err != nil {
		return ``, fmt.Errorf(`%w - %v`, services.ErrDecrypt, err)
	}
	return msg, nil
}

func (s *Service) Sign(data []byte) (string, error) {
	s.RLock()
	cur := s.current
	s.RUnlock()
	if cur == nil {
		return ``, services.ErrNoSession
	}

	return cur.keys.Sign(data), nil
}

// EncryptionKey reads the encryption key from the profile of pubKey. The
// profile must carry a signature of its owner over every published field,
// since any writer can merge fields into the user namespace.
func (s *Service) EncryptionKey(ctx context.Context, pubKey string) (string, error) {
	profile, err := s.store.Get(ctx, paths.User(pubKey))
	if err != nil {
		return ``, fmt.Errorf(`fetching profile of %s failed - %v`, pubKey, err)
	}

	epub := profile.Str(models.FieldEpub)
	if epub == `` || profile.Str(models.FieldPub) != pubKey {
		return ``, services.ErrNoEncryptionKey
	}

	payload := models.ProfilePayload(profile.Str(models.FieldAlias), pubKey, epub)
	if !crypto.Verify(pubKey, payload, profile.Str(models.FieldSig)) {
		s.log.Warn(fmt.Sprintf(`rejected profile of %s with an invalid signature`, pubKey))
		return ``, fmt.Errorf(`%w - invalid profile signature`, services.ErrNoEncryptionKey)
	}

	return epub, nil
}
