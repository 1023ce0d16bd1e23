package services

import (
	"context"
	"errors"

	"github.com/YasiruR/mule-sync/domain/models"
)

var (
	ErrNoSession       = errors.New(`no signed-in identity`)
	ErrDecrypt         = errors.New(`decryption failed`)
	ErrNoEncryptionKey = errors.New(`encryption public key unavailable`)
)

/* core services */

// IdentityAdapter is the seam over the identity service. None of its
// failures are fatal, callers degrade to an unavailable result.
type IdentityAdapter interface {
	Current() (models.Identity, bool)
	SharedSecret(peerEncPubKey string) ([]byte, error)
	Encrypt(plaintext string, secret []byte) (string, error)
	Decrypt(ciphertext string, secret []byte) (string, error)
	// Sign signs data with the key behind the current public key
	Sign(data []byte) (string, error)
	// EncryptionKey resolves the encryption public key from the public
	// profile of the given identity. Profiles not signed by that identity
	// are treated as absent.
	EncryptionKey(ctx context.Context, pubKey string) (string, error)
}

type Catalog interface {
	Publish(entry models.CatalogEntry) error
	Unpublish(infoHash string) error
	SubscribeToNetwork(onUpdate func(entries []models.CatalogEntry))
	Search(query string) []models.CatalogEntry
	NetworkEntries() []models.CatalogEntry
	LocalEntries() []models.CatalogEntry
	Watch(fn func(entries []models.CatalogEntry)) (cancel func())
	AnnounceAsPeer() error
}

// PeerAnnouncer writes this node's presence record
type PeerAnnouncer interface {
	AnnounceAsPeer() error
}

type Discoverer interface {
	StartDiscovery()
	StopDiscovery()
	Refresh()
	Relays() []models.PeerRecord
	Peers() []models.PeerRecord
	AllContacts() []models.PeerRecord
	BootstrapPeers() []string
	Subscribe(fn func(relays []models.PeerRecord)) (cancel func())
}

// EndpointSource provides the relay endpoints known to this node
type EndpointSource interface {
	BootstrapPeers() []string
	Relays() []models.PeerRecord
}

type Merger interface {
	Merge(ctx context.Context) []models.CatalogEntry
	View() []models.CatalogEntry
	Subscribe(fn func(entries []models.CatalogEntry)) (cancel func())
}

type Chat interface {
	SendLobbyMessage(text string) error
	SubscribeToLobby(fn func(msgs []models.LobbyMessage)) (cancel func())
	LobbyMessages() []models.LobbyMessage
	SendMessage(ctx context.Context, to, plaintext string) (models.ChatMessage, error)
	SubscribeToChat(other string, fn func(msgs []models.ChatMessage)) (cancel func())
	Messages(other string) []models.ChatMessage
}
