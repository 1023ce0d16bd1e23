// Package chat implements the public lobby and the end-to-end encrypted
// conversations between two identities on top of the graph store.
package chat

import (
	"context"
	"crypto/rand"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/YasiruR/mule-sync/domain/models"
	"github.com/YasiruR/mule-sync/domain/services"
	"github.com/YasiruR/mule-sync/graph/paths"
	"github.com/YasiruR/mule-sync/internal/listeners"
	"github.com/oklog/ulid/v2"
	"github.com/tryfix/log"
)

type conversation struct {
	msgs       map[string]models.ChatMessage
	subscribed bool
	watchers   *listeners.Set[[]models.ChatMessage]
}

type Service struct {
	store           services.GraphStore
	ids             services.IdentityAdapter
	lobby           []models.LobbyMessage
	lobbySubscribed bool
	lobbyWatchers   *listeners.Set[[]models.LobbyMessage]
	convs           map[string]*conversation // by conversation id
	encKeys         map[string]string        // encryption keys by public key
	entropy         *ulid.MonotonicEntropy
	now             func() time.Time
	log             log.Logger
	*sync.RWMutex
}

func NewService(store services.GraphStore, ids services.IdentityAdapter, l log.Logger) *Service {
	return &Service{
		store:         store,
		ids:           ids,
		lobbyWatchers: listeners.New[[]models.LobbyMessage](),
		convs:         map[string]*conversation{},
		encKeys:       map[string]string{},
		entropy:       ulid.Monotonic(rand.Reader, 0),
		now:           time.Now,
		log:           l,
		RWMutex:       &sync.RWMutex{},
	}
}

// newId issues a time ordered identifier with a random suffix
func (s *Service) newId() string {
	s.Lock()
	defer s.Unlock()
	return ulid.MustNew(ulid.Timestamp(s.now()), s.entropy).String()
}

// SendMessage encrypts plaintext for the recipient and writes it on the
// conversation. Once written, the plaintext copy is added to the local
// history and returned. Listeners are notified from the delivery goroutine.
func (s *Service) SendMessage(ctx context.Context, to, plaintext string) (models.ChatMessage, error) {
	me, ok := s.ids.Current()
	if !ok {
		s.log.Warn(`cannot send message - not signed in`)
		return models.ChatMessage{}, services.ErrNoSession
	}

	if strings.TrimSpace(to) == `` || strings.TrimSpace(plaintext) == `` {
		return models.ChatMessage{}, fmt.Errorf(`recipient and content are required`)
	}

	if !paths.ValidKey(to) {
		return models.ChatMessage{}, fmt.Errorf(`invalid recipient key %q`, to)
	}

	secret, err := s.secret(ctx, to)
	if err != nil {
		s.log.Error(fmt.Sprintf(`deriving secret for %s failed - %v`, to, err))
		return models.ChatMessage{}, err
	}

	ciphertext, err := s.ids.Encrypt(plaintext, secret)
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf(`encrypting message failed - %v`, err)
	}

	msg := models.ChatMessage{
		Id:        s.newId(),
		From:      me.PublicKey,
		FromAlias: me.Alias,
		To:        to,
		Content:   ciphertext,
		Timestamp: s.now(),
		Encrypted: true,
	}

	if err = s.store.Put(paths.ChatMessage(me.PublicKey, to, msg.Id), msg.Node()); err != nil {
		return models.ChatMessage{}, fmt.Errorf(`writing message failed - %v`, err)
	}

	local := msg
	local.Content = plaintext
	convId := paths.ConversationID(me.PublicKey, to)
	if s.insert(convId, local) {
		s.store.Defer(func() { s.notify(convId) })
	}

	return local, nil
}

// SubscribeToChat registers fn on the conversation with other. The store
// subscription of a conversation is opened on its first listener.
func (s *Service) SubscribeToChat(other string, fn func(msgs []models.ChatMessage)) (cancel func()) {
	me, ok := s.ids.Current()
	if !ok {
		s.log.Warn(`cannot subscribe to chat - not signed in`)
		return func() {}
	}

	if !paths.ValidKey(other) {
		s.log.Warn(fmt.Sprintf(`cannot subscribe to chat - invalid key %q`, other))
		return func() {}
	}

	convId := paths.ConversationID(me.PublicKey, other)
	s.Lock()
	c := s.conversation(convId)
	cancel = c.watchers.Add(fn)
	open := !c.subscribed
	c.subscribed = true
	s.Unlock()

	if open {
		s.store.Map(paths.Conversation(me.PublicKey, other), func(id string, n models.Node) {
			s.handleMessage(convId, id, n)
		})
		s.log.Debug(fmt.Sprintf(`subscribed to conversation %s`, convId))
	}

	return cancel
}

// Messages returns the history with other ordered by timestamp
func (s *Service) Messages(other string) []models.ChatMessage {
	me, ok := s.ids.Current()
	if !ok {
		return nil
	}
	return s.history(paths.ConversationID(me.PublicKey, other))
}

func (s *Service) handleMessage(convId, id string, n models.Node) {
	msg, ok := models.ParseChatMessage(id, n)
	if !ok {
		return
	}

	if s.known(convId, id) {
		return
	}

	if msg.Encrypted {
		plain, err := s.open(msg)
		if err != nil {
			s.log.Debug(fmt.Sprintf(`dropped message %s of %s - %v`, id, convId, err))
			return
		}
		msg.Content = plain
	}

	if s.insert(convId, msg) {
		s.notify(convId)
	}
}

// open decrypts a message exchanged between this identity and another
func (s *Service) open(msg models.ChatMessage) (string, error) {
	me, ok := s.ids.Current()
	if !ok {
		return ``, services.ErrNoSession
	}

	var other string
	switch me.PublicKey {
	case msg.From:
		other = msg.To
	case msg.To:
		other = msg.From
	default:
		return ``, fmt.Errorf(`not a party of the conversation`)
	}

	secret, err := s.secret(context.Background(), other)
	if err != nil {
		return ``, err
	}

	return s.ids.Decrypt(msg.Content, secret)
}

func (s *Service) secret(ctx context.Context, other string) ([]byte, error) {
	epub, err := s.encryptionKey(ctx, other)
	if err != nil {
		return nil, err
	}
	return s.ids.SharedSecret(epub)
}

// encryptionKey resolves the key from the profile of pubKey once
func (s *Service) encryptionKey(ctx context.Context, pubKey string) (string, error) {
	s.RLock()
	epub, ok := s.encKeys[pubKey]
	s.RUnlock()
	if ok {
		return epub, nil
	}

	epub, err := s.ids.EncryptionKey(ctx, pubKey)
	if err != nil {
		return ``, err
	}

	s.Lock()
	s.encKeys[pubKey] = epub
	s.Unlock()
	return epub, nil
}

// conversation must be called with the write lock held
func (s *Service) conversation(convId string) *conversation {
	c, ok := s.convs[convId]
	if !ok {
		c = &conversation{msgs: map[string]models.ChatMessage{}, watchers: listeners.New[[]models.ChatMessage]()}
		s.convs[convId] = c
	}
	return c
}

func (s *Service) known(convId, id string) bool {
	s.RLock()
	defer s.RUnlock()
	c, ok := s.convs[convId]
	if !ok {
		return false
	}
	_, ok = c.msgs[id]
	return ok
}

func (s *Service) insert(convId string, msg models.ChatMessage) bool {
	s.Lock()
	defer s.Unlock()
	c := s.conversation(convId)
	if _, ok := c.msgs[msg.Id]; ok {
		return false
	}
	c.msgs[msg.Id] = msg
	return true
}

func (s *Service) history(convId string) []models.ChatMessage {
	s.RLock()
	defer s.RUnlock()
	c, ok := s.convs[convId]
	if !ok {
		return nil
	}

	msgs := make([]models.ChatMessage, 0, len(c.msgs))
	for _, m := range c.msgs {
		msgs = append(msgs, m)
	}

	sort.Slice(msgs, func(i, j int) bool {
		if !msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].Timestamp.Before(msgs[j].Timestamp)
		}
		return msgs[i].Id < msgs[j].Id
	})
	return msgs
}

func (s *Service) notify(convId string) {
	s.RLock()
	c, ok := s.convs[convId]
	s.RUnlock()
	if !ok {
		return
	}
	c.watchers.Notify(s.history(convId))
}
