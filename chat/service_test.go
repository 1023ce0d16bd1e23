package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/YasiruR/mule-sync/domain"
	"github.com/YasiruR/mule-sync/domain/models"
	"github.com/YasiruR/mule-sync/domain/services"
	"github.com/YasiruR/mule-sync/graph"
	"github.com/YasiruR/mule-sync/graph/paths"
	"github.com/YasiruR/mule-sync/identity"
	"github.com/YasiruR/mule-sync/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type node struct {
	id   models.Identity
	ids  *identity.Service
	chat *Service
}

// newNode signs a new identity in on the shared store
func newNode(t *testing.T, store *graph.Store, alias string) *node {
	logger := log.NewLogger(false, ``)
	ids := identity.NewService(store, logger)
	id, err := ids.SignIn(alias)
	require.NoError(t, err)
	return &node{id: id, ids: ids, chat: NewService(store, ids, logger)}
}

func newTestStore(t *testing.T) *graph.Store {
	s := graph.NewStore(log.NewLogger(false, ``))
	t.Cleanup(s.Close)
	return s
}

// countingStore counts the subscriptions opened per path
type countingStore struct {
	*graph.Store
	mu   *sync.Mutex
	maps map[string]int
}

func newCountingStore(store *graph.Store) *countingStore {
	return &countingStore{Store: store, mu: &sync.Mutex{}, maps: map[string]int{}}
}

func (c *countingStore) Map(path string, l services.Listener) {
	c.mu.Lock()
	c.maps[path]++
	c.mu.Unlock()
	c.Store.Map(path, l)
}

func (c *countingStore) count(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maps[path]
}

// failingStore refuses every write under the chats path
type failingStore struct {
	*graph.Store
}

func (f failingStore) Put(path string, n models.Node) error {
	if strings.HasPrefix(path, domain.PathChats) {
		return errors.New(`store unavailable`)
	}
	return f.Store.Put(path, n)
}

type chatRecorder struct {
	*sync.Mutex
	calls [][]models.ChatMessage
}

func (r *chatRecorder) listen(msgs []models.ChatMessage) {
	r.Lock()
	defer r.Unlock()
	r.calls = append(r.calls, msgs)
}

func (r *chatRecorder) count() int {
	r.Lock()
	defer r.Unlock()
	return len(r.calls)
}

func (r *chatRecorder) last() []models.ChatMessage {
	r.Lock()
	defer r.Unlock()
	if len(r.calls) == 0 {
		return nil
	}
	return r.calls[len(r.calls)-1]
}

type lobbyRecorder struct {
	*sync.Mutex
	calls [][]models.LobbyMessage
}

func (r *lobbyRecorder) listen(msgs []models.LobbyMessage) {
	r.Lock()
	defer r.Unlock()
	r.calls = append(r.calls, msgs)
}

func (r *lobbyRecorder) count() int {
	r.Lock()
	defer r.Unlock()
	return len(r.calls)
}

func (r *lobbyRecorder) last() []models.LobbyMessage {
	r.Lock()
	defer r.Unlock()
	return r.calls[len(r.calls)-1]
}

func TestPairwiseMessage(t *testing.T) {
	store := newTestStore(t)
	a, b := newNode(t, store, `alice`), newNode(t, store, `bob`)
	ctx := context.Background()

	sent, err := a.chat.SendMessage(ctx, b.id.PublicKey, `hello`)
	require.NoError(t, err)
	assert.Equal(t, `hello`, sent.Content)
	assert.True(t, sent.Encrypted)

	local := a.chat.Messages(b.id.PublicKey)
	require.Len(t, local, 1)
	assert.Equal(t, `hello`, local[0].Content)

	// the wire copy only carries ciphertext
	wire, err := store.Get(ctx, paths.ChatMessage(a.id.PublicKey, b.id.PublicKey, sent.Id))
	require.NoError(t, err)
	assert.NotEqual(t, `hello`, wire.Str(`content`))
	assert.True(t, wire.Bool(`encrypted`))

	var mu sync.Mutex
	var received []models.ChatMessage
	b.chat.SubscribeToChat(a.id.PublicKey, func(msgs []models.ChatMessage) {
		mu.Lock()
		defer mu.Unlock()
		received = msgs
	})
	store.Settle()

	mu.Lock()
	require.Len(t, received, 1)
	assert.Equal(t, `hello`, received[0].Content)
	assert.Equal(t, a.id.PublicKey, received[0].From)
	assert.Equal(t, `alice`, received[0].FromAlias)
	assert.Equal(t, sent.Id, received[0].Id)
	mu.Unlock()

	assert.Equal(t, paths.ConversationID(a.id.PublicKey, b.id.PublicKey), paths.ConversationID(b.id.PublicKey, a.id.PublicKey))

	// the sender's own echo is not added twice
	a.chat.SubscribeToChat(b.id.PublicKey, nil)
	store.Settle()
	assert.Len(t, a.chat.Messages(b.id.PublicKey), 1)

	reply, err := b.chat.SendMessage(ctx, a.id.PublicKey, `hi alice`)
	require.NoError(t, err)
	store.Settle()

	history := a.chat.Messages(b.id.PublicKey)
	require.Len(t, history, 2)
	assert.Equal(t, `hi alice`, history[1].Content)
	assert.Equal(t, reply.Id, history[1].Id)
}

func TestUndecryptableMessagesAreDropped(t *testing.T) {
	store := newTestStore(t)
	a, b := newNode(t, store, `alice`), newNode(t, store, `bob`)
	now := time.Now()

	put := func(id string, m models.ChatMessage) {
		m.Id, m.Timestamp = id, now
		require.NoError(t, store.Put(paths.ChatMessage(a.id.PublicKey, b.id.PublicKey, id), m.Node()))
	}

	put(`garbled`, models.ChatMessage{From: a.id.PublicKey, To: b.id.PublicKey, Content: `not a ciphertext`, Encrypted: true})
	put(`foreign`, models.ChatMessage{From: `mallory`, To: `trent`, Content: `secret`, Encrypted: true})
	put(`empty`, models.ChatMessage{From: a.id.PublicKey, To: b.id.PublicKey})
	put(`plain`, models.ChatMessage{From: a.id.PublicKey, To: b.id.PublicKey, Content: `in the clear`})

	b.chat.SubscribeToChat(a.id.PublicKey, nil)
	store.Settle()

	msgs := b.chat.Messages(a.id.PublicKey)
	require.Len(t, msgs, 1)
	assert.Equal(t, `plain`, msgs[0].Id)
	assert.Equal(t, `in the clear`, msgs[0].Content)
	assert.False(t, msgs[0].Encrypted)
}

func TestSendWithoutRecipientKey(t *testing.T) {
	store := newTestStore(t)
	a := newNode(t, store, `alice`)

	_, err := a.chat.SendMessage(context.Background(), `unknown-key`, `hello`)
	assert.ErrorIs(t, err, services.ErrNoEncryptionKey)
	assert.Empty(t, a.chat.Messages(`unknown-key`))
}

func TestOneSubscriptionPerConversation(t *testing.T) {
	store := newTestStore(t)
	a, b := newNode(t, store, `alice`), newNode(t, store, `bob`)
	counting := newCountingStore(store)
	chatA := NewService(counting, a.ids, log.NewLogger(false, ``))

	first := &chatRecorder{Mutex: &sync.Mutex{}}
	second := &chatRecorder{Mutex: &sync.Mutex{}}
	chatA.SubscribeToChat(b.id.PublicKey, first.listen)
	chatA.SubscribeToChat(b.id.PublicKey, second.listen)

	sent, err := b.chat.SendMessage(context.Background(), a.id.PublicKey, `hello`)
	require.NoError(t, err)

	// the same message delivered again
	path := paths.ChatMessage(b.id.PublicKey, a.id.PublicKey, sent.Id)
	wire, err := store.Get(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, store.Put(path, wire))
	store.Settle()

	assert.Equal(t, 1, counting.count(paths.Conversation(b.id.PublicKey, a.id.PublicKey)))
	assert.Equal(t, 1, first.count())
	assert.Equal(t, 1, second.count())
	require.Len(t, first.last(), 1)
	assert.Equal(t, first.last(), second.last())
	assert.Equal(t, `hello`, first.last()[0].Content)
}

func TestFailedWriteLeavesNoHistory(t *testing.T) {
	store := newTestStore(t)
	a, b := newNode(t, store, `alice`), newNode(t, store, `bob`)
	chatA := NewService(failingStore{Store: store}, a.ids, log.NewLogger(false, ``))

	r := &chatRecorder{Mutex: &sync.Mutex{}}
	chatA.SubscribeToChat(b.id.PublicKey, r.listen)

	_, err := chatA.SendMessage(context.Background(), b.id.PublicKey, `hello`)
	assert.Error(t, err)
	store.Settle()

	assert.Empty(t, chatA.Messages(b.id.PublicKey))
	assert.Equal(t, 0, r.count())
}

func TestRecipientKeyWithSeparator(t *testing.T) {
	store := newTestStore(t)
	a := newNode(t, store, `alice`)

	_, err := a.chat.SendMessage(context.Background(), `a/b`, `hello`)
	assert.Error(t, err)
	a.chat.SubscribeToChat(`a/b`, nil)()
	store.Settle()

	assert.Empty(t, store.Children(domain.PathChats))
}

func TestTamperedRecipientProfile(t *testing.T) {
	store := newTestStore(t)
	a, b, m := newNode(t, store, `alice`), newNode(t, store, `bob`), newNode(t, store, `mallory`)

	// mallory swaps bob's encryption key for her own
	require.NoError(t, store.Put(paths.User(b.id.PublicKey), models.Node{models.FieldEpub: m.id.EncPublicKey}))

	_, err := a.chat.SendMessage(context.Background(), b.id.PublicKey, `hello`)
	assert.ErrorIs(t, err, services.ErrNoEncryptionKey)
	assert.Empty(t, a.chat.Messages(b.id.PublicKey))
	assert.Empty(t, store.Children(domain.PathChats))
}

func TestSignedOut(t *testing.T) {
	store := newTestStore(t)
	a, b := newNode(t, store, `alice`), newNode(t, store, `bob`)
	a.ids.SignOut()

	_, err := a.chat.SendMessage(context.Background(), b.id.PublicKey, `hello`)
	assert.ErrorIs(t, err, services.ErrNoSession)
	assert.ErrorIs(t, a.chat.SendLobbyMessage(`hello`), services.ErrNoSession)
	assert.Nil(t, a.chat.Messages(b.id.PublicKey))

	a.chat.SubscribeToChat(b.id.PublicKey, nil)()
}

func TestLobbyHistoryIsBounded(t *testing.T) {
	store := newTestStore(t)
	a := newNode(t, store, `alice`)
	base := time.UnixMilli(1700000000000)

	for i := 0; i <= domain.LobbyHistoryLimit; i++ {
		msg := models.LobbyMessage{
			Id:        fmt.Sprintf(`m%03d`, i),
			From:      a.id.PublicKey,
			Alias:     `alice`,
			Text:      fmt.Sprintf(`message %d`, i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, store.Put(paths.LobbyMessage(msg.Id), msg.Node()))
	}

	a.chat.SubscribeToLobby(nil)
	store.Settle()

	msgs := a.chat.LobbyMessages()
	require.Len(t, msgs, domain.LobbyHistoryLimit)
	assert.Equal(t, `m001`, msgs[0].Id)
	assert.Equal(t, `m100`, msgs[len(msgs)-1].Id)

	// older than everything retained
	late := models.LobbyMessage{Id: `late`, Text: `late`, Timestamp: base.Add(-time.Hour)}
	require.NoError(t, store.Put(paths.LobbyMessage(late.Id), late.Node()))
	store.Settle()
	assert.Equal(t, `m001`, a.chat.LobbyMessages()[0].Id)
}

func TestLobbyDeduplication(t *testing.T) {
	store := newTestStore(t)
	a := newNode(t, store, `alice`)
	r := &lobbyRecorder{Mutex: &sync.Mutex{}}

	a.chat.SubscribeToLobby(r.listen)
	store.Settle()
	assert.Equal(t, 1, r.count())
	assert.Empty(t, r.last())

	msg := models.LobbyMessage{Id: `dup`, Text: `hello`, Timestamp: time.Now()}
	require.NoError(t, store.Put(paths.LobbyMessage(msg.Id), msg.Node()))
	require.NoError(t, store.Put(paths.LobbyMessage(msg.Id), msg.Node()))
	require.NoError(t, store.Put(paths.LobbyMessage(`blank`), models.Node{`alias`: `x`}))
	store.Settle()

	assert.Equal(t, 2, r.count())
	require.Len(t, r.last(), 1)
	assert.Equal(t, `Anonymous`, r.last()[0].Alias)
}

func TestLobbySend(t *testing.T) {
	store := newTestStore(t)
	a, b := newNode(t, store, `alice`), newNode(t, store, `bob`)

	b.chat.SubscribeToLobby(nil)
	require.NoError(t, a.chat.SendLobbyMessage(`first`))
	require.NoError(t, a.chat.SendLobbyMessage(`second`))
	assert.Error(t, a.chat.SendLobbyMessage(`  `))
	store.Settle()

	msgs := b.chat.LobbyMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, `first`, msgs[0].Text)
	assert.Equal(t, `second`, msgs[1].Text)
	assert.Equal(t, `alice`, msgs[0].Alias)
	assert.Equal(t, a.id.PublicKey, msgs[0].From)
	assert.Less(t, msgs[0].Id, msgs[1].Id)

	// a late listener starts from the current history
	r := &lobbyRecorder{Mutex: &sync.Mutex{}}
	cancel := b.chat.SubscribeToLobby(r.listen)
	store.Settle()
	assert.Len(t, r.last(), 2)

	cancel()
	require.NoError(t, a.chat.SendLobbyMessage(`third`))
	store.Settle()
	assert.Equal(t, 1, r.count())
	assert.Len(t, b.chat.LobbyMessages(), 3)
}
