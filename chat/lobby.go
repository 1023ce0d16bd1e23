package chat

import (
	"fmt"
	"sort"
	"strings"

	"github.com/YasiruR/mule-sync/domain"
	"github.com/YasiruR/mule-sync/domain/models"
	"github.com/YasiruR/mule-sync/domain/services"
	"github.com/YasiruR/mule-sync/graph/paths"
)

// SendLobbyMessage broadcasts text to everyone on the lobby
func (s *Service) SendLobbyMessage(text string) error {
	id, ok := s.ids.Current()
	if !ok {
		s.log.Warn(`cannot send lobby message - not signed in`)
		return services.ErrNoSession
	}

	if strings.TrimSpace(text) == `` {
		return fmt.Errorf(`empty lobby message`)
	}

	msg := models.LobbyMessage{
		Id:        s.newId(),
		From:      id.PublicKey,
		Alias:     id.Alias,
		Text:      text,
		Timestamp: s.now(),
	}

	if err := s.store.Put(paths.LobbyMessage(msg.Id), msg.Node()); err != nil {
		return fmt.Errorf(`writing lobby message failed - %v`, err)
	}

	return nil
}

// SubscribeToLobby registers fn and queues a call with the current history
// behind the pending deliveries, so fn never sees an older history after a
// newer one. The lobby subscription itself is opened only once.
func (s *Service) SubscribeToLobby(fn func(msgs []models.LobbyMessage)) (cancel func()) {
	cancel = s.lobbyWatchers.Add(fn)

	s.Lock()
	open := !s.lobbySubscribed
	s.lobbySubscribed = true
	s.Unlock()

	if open {
		s.store.Map(domain.PathLobby, s.handleLobby)
		s.log.Debug(`subscribed to lobby`)
	}

	if fn != nil {
		s.store.Defer(func() { fn(s.LobbyMessages()) })
	}
	return cancel
}

func (s *Service) LobbyMessages() []models.LobbyMessage {
	s.RLock()
	defer s.RUnlock()
	return append([]models.LobbyMessage{}, s.lobby...)
}

func (s *Service) handleLobby(id string, n models.Node) {
	msg, ok := models.ParseLobbyMessage(id, n)
	if !ok {
		return
	}

	if !s.insertLobby(msg) {
		return
	}

	s.lobbyWatchers.Notify(s.LobbyMessages())
}

// insertLobby keeps the history sorted and bounded. A message that is
// known or would fall off the bounded history right away is ignored.
func (s *Service) insertLobby(msg models.LobbyMessage) bool {
	s.Lock()
	defer s.Unlock()

	for _, m := range s.lobby {
		if m.Id == msg.Id {
			return false
		}
	}

	if len(s.lobby) >= domain.LobbyHistoryLimit && !before(s.lobby[0], msg) {
		return false
	}

	s.lobby = append(s.lobby, msg)
	sort.SliceStable(s.lobby, func(i, j int) bool {
		return before(s.lobby[i], s.lobby[j])
	})

	if over := len(s.lobby) - domain.LobbyHistoryLimit; over > 0 {
		s.lobby = append([]models.LobbyMessage{}, s.lobby[over:]...)
	}

	return true
}

func before(a, b models.LobbyMessage) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.Id < b.Id
}
