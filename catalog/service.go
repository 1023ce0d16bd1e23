// Package catalog publishes this node's shared items to the network and
// keeps a projection of every item published by others.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/YasiruR/mule-sync/crypto"
	"github.com/YasiruR/mule-sync/domain"
	"github.com/YasiruR/mule-sync/domain/models"
	"github.com/YasiruR/mule-sync/domain/services"
	"github.com/YasiruR/mule-sync/graph/paths"
	"github.com/YasiruR/mule-sync/internal/listeners"
	"github.com/tryfix/log"
)

var (
	ErrNoMirror       = errors.New(`catalog mirror not found`)
	ErrUnsignedMirror = errors.New(`catalog mirror is not signed by its publisher`)
)

type Service struct {
	store      services.GraphStore
	ids        services.IdentityAdapter
	local      map[string]models.CatalogEntry // items shared by this node
	network    map[string]models.CatalogEntry // projection of the torrents path
	subscribed bool
	onUpdate   func(entries []models.CatalogEntry)
	watchers   *listeners.Set[[]models.CatalogEntry]
	now        func() time.Time
	log        log.Logger
	*sync.RWMutex
}

func NewService(store services.GraphStore, ids services.IdentityAdapter, l log.Logger) *Service {
	return &Service{
		store:    store,
		ids:      ids,
		local:    map[string]models.CatalogEntry{},
		network:  map[string]models.CatalogEntry{},
		watchers: listeners.New[[]models.CatalogEntry](),
		now:      time.Now,
		log:      l,
		RWMutex:  &sync.RWMutex{},
	}
}

// Publish writes the entry under the torrents path attributed to the
// current identity, indexes its keywords and mirrors it in the user's own
// namespace. Publishing an already published item overwrites it.
func (s *Service) Publish(entry models.CatalogEntry) error {
	id, ok := s.ids.Current()
	if !ok {
		s.log.Warn(`cannot publish - not signed in`)
		return services.ErrNoSession
	}

	if entry.InfoHash == `` || entry.Name == `` || entry.MagnetURI == `` {
		return fmt.Errorf(`entry requires an info hash, a name and a magnet uri`)
	}

	if !paths.ValidKey(entry.InfoHash) {
		return fmt.Errorf(`invalid info hash %q`, entry.InfoHash)
	}

	entry.SharedBy = id.PublicKey
	entry.SharedByAlias = id.Alias
	entry.SharedAt = s.now()
	entry.RelayURL = ``

	if err := s.store.Put(paths.Torrent(entry.InfoHash), entry.Node()); err != nil {
		return fmt.Errorf(`writing catalog entry failed - %v`, err)
	}

	s.Lock()
	s.local[entry.InfoHash] = entry
	s.Unlock()

	for _, kw := range Keywords(entry.Name) {
		if err := s.store.Put(paths.Keyword(kw), models.Node{entry.InfoHash: true}); err != nil {
			s.log.Error(fmt.Sprintf(`indexing keyword %s failed - %v`, kw, err))
		}
	}

	s.mirror(id, entry)

	s.log.Info(fmt.Sprintf(`published %s to network`, entry.Name))
	return nil
}

// mirror writes the signed copy of entry into the publisher's namespace
func (s *Service) mirror(id models.Identity, entry models.CatalogEntry) {
	sig, err := s.ids.Sign(entry.MirrorPayload())
	if err != nil {
		s.log.Error(fmt.Sprintf(`signing catalog mirror of %s failed - %v`, entry.InfoHash, err))
		return
	}

	if err = s.store.Put(paths.UserCatalogItem(id.PublicKey, entry.InfoHash), entry.MirrorNode(sig)); err != nil {
		s.log.Error(fmt.Sprintf(`mirroring catalog entry failed - %v`, err))
	}
}

// Mirror reads the copy of an item kept in the namespace of its publisher
// and accepts it only when the publisher's signature holds
func (s *Service) Mirror(ctx context.Context, pubKey, infoHash string) (models.CatalogEntry, error) {
	if !paths.ValidKey(pubKey) || !paths.ValidKey(infoHash) {
		return models.CatalogEntry{}, fmt.Errorf(`invalid mirror key %s/%s`, pubKey, infoHash)
	}

	n, err := s.store.Get(ctx, paths.UserCatalogItem(pubKey, infoHash))
	if err != nil {
		return models.CatalogEntry{}, fmt.Errorf(`reading catalog mirror failed - %v`, err)
	}

	entry, sig, ok := models.ParseMirror(pubKey, infoHash, n)
	if !ok {
		return models.CatalogEntry{}, ErrNoMirror
	}

	if !crypto.Verify(pubKey, entry.MirrorPayload(), sig) {
		s.log.Warn(fmt.Sprintf(`rejected catalog mirror %s of %s with an invalid signature`, infoHash, pubKey))
		return models.CatalogEntry{}, ErrUnsignedMirror
	}

	return entry, nil
}

// Unpublish tombstones the entry and its mirror. Index pointers are left
// behind, readers validate them against the live catalog.
func (s *Service) Unpublish(infoHash string) error {
	if !paths.ValidKey(infoHash) {
		return fmt.Errorf(`invalid info hash %q`, infoHash)
	}

	s.Lock()
	delete(s.local, infoHash)
	s.Unlock()

	if err := s.store.Put(paths.Torrent(infoHash), nil); err != nil {
		return fmt.Errorf(`removing catalog entry failed - %v`, err)
	}

	if id, ok := s.ids.Current(); ok {
		if err := s.store.Put(paths.UserCatalogItem(id.PublicKey, infoHash), nil); err != nil {
			s.log.Error(fmt.Sprintf(`removing catalog mirror failed - %v`, err))
		}
	}

	s.log.Info(fmt.Sprintf(`unpublished %s from network`, infoHash))
	return nil
}

// SubscribeToNetwork opens the subscription on the torrents path once,
// later calls are ignored
func (s *Service) SubscribeToNetwork(onUpdate func(entries []models.CatalogEntry)) {
	s.Lock()
	if s.subscribed {
		s.Unlock()
		return
	}
	s.subscribed = true
	s.onUpdate = onUpdate
	s.Unlock()

	s.store.Map(domain.PathTorrents, s.handle)
	s.log.Debug(`subscribed to network catalog`)
}

func (s *Service) handle(infoHash string, n models.Node) {
	if n == nil {
		s.Lock()
		_, ok := s.network[infoHash]
		delete(s.network, infoHash)
		s.Unlock()
		if ok {
			s.notify()
		}
		return
	}

	entry, ok := models.ParseCatalogEntry(infoHash, n)
	if !ok {
		s.log.Trace(fmt.Sprintf(`dropped malformed catalog entry %s`, infoHash))
		return
	}

	s.Lock()
	s.network[infoHash] = entry
	s.Unlock()
	s.notify()
}

func (s *Service) notify() {
	entries := s.NetworkEntries()
	s.RLock()
	fn := s.onUpdate
	s.RUnlock()

	if fn != nil {
		fn(entries)
	}
	s.watchers.Notify(entries)
}

// Watch registers an additional observer of the network projection
func (s *Service) Watch(fn func(entries []models.CatalogEntry)) (cancel func()) {
	return s.watchers.Add(fn)
}

// Search matches the query against the names in the network projection
func (s *Service) Search(query string) []models.CatalogEntry {
	q := strings.ToLower(strings.TrimSpace(query))
	var res []models.CatalogEntry
	for _, e := range s.NetworkEntries() {
		if strings.Contains(strings.ToLower(e.Name), q) {
			res = append(res, e)
		}
	}
	return res
}

// SearchIndex resolves a keyword through the network index. Pointers to
// entries that are no longer in the catalog are skipped.
func (s *Service) SearchIndex(ctx context.Context, keyword string) ([]models.CatalogEntry, error) {
	idx, err := s.store.Get(ctx, paths.Keyword(strings.ToLower(keyword)))
	if err != nil {
		return nil, fmt.Errorf(`reading keyword index failed - %v`, err)
	}

	var res []models.CatalogEntry
	for infoHash := range idx {
		if !idx.Bool(infoHash) {
			continue
		}

		n, err := s.store.Get(ctx, paths.Torrent(infoHash))
		if err != nil {
			return nil, fmt.Errorf(`reading catalog entry %s failed - %v`, infoHash, err)
		}

		if entry, ok := models.ParseCatalogEntry(infoHash, n); ok {
			res = append(res, entry)
		}
	}

	sortEntries(res)
	return res, nil
}

func (s *Service) NetworkEntries() []models.CatalogEntry {
	s.RLock()
	defer s.RUnlock()
	return values(s.network)
}

func (s *Service) LocalEntries() []models.CatalogEntry {
	s.RLock()
	defer s.RUnlock()
	return values(s.local)
}

func (s *Service) LocalCount() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.local)
}

// AnnounceAsPeer writes this node's presence with the number of items it shares
func (s *Service) AnnounceAsPeer() error {
	id, ok := s.ids.Current()
	if !ok {
		return services.ErrNoSession
	}

	if err := s.store.Put(paths.Peer(id.PublicKey), models.AnnouncementNode(id.Alias, s.now(), s.LocalCount())); err != nil {
		return fmt.Errorf(`announcing peer failed - %v`, err)
	}

	return nil
}

func values(m map[string]models.CatalogEntry) []models.CatalogEntry {
	res := make([]models.CatalogEntry, 0, len(m))
	for _, e := range m {
		res = append(res, e)
	}
	sortEntries(res)
	return res
}

// sortEntries orders by recency, newest first
func sortEntries(entries []models.CatalogEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].SharedAt.Equal(entries[j].SharedAt) {
			return entries[i].SharedAt.After(entries[j].SharedAt)
		}
		return entries[i].InfoHash < entries[j].InfoHash
	})
}
