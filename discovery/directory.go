// Package discovery keeps the directory of relays and peers announced on
// the network. Records are never evicted, every read filters them by the
// time elapsed since their last announcement.
package discovery

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/YasiruR/mule-sync/domain"
	"github.com/YasiruR/mule-sync/domain/models"
	"github.com/YasiruR/mule-sync/domain/services"
	"github.com/YasiruR/mule-sync/graph/paths"
	"github.com/YasiruR/mule-sync/internal/listeners"
	"github.com/tryfix/log"
)

type Directory struct {
	store      services.GraphStore
	announcers []services.PeerAnnouncer
	relays     map[string]models.PeerRecord
	peers      map[string]models.PeerRecord
	bootstrap  []string
	interval   time.Duration
	subscribed bool
	stopChan   chan struct{} // nil while idle
	watchers   *listeners.Set[[]models.PeerRecord]
	now        func() time.Time
	log        log.Logger
	*sync.RWMutex
}

// NewDirectory creates an idle directory. Every announcer writes its own
// presence record on each announcement round.
func NewDirectory(store services.GraphStore, bootstrap []string, interval time.Duration, l log.Logger, announcers ...services.PeerAnnouncer) *Directory {
	if interval <= 0 {
		interval = domain.AnnounceTicker
	}

	return &Directory{
		store:      store,
		announcers: announcers,
		relays:     map[string]models.PeerRecord{},
		peers:      map[string]models.PeerRecord{},
		bootstrap:  append([]string{}, bootstrap...),
		interval:   interval,
		watchers:   listeners.New[[]models.PeerRecord](),
		now:        time.Now,
		log:        l,
		RWMutex:    &sync.RWMutex{},
	}
}

// StartDiscovery announces this node, schedules the periodic
// re-announcement and opens the directory subscriptions. Calling it while
// discovering has no effect.
func (d *Directory) StartDiscovery() {
	d.Lock()
	if d.stopChan != nil {
		d.Unlock()
		return
	}
	stop := make(chan struct{})
	d.stopChan = stop
	subscribe := !d.subscribed
	d.subscribed = true
	bootstrap := append([]string{}, d.bootstrap...)
	d.Unlock()

	d.log.Info(`starting peer discovery`)
	d.announce()
	go d.reannounce(stop)

	if !subscribe {
		return
	}

	for _, p := range bootstrap {
		if err := d.store.AddPeer(p); err != nil {
			d.log.Error(fmt.Sprintf(`adding bootstrap peer %s failed - %v`, p, err))
		}
	}

	// store subscriptions live as long as the process
	d.store.Map(domain.PathRelays, d.handleRelay)
	d.store.Map(domain.PathPeers, d.handlePeer)
}

func (d *Directory) StopDiscovery() {
	d.Lock()
	defer d.Unlock()
	if d.stopChan == nil {
		return
	}

	close(d.stopChan)
	d.stopChan = nil
	d.log.Info(`stopped peer discovery`)
}

func (d *Directory) Discovering() bool {
	d.RLock()
	defer d.RUnlock()
	return d.stopChan != nil
}

// Refresh announces this node on demand without touching the schedule
func (d *Directory) Refresh() {
	d.announce()
}

func (d *Directory) reannounce(stop chan struct{}) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.announce()
		case <-stop:
			return
		}
	}
}

func (d *Directory) announce() {
	for _, a := range d.announcers {
		if err := a.AnnounceAsPeer(); err != nil {
			d.log.Warn(fmt.Sprintf(`announcing presence failed - %v`, err))
			continue
		}
	}
	d.log.Trace(`announced presence on network`)
}

func (d *Directory) handleRelay(pubKey string, n models.Node) {
	rec, ok := models.ParseRelay(pubKey, n, d.now())
	if !ok {
		return
	}

	rec.Endpoint = paths.RelayBase(rec.Endpoint)
	rec.CatalogURL = paths.CatalogURL(rec.Endpoint)

	d.Lock()
	d.relays[pubKey] = rec
	d.Unlock()

	d.register(paths.StorePeer(rec.Endpoint), true)
	if rec.StoreEndpoint != `` {
		d.register(rec.StoreEndpoint, false)
	}

	d.log.Debug(fmt.Sprintf(`discovered relay %s (%s)`, rec.Alias, rec.Endpoint))
	d.notify()
}

func (d *Directory) handlePeer(pubKey string, n models.Node) {
	rec, ok := models.ParsePeer(pubKey, n, d.now())
	if !ok {
		return
	}

	d.Lock()
	d.peers[pubKey] = rec
	d.Unlock()

	d.log.Debug(fmt.Sprintf(`discovered peer %s`, rec.Alias))
	d.notify()
}

// register adds a store peer at most once. Only HTTP store peers are
// tracked in the bootstrap list since it also feeds the catalog pulls.
func (d *Directory) register(endpoint string, track bool) {
	d.Lock()
	if track {
		for _, p := range d.bootstrap {
			if p == endpoint {
				d.Unlock()
				return
			}
		}
		d.bootstrap = append(d.bootstrap, endpoint)
	}
	d.Unlock()

	if err := d.store.AddPeer(endpoint); err != nil {
		d.log.Error(fmt.Sprintf(`adding store peer %s failed - %v`, endpoint, err))
	}
}

func (d *Directory) notify() {
	d.watchers.Notify(d.Relays())
}

// Subscribe registers a listener of the fresh relay list
func (d *Directory) Subscribe(fn func(relays []models.PeerRecord)) (cancel func()) {
	return d.watchers.Add(fn)
}

func (d *Directory) Relays() []models.PeerRecord {
	d.RLock()
	defer d.RUnlock()
	return fresh(d.now(), domain.RelayWindow, d.relays)
}

func (d *Directory) Peers() []models.PeerRecord {
	d.RLock()
	defer d.RUnlock()
	return fresh(d.now(), domain.PeerWindow, d.peers)
}

// AllContacts unions relays and peers under the relay window. A peer
// record shadows a relay record announced under the same key.
func (d *Directory) AllContacts() []models.PeerRecord {
	d.RLock()
	defer d.RUnlock()

	all := make(map[string]models.PeerRecord, len(d.relays)+len(d.peers))
	for k, r := range d.relays {
		all[k] = r
	}
	for k, p := range d.peers {
		all[k] = p
	}

	return fresh(d.now(), domain.RelayWindow, all)
}

func (d *Directory) BootstrapPeers() []string {
	d.RLock()
	defer d.RUnlock()
	return append([]string{}, d.bootstrap...)
}

// fresh returns the records seen within the window, most recent first
func fresh(now time.Time, window time.Duration, table map[string]models.PeerRecord) []models.PeerRecord {
	res := make([]models.PeerRecord, 0, len(table))
	for _, r := range table {
		if r.Fresh(now, window) {
			res = append(res, r)
		}
	}

	sort.SliceStable(res, func(i, j int) bool {
		if !res[i].LastSeen.Equal(res[j].LastSeen) {
			return res[i].LastSeen.After(res[j].LastSeen)
		}
		return res[i].PublicKey < res[j].PublicKey
	})
	return res
}
