// Package merge combines the live network catalog with snapshots pulled
// from relay catalog endpoints into one view without duplicates.
package merge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/YasiruR/mule-sync/domain"
	"github.com/YasiruR/mule-sync/domain/messages"
	"github.com/YasiruR/mule-sync/domain/models"
	"github.com/YasiruR/mule-sync/domain/services"
	"github.com/YasiruR/mule-sync/graph/paths"
	"github.com/YasiruR/mule-sync/internal/listeners"
	"github.com/tryfix/log"
	"golang.org/x/sync/errgroup"
)

const maxCatalogBytes = 16 << 20

// projection is the part of the catalog service the merger reads
type projection interface {
	NetworkEntries() []models.CatalogEntry
	Watch(fn func(entries []models.CatalogEntry)) (cancel func())
}

type Merger struct {
	catalog  projection
	sources  services.EndpointSource
	client   *http.Client
	timeout  time.Duration
	pulled   map[string]models.CatalogEntry // first pull wins, kept across passes
	order    []string
	watchers *listeners.Set[[]models.CatalogEntry]
	cancel   func()
	now      func() time.Time
	log      log.Logger
	*sync.RWMutex
}

func NewMerger(catalog projection, sources services.EndpointSource, timeout time.Duration, l log.Logger) *Merger {
	if timeout <= 0 {
		timeout = domain.PullTimeout
	}

	m := &Merger{
		catalog:  catalog,
		sources:  sources,
		client:   &http.Client{Timeout: timeout},
		timeout:  timeout,
		pulled:   map[string]models.CatalogEntry{},
		watchers: listeners.New[[]models.CatalogEntry](),
		now:      time.Now,
		log:      l,
		RWMutex:  &sync.RWMutex{},
	}

	// push updates change the merged view as well
	m.cancel = catalog.Watch(func([]models.CatalogEntry) { m.notify() })
	return m
}

// Merge pulls every known relay catalog concurrently and returns the
// merged view. A failing relay contributes nothing.
func (m *Merger) Merge(ctx context.Context) []models.CatalogEntry {
	bases := m.endpoints()
	grp, ctx := errgroup.WithContext(ctx)
	grp.SetLimit(domain.MaxParallelPulls)

	for _, base := range bases {
		base := base
		grp.Go(func() error {
			entries, err := m.pull(ctx, base)
			if err != nil {
				// never cancel the sibling pulls
				m.log.Warn(fmt.Sprintf(`pulling catalog from %s failed - %v`, base, err))
				return nil
			}
			m.admit(entries)
			return nil
		})
	}

	_ = grp.Wait()
	m.log.Debug(fmt.Sprintf(`merged catalogs of %d relays`, len(bases)))

	view := m.View()
	m.watchers.Notify(view)
	return view
}

// endpoints is the union of the bootstrap store peers and the discovered
// relays reduced to distinct base addresses
func (m *Merger) endpoints() []string {
	var raw []string
	raw = append(raw, m.sources.BootstrapPeers()...)
	for _, r := range m.sources.Relays() {
		raw = append(raw, r.Endpoint)
	}

	seen := map[string]struct{}{}
	var bases []string
	for _, e := range raw {
		b := paths.RelayBase(e)
		if b == `` {
			continue
		}
		if _, ok := seen[b]; ok {
			continue
		}
		seen[b] = struct{}{}
		bases = append(bases, b)
	}

	return bases
}

func (m *Merger) pull(ctx context.Context, base string) ([]models.CatalogEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+domain.CatalogEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf(`creating request failed - %v`, err)
	}
	req.Header.Set(`Accept`, `application/json`)

	res, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf(`request failed - %v`, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf(`unexpected status %d`, res.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(res.Body, maxCatalogBytes))
	if err != nil {
		return nil, fmt.Errorf(`reading response failed - %v`, err)
	}

	var cr messages.CatalogResponse
	if err = json.Unmarshal(data, &cr); err != nil {
		return nil, fmt.Errorf(`unmarshalling catalog failed - %v`, err)
	}

	if !cr.Success {
		return nil, fmt.Errorf(`relay reported failure (%s)`, cr.Error)
	}

	return m.entries(base, cr), nil
}

// entries narrows the relay items, dropping the ones missing an id, a name
// or a magnet uri
func (m *Merger) entries(base string, cr messages.CatalogResponse) []models.CatalogEntry {
	sharedBy := cr.RelayPubKey
	if sharedBy == `` {
		sharedBy = `unknown`
	}

	var res []models.CatalogEntry
	for _, item := range cr.Catalog {
		e := models.CatalogEntry{
			InfoHash:  item.Id(),
			Name:      item.DisplayName(),
			MagnetURI: item.Magnet(),
			Size:      item.TotalSize(),
			Files:     len(item.Files),
			SharedBy:  sharedBy,
			SharedAt:  item.Completed(m.now()),
			RelayURL:  base,
		}

		if e.InfoHash == `` || e.Name == `` || e.MagnetURI == `` {
			m.log.Trace(fmt.Sprintf(`dropped malformed catalog item from %s`, base))
			continue
		}
		res = append(res, e)
	}

	return res
}

func (m *Merger) admit(entries []models.CatalogEntry) {
	m.Lock()
	defer m.Unlock()
	for _, e := range entries {
		if _, ok := m.pulled[e.InfoHash]; ok {
			continue
		}
		m.pulled[e.InfoHash] = e
		m.order = append(m.order, e.InfoHash)
	}
}

// View lists the push projection followed by the pulled entries it does
// not already carry
func (m *Merger) View() []models.CatalogEntry {
	pushed := m.catalog.NetworkEntries()
	seen := make(map[string]struct{}, len(pushed))
	view := make([]models.CatalogEntry, 0, len(pushed))
	for _, e := range pushed {
		seen[e.InfoHash] = struct{}{}
		view = append(view, e)
	}

	m.RLock()
	defer m.RUnlock()
	for _, id := range m.order {
		if _, ok := seen[id]; ok {
			continue
		}
		view = append(view, m.pulled[id])
	}

	return view
}

func (m *Merger) Subscribe(fn func(entries []models.CatalogEntry)) (cancel func()) {
	return m.watchers.Add(fn)
}

func (m *Merger) notify() {
	m.watchers.Notify(m.View())
}

// Close detaches the merger from the catalog projection
func (m *Merger) Close() {
	m.cancel()
}
