package discovery

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/YasiruR/mule-sync/domain"
	"github.com/YasiruR/mule-sync/domain/models"
	"github.com/YasiruR/mule-sync/domain/services"
	"github.com/YasiruR/mule-sync/graph"
	"github.com/YasiruR/mule-sync/graph/paths"
	"github.com/YasiruR/mule-sync/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingAnnouncer struct {
	calls int32
	err   error
}

func (c *countingAnnouncer) AnnounceAsPeer() error {
	atomic.AddInt32(&c.calls, 1)
	return c.err
}

func (c *countingAnnouncer) count() int {
	return int(atomic.LoadInt32(&c.calls))
}

var testNow = time.UnixMilli(1700000000000)

func newTestDirectory(t *testing.T, interval time.Duration, bootstrap []string, announcers ...*countingAnnouncer) (*Directory, *graph.Store) {
	store := graph.NewStore(log.NewLogger(false, ``))
	t.Cleanup(store.Close)

	var as []services.PeerAnnouncer
	for _, a := range announcers {
		as = append(as, a)
	}

	d := NewDirectory(store, bootstrap, interval, log.NewLogger(false, ``), as...)
	d.now = func() time.Time { return testNow }
	t.Cleanup(d.StopDiscovery)
	return d, store
}

func ago(d time.Duration) int64 {
	return models.Millis(testNow.Add(-d))
}

func TestStartIsReentrant(t *testing.T) {
	a := &countingAnnouncer{}
	d, _ := newTestDirectory(t, time.Hour, nil, a)

	d.StartDiscovery()
	d.StartDiscovery()
	assert.True(t, d.Discovering())
	assert.Equal(t, 1, a.count())

	d.Refresh()
	assert.Equal(t, 2, a.count())

	d.StopDiscovery()
	d.StopDiscovery()
	assert.False(t, d.Discovering())

	d.StartDiscovery()
	assert.Equal(t, 3, a.count())
}

func TestPeriodicAnnouncement(t *testing.T) {
	a := &countingAnnouncer{}
	failing := &countingAnnouncer{err: errors.New(`no session`)}
	d, _ := newTestDirectory(t, 10*time.Millisecond, nil, a, failing)

	d.StartDiscovery()
	require.Eventually(t, func() bool { return a.count() >= 3 }, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, failing.count(), 3)

	d.StopDiscovery()
	stopped := a.count()
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, a.count(), stopped+1)
}

func TestRelayDiscovery(t *testing.T) {
	boot := []string{`https://boot.example.org/gun`}
	d, store := newTestDirectory(t, time.Hour, boot)

	var mu sync.Mutex
	var notified [][]models.PeerRecord
	d.Subscribe(func(relays []models.PeerRecord) {
		mu.Lock()
		defer mu.Unlock()
		notified = append(notified, relays)
	})

	require.NoError(t, store.Put(paths.Relay(`r1`), models.Node{
		`endpoint`:      `relay-one.example.org/`,
		`alias`:         `one`,
		`lastSeen`:      ago(time.Hour),
		`torrentsCount`: 4,
	}))
	require.NoError(t, store.Put(paths.Relay(`r2`), models.Node{
		`publicUrl`:      `https://relay-two.example.org`,
		`name`:           `two`,
		`lastSeen`:       ago(time.Minute),
		`activeTorrents`: 9,
		`storeEndpoint`:  `tcp://10.0.0.2:7000`,
	}))
	require.NoError(t, store.Put(paths.Relay(`r3`), models.Node{`alias`: `no endpoint`}))
	require.NoError(t, store.Put(paths.Relay(`r4`), models.Node{
		`host`:     `relay-stale.example.org`,
		`lastSeen`: ago(25 * time.Hour),
	}))

	d.StartDiscovery()
	store.Settle()

	relays := d.Relays()
	require.Len(t, relays, 2)
	assert.Equal(t, `r2`, relays[0].PublicKey)
	assert.Equal(t, `two`, relays[0].Alias)
	assert.Equal(t, 9, relays[0].ItemCount)
	assert.Equal(t, `r1`, relays[1].PublicKey)
	assert.Equal(t, `https://relay-one.example.org`, relays[1].Endpoint)
	assert.Equal(t, `https://relay-one.example.org/api/v1/torrent/catalog`, relays[1].CatalogURL)
	assert.Equal(t, models.RoleRelay, relays[1].Role)

	// stale records stay in the table and every endpoint is registered once
	assert.Equal(t, []string{
		`https://boot.example.org/gun`,
		`https://relay-one.example.org/gun`,
		`https://relay-two.example.org/gun`,
		`https://relay-stale.example.org/gun`,
	}, d.BootstrapPeers())
	assert.ElementsMatch(t, []string{
		`https://boot.example.org/gun`,
		`https://relay-one.example.org/gun`,
		`https://relay-two.example.org/gun`,
		`tcp://10.0.0.2:7000`,
		`https://relay-stale.example.org/gun`,
	}, store.Peers())

	mu.Lock()
	require.Len(t, notified, 3)
	assert.Len(t, notified[2], 2)
	mu.Unlock()

	// redelivery of a known relay does not register it again
	require.NoError(t, store.Put(paths.Relay(`r1`), models.Node{`lastSeen`: ago(time.Second)}))
	store.Settle()
	assert.Len(t, d.BootstrapPeers(), 4)
	assert.Equal(t, `r1`, d.Relays()[0].PublicKey)
}

func TestPeerFreshness(t *testing.T) {
	d, store := newTestDirectory(t, time.Hour, nil)
	d.StartDiscovery()

	require.NoError(t, store.Put(paths.Peer(`p1`), models.AnnouncementNode(`fresh`, testNow.Add(-10*time.Minute), 2)))
	require.NoError(t, store.Put(paths.Peer(`p2`), models.AnnouncementNode(`older`, testNow.Add(-2*time.Hour), 0)))
	require.NoError(t, store.Put(paths.Peer(`p3`), models.Node{`lastSeen`: ago(time.Minute)}))
	require.NoError(t, store.Put(paths.Peer(`p4`), models.Node{`alias`: `legacy`, `type`: `mule`, `lastSeen`: ago(time.Minute)}))
	require.NoError(t, store.Put(paths.Relay(`r1`), models.Node{`endpoint`: `r.example.org`, `lastSeen`: ago(20 * time.Hour)}))
	store.Settle()

	peers := d.Peers()
	require.Len(t, peers, 2)
	assert.Equal(t, `p4`, peers[0].PublicKey)
	assert.Equal(t, models.RolePeer, peers[0].Role)
	assert.Equal(t, `p1`, peers[1].PublicKey)
	assert.Equal(t, 2, peers[1].ItemCount)

	var keys []string
	for _, c := range d.AllContacts() {
		keys = append(keys, c.PublicKey)
	}
	assert.Equal(t, []string{`p4`, `p1`, `p2`, `r1`}, keys)

	// time passing alone moves records out of the views
	d.now = func() time.Time { return testNow.Add(55 * time.Minute) }
	assert.Len(t, d.Peers(), 1)
	d.now = func() time.Time { return testNow.Add(domain.RelayWindow) }
	assert.Empty(t, d.Peers())
	assert.Empty(t, d.Relays())
	assert.Empty(t, d.AllContacts())
}

func TestUnsubscribe(t *testing.T) {
	d, store := newTestDirectory(t, time.Hour, nil)
	calls := int32(0)
	cancel := d.Subscribe(func([]models.PeerRecord) { atomic.AddInt32(&calls, 1) })
	d.StartDiscovery()

	require.NoError(t, store.Put(paths.Peer(`p1`), models.AnnouncementNode(`a`, testNow, 0)))
	store.Settle()
	cancel()
	require.NoError(t, store.Put(paths.Peer(`p2`), models.AnnouncementNode(`b`, testNow, 0)))
	store.Settle()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
