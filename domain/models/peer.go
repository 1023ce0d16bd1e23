package models

import (
	"strings"
	"time"
)

type Role string

const (
	RoleRelay Role = `relay`
	RolePeer  Role = `peer`
)

// PeerRecord describes a relay or an ordinary peer as last announced.
// Records are never deleted, readers filter them by LastSeen.
type PeerRecord struct {
	PublicKey  string    `json:"pubKey"`
	Endpoint   string    `json:"endpoint,omitempty"`
	Alias      string    `json:"alias,omitempty"`
	LastSeen   time.Time `json:"lastSeen"`
	ItemCount  int       `json:"torrentsCount"`
	Role       Role      `json:"type"`
	CatalogURL string    `json:"catalogUrl,omitempty"`
	// StoreEndpoint is the replication endpoint of a relay when it differs
	// from the announced endpoint
	StoreEndpoint string `json:"storeEndpoint,omitempty"`
}

func (p PeerRecord) Fresh(now time.Time, window time.Duration) bool {
	return now.Sub(p.LastSeen) < window
}

// ParseRelay narrows a relay announcement. Relays without any reachable
// endpoint are useless to this node and are dropped. The endpoint is
// returned as announced, callers normalize it.
func ParseRelay(pubKey string, n Node, now time.Time) (PeerRecord, bool) {
	if n == nil || pubKey == `` {
		return PeerRecord{}, false
	}

	endpoint := n.Str(`endpoint`, `publicUrl`, `host`)
	if endpoint == `` {
		return PeerRecord{}, false
	}

	return PeerRecord{
		PublicKey:     pubKey,
		Endpoint:      endpoint,
		Alias:         n.Str(`alias`, `name`),
		LastSeen:      n.Time(now, `lastSeen`),
		ItemCount:     int(n.Int(`torrentsCount`, `activeTorrents`)),
		Role:          RoleRelay,
		StoreEndpoint: n.Str(`storeEndpoint`),
	}, true
}

// ParsePeer narrows an ordinary peer announcement, which must carry an alias
func ParsePeer(pubKey string, n Node, now time.Time) (PeerRecord, bool) {
	if n == nil || pubKey == `` {
		return PeerRecord{}, false
	}

	alias := n.Str(`alias`)
	if alias == `` {
		return PeerRecord{}, false
	}

	role := RolePeer
	if strings.EqualFold(n.Str(`type`), string(RoleRelay)) {
		role = RoleRelay
	}

	return PeerRecord{
		PublicKey: pubKey,
		Alias:     alias,
		LastSeen:  n.Time(now, `lastSeen`),
		ItemCount: int(n.Int(`torrentsCount`)),
		Role:      role,
	}, true
}

// AnnouncementNode is what a node writes about itself on the peers path
func AnnouncementNode(alias string, at time.Time, items int) Node {
	return Node{
		`alias`:         alias,
		`lastSeen`:      Millis(at),
		`torrentsCount`: items,
		`type`:          string(RolePeer),
	}
}

// RelayAnnouncementNode is what a relay writes about itself on the relays path
func RelayAnnouncementNode(alias, endpoint, storeEndpoint string, at time.Time, items int) Node {
	n := Node{
		`alias`:         alias,
		`endpoint`:      endpoint,
		`lastSeen`:      Millis(at),
		`torrentsCount`: items,
		`type`:          string(RoleRelay),
	}
	if storeEndpoint != `` {
		n[`storeEndpoint`] = storeEndpoint
	}
	return n
}
