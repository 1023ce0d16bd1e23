package models

import (
	"fmt"
	"time"
)

type CatalogEntry struct {
	InfoHash      string    `json:"infoHash"`
	Name          string    `json:"name"`
	MagnetURI     string    `json:"magnetURI"`
	Size          int64     `json:"size"`
	Files         int       `json:"files"`
	SharedBy      string    `json:"sharedBy"`
	SharedByAlias string    `json:"sharedByAlias,omitempty"`
	SharedAt      time.Time `json:"sharedAt"`
	// RelayURL is set only for entries pulled from a relay endpoint
	RelayURL string `json:"relayUrl,omitempty"`
}

const unknownPublisher = `unknown`

// ParseCatalogEntry narrows a node delivered from the torrents path. Entries
// without a name or a magnet URI are rejected as a whole.
func ParseCatalogEntry(infoHash string, n Node) (CatalogEntry, bool) {
	if n == nil || infoHash == `` {
		return CatalogEntry{}, false
	}

	name, magnet := n.Str(`name`), n.Str(`magnetURI`)
	if name == `` || magnet == `` {
		return CatalogEntry{}, false
	}

	sharedBy := n.Str(`sharedBy`)
	if sharedBy == `` {
		sharedBy = unknownPublisher
	}

	return CatalogEntry{
		InfoHash:      infoHash,
		Name:          name,
		MagnetURI:     magnet,
		Size:          n.Int(`size`),
		Files:         int(n.Int(`files`)),
		SharedBy:      sharedBy,
		SharedByAlias: n.Str(`sharedByAlias`),
		SharedAt:      n.Time(time.Now(), `sharedAt`),
	}, true
}

// Node is the network representation written under the torrents path
func (e CatalogEntry) Node() Node {
	return Node{
		`name`:          e.Name,
		`magnetURI`:     e.MagnetURI,
		`size`:          e.Size,
		`files`:         e.Files,
		`sharedBy`:      e.SharedBy,
		`sharedByAlias`: e.SharedByAlias,
		`sharedAt`:      Millis(e.SharedAt),
	}
}

// MirrorNode is the copy kept in the publisher's own namespace, signed by
// the publisher over MirrorPayload
func (e CatalogEntry) MirrorNode(sig string) Node {
	return Node{
		`name`:      e.Name,
		`magnetURI`: e.MagnetURI,
		`size`:      e.Size,
		`files`:     e.Files,
		`addedAt`:   Millis(e.SharedAt),
		FieldSig:    sig,
	}
}

// MirrorPayload is the signed content of a mirror node. It is rebuilt from
// the node on the reading side so numbers must survive a json round trip.
func MirrorPayload(infoHash, name, magnet string, size int64, files int, addedAt int64) []byte {
	return []byte(fmt.Sprintf("mirror\n%s\n%s\n%s\n%d\n%d\n%d", infoHash, name, magnet, size, files, addedAt))
}

func (e CatalogEntry) MirrorPayload() []byte {
	return MirrorPayload(e.InfoHash, e.Name, e.MagnetURI, e.Size, e.Files, Millis(e.SharedAt))
}

// ParseMirror narrows a mirror node of the given publisher. The signature
// is not checked here.
func ParseMirror(pub, infoHash string, n Node) (CatalogEntry, string, bool) {
	if n == nil || infoHash == `` {
		return CatalogEntry{}, ``, false
	}

	name, magnet := n.Str(`name`), n.Str(`magnetURI`)
	if name == `` || magnet == `` {
		return CatalogEntry{}, ``, false
	}

	return CatalogEntry{
		InfoHash:  infoHash,
		Name:      name,
		MagnetURI: magnet,
		Size:      n.Int(`size`),
		Files:     int(n.Int(`files`)),
		SharedBy:  pub,
		SharedAt:  time.UnixMilli(n.Int(`addedAt`)),
	}, n.Str(FieldSig), true
}
