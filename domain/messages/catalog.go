package messages

import (
	"encoding/json"
	"time"
)

// CatalogResponse is served by relays on the catalog endpoint
type CatalogResponse struct {
	Success     bool          `json:"success"`
	Catalog     []CatalogItem `json:"catalog"`
	RelayPubKey string        `json:"relayPubKey,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// CatalogItem carries both the current field names and the ones used by
// older relays. Writers only fill the current ones.
type CatalogItem struct {
	InfoHash    string          `json:"infoHash,omitempty"`
	TorrentHash string          `json:"torrentHash,omitempty"`
	Name        string          `json:"name,omitempty"`
	TorrentName string          `json:"torrentName,omitempty"`
	MagnetURI   string          `json:"magnetURI,omitempty"`
	MagnetLink  string          `json:"magnetLink,omitempty"`
	Files       []CatalogFile   `json:"files"`
	CompletedAt json.RawMessage `json:"completedAt,omitempty"`
}

type CatalogFile struct {
	Size int64 `json:"size"`
}

// Id prefers the legacy field as older relays may send both
func (c CatalogItem) Id() string {
	return first(c.TorrentHash, c.InfoHash)
}

func (c CatalogItem) DisplayName() string {
	return first(c.TorrentName, c.Name)
}

func (c CatalogItem) Magnet() string {
	return first(c.MagnetLink, c.MagnetURI)
}

func (c CatalogItem) TotalSize() int64 {
	var total int64
	for _, f := range c.Files {
		total += f.Size
	}
	return total
}

// Completed reads completedAt as unix milliseconds or an RFC 3339 string
func (c CatalogItem) Completed(def time.Time) time.Time {
	if len(c.CompletedAt) == 0 {
		return def
	}

	var ms float64
	if err := json.Unmarshal(c.CompletedAt, &ms); err == nil {
		if ms <= 0 {
			return def
		}
		return time.UnixMilli(int64(ms))
	}

	var s string
	if err := json.Unmarshal(c.CompletedAt, &s); err == nil {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
	}

	return def
}

func CompletedAt(t time.Time) json.RawMessage {
	data, _ := json.Marshal(t.UnixMilli())
	return data
}

func first(vals ...string) string {
	for _, v := range vals {
		if v != `` {
			return v
		}
	}
	return ``
}
