// Package paths builds the store paths shared by every node of the network.
// Paths are slash separated and never carry leading or trailing slashes.
package paths

import (
	"sort"
	"strings"

	"github.com/YasiruR/mule-sync/domain"
)

const separator = `/`

func Join(parts ...string) string {
	var valid []string
	for _, p := range parts {
		p = strings.Trim(p, separator)
		if p != `` {
			valid = append(valid, p)
		}
	}
	return strings.Join(valid, separator)
}

// Split returns the parent path and the last key of path
func Split(path string) (parent, key string) {
	path = strings.Trim(path, separator)
	i := strings.LastIndex(path, separator)
	if i < 0 {
		return ``, path
	}
	return path[:i], path[i+1:]
}

// Valid reports whether path is non-empty and has no empty segments
func Valid(path string) bool {
	if path == `` || strings.HasPrefix(path, separator) || strings.HasSuffix(path, separator) {
		return false
	}
	return !strings.Contains(path, separator+separator)
}

// ValidKey reports whether k can be used as a single path segment
func ValidKey(k string) bool {
	return strings.TrimSpace(k) != `` && !strings.Contains(k, separator)
}

func Torrent(infoHash string) string {
	return Join(domain.PathTorrents, infoHash)
}

// Keyword is the index node of a keyword, its fields are the identifiers
// of the entries whose names carry it
func Keyword(keyword string) string {
	return Join(domain.PathSearch, keyword)
}

func Relay(pubKey string) string {
	return Join(domain.PathRelays, pubKey)
}

func Peer(pubKey string) string {
	return Join(domain.PathPeers, pubKey)
}

func LobbyMessage(id string) string {
	return Join(domain.PathLobby, id)
}

// User is the namespace owned by an identity, holding its public profile
func User(pubKey string) string {
	return domain.UserPrefix + pubKey
}

func UserCatalog(pubKey string) string {
	return Join(User(pubKey), domain.UserCatalogKey)
}

func UserCatalogItem(pubKey, infoHash string) string {
	return Join(UserCatalog(pubKey), infoHash)
}

// ConversationID combines both participants so that either of them
// addresses the same channel
func ConversationID(a, b string) string {
	keys := []string{a, b}
	sort.Strings(keys)
	return strings.Join(keys, `:`)
}

func Conversation(a, b string) string {
	return Join(domain.PathChats, ConversationID(a, b))
}

func ChatMessage(a, b, id string) string {
	return Join(Conversation(a, b), id)
}

// RelayBase normalizes an announced relay address or store peer URL into a
// base URL: default scheme, no trailing slash and no store peer suffix
func RelayBase(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == `` {
		return ``
	}

	if !strings.HasPrefix(endpoint, `http://`) && !strings.HasPrefix(endpoint, `https://`) {
		endpoint = domain.DefaultScheme + endpoint
	}

	endpoint = strings.TrimRight(endpoint, separator)
	endpoint = strings.TrimSuffix(endpoint, domain.StorePeerSuffix)
	return strings.TrimRight(endpoint, separator)
}

// StorePeer is the replication endpoint exposed by a relay
func StorePeer(endpoint string) string {
	base := RelayBase(endpoint)
	if base == `` {
		return ``
	}
	return base + domain.StorePeerSuffix
}

func CatalogURL(endpoint string) string {
	base := RelayBase(endpoint)
	if base == `` {
		return ``
	}
	return base + domain.CatalogEndpoint
}
