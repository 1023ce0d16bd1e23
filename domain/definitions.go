package domain

import "time"

// store paths shared with the relays
const (
	PathRoot     = `shogun`
	PathTorrents = `shogun/network/torrents`
	PathSearch   = `shogun/network/search`
	PathRelays   = `shogun/network/relays`
	PathPeers    = `shogun/network/peers`
	PathLobby    = `shogun/chat/lobby`
	PathChats    = `shogun/chats`

	UserPrefix     = `~`
	UserCatalogKey = `catalog`
)

const (
	CatalogEndpoint = `/api/v1/torrent/catalog`
	StorePeerSuffix = `/gun`
	DefaultScheme   = `https://`
)

const (
	RelayWindow      = 24 * time.Hour
	PeerWindow       = time.Hour
	AnnounceTicker   = 60 * time.Second
	PullTimeout      = 10 * time.Second
	MaxParallelPulls = 8

	LobbyHistoryLimit = 100
	MinKeywordLength  = 3
)

// DefaultRelayPeers are the bootstrap store peers every node starts with
var DefaultRelayPeers = []string{
	`https://shogun-relay.scobrudot.dev/gun`,
	`https://shogun-relay-2.scobrudot.dev/gun`,
}
