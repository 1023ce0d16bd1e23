package container

import (
	"context"
	"fmt"
	"time"

	"github.com/YasiruR/mule-sync/chat"
	"github.com/YasiruR/mule-sync/domain/services"
	"github.com/YasiruR/mule-sync/graph"
	"github.com/YasiruR/mule-sync/graph/replicator"
	"github.com/YasiruR/mule-sync/identity"
	"github.com/YasiruR/mule-sync/relay"
	"github.com/tryfix/log"
)

type Args struct {
	Alias     string
	KeyFile   string
	StorePort int
	Host      string
	RelayPort int
	PublicURL string
	Peers     []string
	NoDefault bool
	Verbose   bool
	LogLevel  string
}

type Config struct {
	*Args
	StoreEndpoint    string
	RelayAddr        string
	Bootstrap        []string
	AnnounceInterval time.Duration
	PullTimeout      time.Duration
}

type Container struct {
	Cfg        *Config
	Store      *graph.Store
	Replicator *replicator.Zmq
	Identity   *identity.Service
	Catalog    services.Catalog
	Discoverer services.Discoverer
	Merger     services.Merger
	Chat       services.Chat
	Commands   *chat.Commands
	Relay      *relay.Server
	Log        log.Logger
}

func (c *Container) Stop() error {
	c.Discoverer.StopDiscovery()

	if c.Relay != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.Relay.Stop(ctx); err != nil {
			return fmt.Errorf(`relay shutdown failed - %v`, err)
		}
	}

	if c.Replicator != nil {
		if err := c.Replicator.Close(); err != nil {
			return fmt.Errorf(`replicator shutdown failed - %v`, err)
		}
	}

	if c.Cfg.KeyFile != `` {
		if err := c.Identity.Save(c.Cfg.KeyFile); err != nil {
			c.Log.Warn(fmt.Sprintf(`saving session failed - %v`, err))
		}
	}

	c.Store.Close()
	c.Log.Info(`graceful shutdown of node completed successfully`)
	return nil
}
