package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/YasiruR/mule-sync/catalog"
	"github.com/YasiruR/mule-sync/chat"
	"github.com/YasiruR/mule-sync/discovery"
	"github.com/YasiruR/mule-sync/domain"
	"github.com/YasiruR/mule-sync/domain/container"
	"github.com/YasiruR/mule-sync/domain/services"
	"github.com/YasiruR/mule-sync/graph"
	"github.com/YasiruR/mule-sync/graph/replicator"
	"github.com/YasiruR/mule-sync/identity"
	"github.com/YasiruR/mule-sync/log"
	"github.com/YasiruR/mule-sync/merge"
	"github.com/YasiruR/mule-sync/relay"
	zmqPkg "github.com/pebbe/zmq4"
)

func setConfigs(args *container.Args) *container.Config {
	cfg := &container.Config{
		Args:             args,
		AnnounceInterval: domain.AnnounceTicker,
		PullTimeout:      domain.PullTimeout,
	}

	if args.StorePort > 0 {
		cfg.StoreEndpoint = `tcp://` + args.Host + `:` + strconv.Itoa(args.StorePort)
	}

	if args.RelayPort > 0 {
		cfg.RelayAddr = `:` + strconv.Itoa(args.RelayPort)
	}

	if !args.NoDefault {
		cfg.Bootstrap = append(cfg.Bootstrap, domain.DefaultRelayPeers...)
	}
	cfg.Bootstrap = append(cfg.Bootstrap, args.Peers...)
	return cfg
}

func initContainer(cfg *container.Config) (*container.Container, error) {
	logger := log.NewLogger(cfg.Verbose, cfg.LogLevel)
	store := graph.NewStore(logger)

	c := &container.Container{
		Cfg:      cfg,
		Store:    store,
		Identity: identity.NewService(store, logger),
		Log:      logger,
	}

	if cfg.StoreEndpoint != `` {
		zmqCtx, err := zmqPkg.NewContext()
		if err != nil {
			return nil, fmt.Errorf(`zmq context initialization failed - %v`, err)
		}

		rep, err := replicator.NewZmq(zmqCtx, store, cfg.StoreEndpoint, logger)
		if err != nil {
			return nil, fmt.Errorf(`replicator initialization failed - %v`, err)
		}
		store.SetTransport(rep)
		c.Replicator = rep
	}

	if err := signIn(c); err != nil {
		return nil, err
	}

	cat := catalog.NewService(store, c.Identity, logger)
	announcers := []services.PeerAnnouncer{cat}
	if cfg.RelayAddr != `` {
		c.Relay = relay.NewServer(cfg.PublicURL, cfg.StoreEndpoint, cat, store, c.Identity, logger)
		if err := c.Relay.Start(cfg.RelayAddr); err != nil {
			return nil, fmt.Errorf(`relay initialization failed - %v`, err)
		}
		if cfg.PublicURL != `` {
			announcers = append(announcers, c.Relay)
		}
	}

	dir := discovery.NewDirectory(store, cfg.Bootstrap, cfg.AnnounceInterval, logger, announcers...)
	mrg := merge.NewMerger(cat, dir, cfg.PullTimeout, logger)

	c.Catalog = cat
	c.Discoverer = dir
	c.Merger = mrg
	c.Chat = chat.NewService(store, c.Identity, logger)
	c.Commands = chat.NewCommands(cat, dir, mrg)
	return c, nil
}

// signIn recalls the session from the key file when one exists, otherwise
// a new identity is created under the given alias
func signIn(c *container.Container) error {
	if c.Cfg.KeyFile != `` {
		if _, err := os.Stat(c.Cfg.KeyFile); err == nil {
			if _, err = c.Identity.Recall(c.Cfg.KeyFile); err != nil {
				return fmt.Errorf(`recalling session failed - %v`, err)
			}
			return nil
		}
	}

	if c.Cfg.Alias == `` {
		return fmt.Errorf(`an alias is required when no key file is available`)
	}

	if _, err := c.Identity.SignIn(c.Cfg.Alias); err != nil {
		return fmt.Errorf(`signing in failed - %v`, err)
	}

	if c.Cfg.KeyFile != `` {
		if err := c.Identity.Save(c.Cfg.KeyFile); err != nil {
			c.Log.Warn(fmt.Sprintf(`saving session failed - %v`, err))
		}
	}
	return nil
}
