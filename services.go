/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"io/fs"
	"os"

	"github.com/Seednode/earwax/internal/catalog"
	"github.com/Seednode/earwax/internal/events"
	"github.com/Seednode/earwax/internal/mediacache"
	"github.com/Seednode/earwax/internal/sound"
)

// services are shared by every game on the server.
type services struct {
	cfg     *Config
	data    fs.FS
	cache   mediacache.Cache
	origin  sound.Origin
	handles *sound.Handles
	events  events.Publisher
	closers []func()
}

func newServices(ctx context.Context, cfg *Config) (*services, error) {
	s := &services{
		cfg:     cfg,
		data:    os.DirFS(cfg.dataDir),
		handles: sound.NewHandles(cfg.prefix + "/clips/"),
		events:  events.Nop{},
	}

	switch {
	case cfg.cacheDSN != "":
		pg, err := mediacache.NewPostgres(ctx, cfg.cacheDSN)
		if err != nil {
			return nil, err
		}
		s.cache = pg
		s.closers = append(s.closers, pg.Close)

		logf(cfg, "START: Caching clips in postgres")
	case cfg.cacheDir != "":
		disk, err := mediacache.NewDisk(cfg.cacheDir)
		if err != nil {
			return nil, err
		}
		s.cache = disk

		logf(cfg, "START: Caching clips in %s", cfg.cacheDir)
	default:
		s.cache = mediacache.NewMemory()
	}

	if cfg.mediaURL != "" {
		s.origin = sound.NewHTTPOrigin(cfg.mediaURL, nil)

		logf(cfg, "START: Fetching clips from %s", cfg.mediaURL)
	} else {
		s.origin = sound.NewDirOrigin(s.data)
	}

	if cfg.natsURL != "" {
		pub, err := events.Connect(cfg.natsURL)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.events = pub
		s.closers = append(s.closers, func() { _ = pub.Close() })

		logf(cfg, "START: Publishing game events to %s", cfg.natsURL)
	}

	return s, nil
}

func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func (s *services) loadCatalog() (*catalog.Catalog, error) {
	return catalog.Load(s.data)
}

func (s *services) publish(game, kind string, fields map[string]any) {
	if err := s.events.Publish(game, kind, fields); err != nil {
		logf(s.cfg, "EVENTS: Failed to publish %s for %s: %v", kind, game, err)
	}
}
