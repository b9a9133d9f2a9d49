package main

import (
	"strings"
	"sync"

	"roost/internal/activities"
	"roost/internal/api"
	"roost/internal/config"
	"roost/internal/federation"
	"roost/internal/identity"
	"roost/internal/logging"
	"roost/internal/stator"
	"roost/internal/store"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// cliServices bundles direct-store access for commands that run without a
// reachable daemon.
type cliServices struct {
	store      *store.Store
	scheduler  *api.SchedulerService
	identities *identity.Service
	activities *activities.Service
}

func (s *cliServices) close() {
	if s.store != nil {
		_ = s.store.Close()
	}
}

// openServices opens the store directly and wires the domain services around
// it. The caller must close the returned bundle.
func (c *commandContext) openServices() (*cliServices, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return nil, err
	}

	fetcher := federation.NewFetcher(cfg)
	identities := identity.NewService(cfg, st, fetcher, logging.NewNop())
	acts := activities.NewService(cfg, st, identities, federation.NewDeliverer(cfg), fetcher, nil, logging.NewNop())

	registry := stator.NewRegistry()
	for kind, graph := range map[store.Kind]*stator.Graph{
		store.KindIdentity: identities.Graph(),
		store.KindPost:     acts.PostGraph(),
		store.KindFanOut:   acts.FanOutGraph(),
	} {
		if err := registry.Register(kind, graph); err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	return &cliServices{
		store:      st,
		scheduler:  api.NewSchedulerService(st, registry),
		identities: identities,
		activities: acts,
	}, nil
}

// apiClient returns a client for the daemon HTTP API, or nil when the daemon
// is not reachable.
func (c *commandContext) apiClient() *apiClient {
	cfg, err := c.ensureConfig()
	if err != nil || cfg == nil {
		return nil
	}
	client := newAPIClient(cfg.Server.APIBind, cfg.Server.APIToken)
	if client == nil || !client.reachable() {
		return nil
	}
	return client
}
