package main

import (
	"fmt"

	"log/slog"

	"roost/internal/activities"
	"roost/internal/config"
	"roost/internal/federation"
	"roost/internal/identity"
	"roost/internal/notifications"
	"roost/internal/stator"
	"roost/internal/store"
)

// buildServices wires the federation transports, domain services, and graph
// registry around one store.
func buildServices(cfg *config.Config, st *store.Store, logger *slog.Logger) (*stator.Registry, *stator.Runner, *activities.Service, error) {
	fetcher := federation.NewFetcher(cfg)
	deliverer := federation.NewDeliverer(cfg)
	notifier := notifications.NewService(cfg)

	identities := identity.NewService(cfg, st, fetcher, logger)
	acts := activities.NewService(cfg, st, identities, deliverer, fetcher, notifier, logger)

	registry := stator.NewRegistry()
	graphs := []struct {
		kind  store.Kind
		graph *stator.Graph
	}{
		{store.KindIdentity, identities.Graph()},
		{store.KindPost, acts.PostGraph()},
		{store.KindFanOut, acts.FanOutGraph()},
	}
	for _, entry := range graphs {
		if err := registry.Register(entry.kind, entry.graph); err != nil {
			return nil, nil, nil, fmt.Errorf("register %s graph: %w", entry.kind, err)
		}
	}

	runner := stator.NewRunner(cfg, st, logger, notifier, registry)
	return registry, runner, acts, nil
}
