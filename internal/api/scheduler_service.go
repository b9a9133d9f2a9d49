package api

import (
	"context"
	"fmt"

	"roost/internal/activities"
	"roost/internal/stator"
	"roost/internal/store"
)

// SchedulerReader abstracts the scheduling persistence interactions needed
// for API queries and queue maintenance.
type SchedulerReader interface {
	SchedulingEntries(ctx context.Context, kind store.Kind, limit int) ([]store.SchedulingEntry, error)
	Stats(ctx context.Context, kind store.Kind) (map[string]int, error)
	Health(ctx context.Context, kind store.Kind, terminal []string) (store.HealthSummary, error)
	RetryParked(ctx context.Context, kind store.Kind) (int64, error)
	DeleteFanOutsInState(ctx context.Context, state string) (int64, error)
}

// SchedulerService exposes scheduling queries and maintenance actions
// returning API DTOs.
type SchedulerService struct {
	store    SchedulerReader
	registry *stator.Registry
}

// NewSchedulerService constructs a SchedulerService around the provided
// reader and graph registry.
func NewSchedulerService(reader SchedulerReader, registry *stator.Registry) *SchedulerService {
	if reader == nil || registry == nil {
		return nil
	}
	return &SchedulerService{store: reader, registry: registry}
}

// List returns recent scheduling entries for one kind, or for every
// registered kind when kind is empty.
func (s *SchedulerService) List(ctx context.Context, kind string, limit int) ([]Entry, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	kinds, err := s.resolveKinds(kind)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, k := range kinds {
		entries, err := s.store.SchedulingEntries(ctx, k, limit)
		if err != nil {
			return nil, err
		}
		out = append(out, FromSchedulingEntries(entries)...)
	}
	return out, nil
}

// Summaries returns per-kind scheduling counts for every registered kind.
func (s *SchedulerService) Summaries(ctx context.Context) ([]KindSummary, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	summaries := make([]KindSummary, 0, len(s.registry.Kinds()))
	for _, kind := range s.registry.Kinds() {
		graph, ok := s.registry.Graph(kind)
		if !ok {
			return nil, fmt.Errorf("no graph registered for kind %q", kind)
		}
		health, err := s.store.Health(ctx, kind, graph.TerminalStates())
		if err != nil {
			return nil, err
		}
		stats, err := s.store.Stats(ctx, kind)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, FromHealthSummary(health, stats))
	}
	return summaries, nil
}

// RetryParked resurrects parked entities so the scheduler picks them up
// again. An empty kind retries every registered kind.
func (s *SchedulerService) RetryParked(ctx context.Context, kind string) (RetryResponse, error) {
	if s == nil || s.store == nil {
		return RetryResponse{}, nil
	}
	kinds, err := s.resolveKinds(kind)
	if err != nil {
		return RetryResponse{}, err
	}
	var resp RetryResponse
	for _, k := range kinds {
		n, err := s.store.RetryParked(ctx, k)
		if err != nil {
			return RetryResponse{}, err
		}
		resp.Resurrected += n
	}
	return resp, nil
}

// ClearFailedFanOuts removes fan-outs that settled in the failed state.
func (s *SchedulerService) ClearFailedFanOuts(ctx context.Context) (ClearResponse, error) {
	if s == nil || s.store == nil {
		return ClearResponse{}, nil
	}
	removed, err := s.store.DeleteFanOutsInState(ctx, activities.FanOutStateFailed)
	if err != nil {
		return ClearResponse{}, err
	}
	return ClearResponse{Removed: removed}, nil
}

func (s *SchedulerService) resolveKinds(kind string) ([]store.Kind, error) {
	if kind == "" {
		return s.registry.Kinds(), nil
	}
	k := store.Kind(kind)
	if _, ok := s.registry.Graph(k); !ok {
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
	return []store.Kind{k}, nil
}
