package api

import "roost/internal/store"

// FromSchedulingEntry converts a scheduling row to its API representation.
func FromSchedulingEntry(entry store.SchedulingEntry) Entry {
	dto := Entry{
		ID:        entry.ID,
		Kind:      string(entry.Kind),
		State:     entry.State,
		Ready:     entry.StateReady,
		Attempts:  entry.Attempts,
		LastError: entry.LastError,
	}
	if entry.StateLockedUntil != nil {
		dto.LockedUntil = entry.StateLockedUntil.UTC().Format(dateTimeFormat)
	}
	if !entry.StateChanged.IsZero() {
		dto.Changed = entry.StateChanged.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromSchedulingEntries converts a slice of scheduling rows into API DTOs.
func FromSchedulingEntries(entries []store.SchedulingEntry) []Entry {
	if len(entries) == 0 {
		return nil
	}
	out := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, FromSchedulingEntry(entry))
	}
	return out
}

// FromHealthSummary converts store health counts plus per-state stats to an
// API summary.
func FromHealthSummary(health store.HealthSummary, states map[string]int) KindSummary {
	summary := KindSummary{
		Kind:     string(health.Kind),
		Total:    health.Total,
		Ready:    health.Ready,
		Locked:   health.Locked,
		Terminal: health.Terminal,
		Errored:  health.Errored,
		States:   map[string]int{},
	}
	for state, count := range states {
		summary.States[state] = count
	}
	return summary
}
