package api_test

import (
	"context"
	"testing"
	"time"

	"roost/internal/api"
	"roost/internal/stator"
	"roost/internal/store"
	"roost/internal/testsupport"
)

func newRegistry(t *testing.T) *stator.Registry {
	t.Helper()

	identityGraph := stator.NewBuilder("identity").
		AddState("outdated", 0, func(context.Context, int64) (string, error) { return "updated", nil }).
		AddState("updated", 0, nil).
		AddTransition("outdated", "updated").
		SetInitial("outdated").
		MustBuild()
	postGraph := stator.NewBuilder("post").
		AddState("new", 0, func(context.Context, int64) (string, error) { return "fanned_out", nil }).
		AddState("fanned_out", 0, nil).
		AddTransition("new", "fanned_out").
		SetInitial("new").
		MustBuild()
	fanOutGraph := stator.NewBuilder("fan_out").
		AddState("queued", 0, func(context.Context, int64) (string, error) { return "delivered", nil }).
		AddState("delivered", 0, nil).
		AddState("failed", 0, nil).
		AddTransition("queued", "delivered").
		AddTransition("queued", "failed").
		SetInitial("queued").
		MustBuild()

	registry := stator.NewRegistry()
	for kind, graph := range map[store.Kind]*stator.Graph{
		store.KindIdentity: identityGraph,
		store.KindPost:     postGraph,
		store.KindFanOut:   fanOutGraph,
	} {
		if err := registry.Register(kind, graph); err != nil {
			t.Fatalf("Register(%s): %v", kind, err)
		}
	}
	return registry
}

func TestSchedulerServiceListAndSummaries(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	alice := testsupport.NewLocalIdentity(t, st, cfg.Server.Domain, "alice")
	testsupport.NewPost(t, st, alice, "hello", "new")
	testsupport.NewPost(t, st, alice, "again", "fanned_out")

	service := api.NewSchedulerService(st, newRegistry(t))

	entries, err := service.List(ctx, "post", 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 post entries, got %d", len(entries))
	}
	for _, entry := range entries {
		if entry.Kind != "post" {
			t.Fatalf("unexpected kind %q", entry.Kind)
		}
	}

	all, err := service.List(ctx, "", 10)
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 entries across kinds, got %d", len(all))
	}

	if _, err := service.List(ctx, "bogus", 10); err == nil {
		t.Fatal("expected error for unknown kind")
	}

	summaries, err := service.Summaries(ctx)
	if err != nil {
		t.Fatalf("Summaries: %v", err)
	}
	if len(summaries) != 3 {
		t.Fatalf("expected 3 kind summaries, got %d", len(summaries))
	}
	totals := map[string]int{}
	for _, summary := range summaries {
		totals[summary.Kind] = summary.Total
	}
	if totals["post"] != 2 || totals["identity"] != 1 {
		t.Fatalf("unexpected totals %v", totals)
	}
}

func TestSchedulerServiceRetryParked(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	alice := testsupport.NewLocalIdentity(t, st, cfg.Server.Domain, "alice")
	post := testsupport.NewPost(t, st, alice, "stuck", "new")
	if err := st.Park(ctx, store.KindPost, post.ID, "handler exploded"); err != nil {
		t.Fatalf("Park: %v", err)
	}

	service := api.NewSchedulerService(st, newRegistry(t))
	resp, err := service.RetryParked(ctx, "")
	if err != nil {
		t.Fatalf("RetryParked: %v", err)
	}
	if resp.Resurrected != 1 {
		t.Fatalf("expected 1 resurrected, got %d", resp.Resurrected)
	}

	ready, err := st.ReadySet(ctx, store.KindPost, []string{"fanned_out"}, 10)
	if err != nil {
		t.Fatalf("ReadySet: %v", err)
	}
	if len(ready) != 1 {
		t.Fatalf("expected resurrected post in ready set, got %d rows", len(ready))
	}
}

func TestSchedulerServiceClearFailedFanOuts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	alice := testsupport.NewLocalIdentity(t, st, cfg.Server.Domain, "alice")
	bob := testsupport.NewLocalIdentity(t, st, cfg.Server.Domain, "bob")
	post := testsupport.NewPost(t, st, alice, "hello", "fanned_out")
	if _, err := st.CreateFanOut(ctx, alice.ID, store.FanOutPost, post.ID, "failed"); err != nil {
		t.Fatalf("CreateFanOut: %v", err)
	}
	if _, err := st.CreateFanOut(ctx, bob.ID, store.FanOutPost, post.ID, "queued"); err != nil {
		t.Fatalf("CreateFanOut: %v", err)
	}

	service := api.NewSchedulerService(st, newRegistry(t))
	resp, err := service.ClearFailedFanOuts(ctx)
	if err != nil {
		t.Fatalf("ClearFailedFanOuts: %v", err)
	}
	if resp.Removed != 1 {
		t.Fatalf("expected 1 removed, got %d", resp.Removed)
	}

	remaining, err := st.FanOutsForPost(ctx, post.ID)
	if err != nil {
		t.Fatalf("FanOutsForPost: %v", err)
	}
	if len(remaining) != 1 || remaining[0].State != "queued" {
		t.Fatalf("expected only the queued fan-out to survive, got %+v", remaining)
	}
}

func TestTimelineServiceResolvesPosts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	alice := testsupport.NewLocalIdentity(t, st, cfg.Server.Domain, "alice")
	bob := testsupport.NewLocalIdentity(t, st, cfg.Server.Domain, "bob")
	post := testsupport.NewPost(t, st, alice, "hello bob", "fanned_out")
	if _, err := st.AddTimelineEvent(ctx, bob.ID, "post", post.ID); err != nil {
		t.Fatalf("AddTimelineEvent: %v", err)
	}

	events, err := api.NewTimelineService(st).For(ctx, bob, 0)
	if err != nil {
		t.Fatalf("For: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Content != "hello bob" {
		t.Fatalf("unexpected content %q", events[0].Content)
	}
	if events[0].Author != alice.ActorURI {
		t.Fatalf("unexpected author %q", events[0].Author)
	}
}

func TestConvertFormatsTimestamps(t *testing.T) {
	locked := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entry := store.SchedulingEntry{ID: 7, Kind: store.KindFanOut}
	entry.State = "queued"
	entry.StateReady = true
	entry.StateLockedUntil = &locked
	entry.StateChanged = locked.Add(-time.Minute)
	entry.Attempts = 2
	entry.LastError = "boom"

	dto := api.FromSchedulingEntry(entry)
	if dto.LockedUntil != "2026-03-01T12:00:00.000Z" {
		t.Fatalf("unexpected lockedUntil %q", dto.LockedUntil)
	}
	if dto.Changed != "2026-03-01T11:59:00.000Z" {
		t.Fatalf("unexpected changed %q", dto.Changed)
	}
	if !dto.Ready || dto.Attempts != 2 || dto.LastError != "boom" {
		t.Fatalf("unexpected dto %+v", dto)
	}
}
