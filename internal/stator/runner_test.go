package stator_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"roost/internal/logging"
	"roost/internal/services"
	"roost/internal/stator"
	"roost/internal/store"
	"roost/internal/testsupport"
)

func waitForState(t *testing.T, st *store.Store, id int64, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		post, err := st.PostByID(context.Background(), id)
		if err != nil {
			t.Fatalf("PostByID failed: %v", err)
		}
		if post.State == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	post, _ := st.PostByID(context.Background(), id)
	t.Fatalf("post never reached %q, stuck at %#v", want, post.Scheduling)
}

func TestRunnerExecutesHandlerAndTransitions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	var calls atomic.Int64
	graph := stator.NewBuilder("post").
		AddState("new", 0, func(ctx context.Context, id int64) (string, error) {
			calls.Add(1)
			return "fanned_out", nil
		}).
		AddState("fanned_out", 0, nil).
		AddTransition("new", "fanned_out").
		SetInitial("new").
		MustBuild()

	registry := stator.NewRegistry()
	if err := registry.Register(store.KindPost, graph); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	runner := stator.NewRunner(cfg, st, logging.NewNop(), nil, registry)
	if err := runner.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer runner.Stop()

	author := testsupport.NewLocalIdentity(t, st, "roost.test", "alice")
	post := testsupport.NewPost(t, st, author, "scheduled", "new")

	waitForState(t, st, post.ID, "fanned_out")

	fetched, err := st.PostByID(context.Background(), post.ID)
	if err != nil {
		t.Fatalf("PostByID failed: %v", err)
	}
	if fetched.StateReady || fetched.StateLockedUntil != nil {
		t.Fatalf("terminal post should be settled: %#v", fetched.Scheduling)
	}
	if calls.Load() == 0 {
		t.Fatal("expected handler to run")
	}
}

func TestRunnerRequeuesOnAgain(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	var calls atomic.Int64
	graph := stator.NewBuilder("post").
		AddState("new", 0, func(ctx context.Context, id int64) (string, error) {
			if calls.Add(1) < 3 {
				return stator.Again, nil
			}
			return "fanned_out", nil
		}).
		AddState("fanned_out", 0, nil).
		AddTransition("new", "fanned_out").
		SetInitial("new").
		MustBuild()

	registry := stator.NewRegistry()
	if err := registry.Register(store.KindPost, graph); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	runner := stator.NewRunner(cfg, st, logging.NewNop(), nil, registry)
	if err := runner.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer runner.Stop()

	author := testsupport.NewLocalIdentity(t, st, "roost.test", "alice")
	post := testsupport.NewPost(t, st, author, "needs several passes", "new")

	waitForState(t, st, post.ID, "fanned_out")
	if got := calls.Load(); got < 3 {
		t.Fatalf("expected at least 3 handler runs, got %d", got)
	}
}

func TestRunnerDelaysNonTerminalStateByTryInterval(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	var midCalls atomic.Int64
	graph := stator.NewBuilder("post").
		AddState("new", 0, func(ctx context.Context, id int64) (string, error) {
			return "held", nil
		}).
		AddState("held", time.Hour, func(ctx context.Context, id int64) (string, error) {
			midCalls.Add(1)
			return "fanned_out", nil
		}).
		AddState("fanned_out", 0, nil).
		AddTransition("new", "held").
		AddTransition("held", "fanned_out").
		SetInitial("new").
		MustBuild()

	registry := stator.NewRegistry()
	if err := registry.Register(store.KindPost, graph); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	runner := stator.NewRunner(cfg, st, logging.NewNop(), nil, registry)
	if err := runner.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer runner.Stop()

	author := testsupport.NewLocalIdentity(t, st, "roost.test", "alice")
	post := testsupport.NewPost(t, st, author, "slow lane", "new")

	waitForState(t, st, post.ID, "held")

	// Give the runner several poll cycles; the held handler must not fire
	// before its hour-long revisit window opens.
	time.Sleep(200 * time.Millisecond)

	fetched, err := st.PostByID(context.Background(), post.ID)
	if err != nil {
		t.Fatalf("PostByID failed: %v", err)
	}
	if fetched.State != "held" {
		t.Fatalf("post left held early, now %q", fetched.State)
	}
	if got := midCalls.Load(); got != 0 {
		t.Fatalf("held handler ran %d times before TryInterval elapsed", got)
	}
	if !fetched.StateReady {
		t.Fatalf("non-terminal post should stay ready: %#v", fetched.Scheduling)
	}
	if fetched.StateLockedUntil == nil {
		t.Fatal("expected a lock covering the revisit window")
	}
	if remaining := time.Until(*fetched.StateLockedUntil); remaining < 50*time.Minute {
		t.Fatalf("lock expires too soon, %s remaining", remaining)
	}
}

func TestRunnerParksOnNonRetryableError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	graph := stator.NewBuilder("post").
		AddState("new", 0, func(ctx context.Context, id int64) (string, error) {
			return "", services.Wrap(services.ErrValidation, "post", "handle", "content rejected", nil)
		}).
		AddState("fanned_out", 0, nil).
		AddTransition("new", "fanned_out").
		SetInitial("new").
		MustBuild()

	registry := stator.NewRegistry()
	if err := registry.Register(store.KindPost, graph); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	runner := stator.NewRunner(cfg, st, logging.NewNop(), nil, registry)
	if err := runner.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer runner.Stop()

	author := testsupport.NewLocalIdentity(t, st, "roost.test", "alice")
	post := testsupport.NewPost(t, st, author, "rejected", "new")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		fetched, err := st.PostByID(context.Background(), post.ID)
		if err != nil {
			t.Fatalf("PostByID failed: %v", err)
		}
		if !fetched.StateReady && fetched.StateLockedUntil == nil && fetched.LastError != "" {
			if fetched.State != "new" {
				t.Fatalf("parked post should keep its state, got %q", fetched.State)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("post was never parked")
}

func TestRunnerRetriesFailedHandlerViaLockExpiry(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithLockDuration(1))
	st := testsupport.MustOpenStore(t, cfg)

	var calls atomic.Int64
	graph := stator.NewBuilder("post").
		AddState("new", 0, func(ctx context.Context, id int64) (string, error) {
			if calls.Add(1) == 1 {
				return "", errors.New("transient failure")
			}
			return "fanned_out", nil
		}).
		AddState("fanned_out", 0, nil).
		AddTransition("new", "fanned_out").
		SetInitial("new").
		MustBuild()

	registry := stator.NewRegistry()
	if err := registry.Register(store.KindPost, graph); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	runner := stator.NewRunner(cfg, st, logging.NewNop(), nil, registry)
	if err := runner.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer runner.Stop()

	author := testsupport.NewLocalIdentity(t, st, "roost.test", "alice")
	post := testsupport.NewPost(t, st, author, "flaky", "new")

	waitForState(t, st, post.ID, "fanned_out")
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 handler runs, got %d", got)
	}
}

func TestRunnerParksAfterMaxAttempts(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithLockDuration(1),
		testsupport.WithMaxAttempts(1),
	)
	st := testsupport.MustOpenStore(t, cfg)

	graph := stator.NewBuilder("post").
		AddState("new", 0, func(ctx context.Context, id int64) (string, error) {
			return "", errors.New("always failing")
		}).
		AddState("fanned_out", 0, nil).
		AddTransition("new", "fanned_out").
		SetInitial("new").
		MustBuild()

	registry := stator.NewRegistry()
	if err := registry.Register(store.KindPost, graph); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	runner := stator.NewRunner(cfg, st, logging.NewNop(), nil, registry)
	if err := runner.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer runner.Stop()

	author := testsupport.NewLocalIdentity(t, st, "roost.test", "alice")
	post := testsupport.NewPost(t, st, author, "doomed", "new")

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		fetched, err := st.PostByID(context.Background(), post.ID)
		if err != nil {
			t.Fatalf("PostByID failed: %v", err)
		}
		if !fetched.StateReady && fetched.StateLockedUntil == nil && fetched.LastError != "" {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatal("post was never parked")
}
