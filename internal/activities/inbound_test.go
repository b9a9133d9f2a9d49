package activities_test

import (
	"context"
	"errors"
	"testing"

	"roost/internal/activities"
	"roost/internal/services"
	"roost/internal/testsupport"
)

func remoteActorDoc(actorURI, username string) map[string]any {
	return map[string]any{
		"type":              "Person",
		"preferredUsername": username,
		"inbox":             actorURI + "inbox/",
		"url":               actorURI,
	}
}

func TestHandleCreateRejectsActorMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	svc, _ := newService(t, cfg, st, nil, &stubFetcher{})

	err := svc.HandleCreate(context.Background(), map[string]any{
		"type":  "Create",
		"actor": "https://remote.example/users/mallory/",
		"object": map[string]any{
			"type":         "Note",
			"id":           "https://remote.example/users/carol/posts/1/",
			"attributedTo": "https://remote.example/users/carol/",
			"content":      "forged",
		},
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	post, lookupErr := st.PostByObjectURI(context.Background(), "https://remote.example/users/carol/posts/1/")
	if lookupErr != nil {
		t.Fatalf("PostByObjectURI failed: %v", lookupErr)
	}
	if post != nil {
		t.Fatal("forged create must not store a post")
	}
}

func TestHandleCreateStoresPostAndTimelines(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	actorURI := "https://remote.example/users/carol/"
	fetcher := &stubFetcher{docs: map[string]map[string]any{
		actorURI: remoteActorDoc(actorURI, "carol"),
	}}
	svc, identities := newService(t, cfg, st, nil, fetcher)

	// A local user follows carol before her first post arrives.
	bob := testsupport.NewLocalIdentity(t, st, "roost.test", "bob")
	carol, err := identities.ResolveOrCreate(ctx, actorURI)
	if err != nil {
		t.Fatalf("ResolveOrCreate failed: %v", err)
	}
	if err := st.CreateFollow(ctx, bob.ID, carol.ID); err != nil {
		t.Fatalf("CreateFollow failed: %v", err)
	}

	objectURI := actorURI + "posts/1/"
	err = svc.HandleCreate(ctx, map[string]any{
		"type":  "Create",
		"actor": actorURI,
		"object": map[string]any{
			"type":         "Note",
			"id":           objectURI,
			"attributedTo": actorURI,
			"content":      "hello from afar",
			"published":    "2026-08-30T12:00:00Z",
		},
	})
	if err != nil {
		t.Fatalf("HandleCreate failed: %v", err)
	}

	post, err := st.PostByObjectURI(ctx, objectURI)
	if err != nil {
		t.Fatalf("PostByObjectURI failed: %v", err)
	}
	if post == nil || post.Content != "hello from afar" {
		t.Fatalf("unexpected post: %#v", post)
	}
	if post.State != activities.PostStateFannedOut || post.StateReady {
		t.Fatalf("inbound post must be settled, got %#v", post.Scheduling)
	}

	timeline, err := st.TimelineForIdentity(ctx, bob.ID, 10)
	if err != nil {
		t.Fatalf("TimelineForIdentity failed: %v", err)
	}
	if len(timeline) != 1 || timeline[0].SubjectPostID != post.ID {
		t.Fatalf("unexpected timeline: %#v", timeline)
	}
}

func TestHandleCreateRedeliveryDoesNotDuplicate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	actorURI := "https://remote.example/users/carol/"
	fetcher := &stubFetcher{docs: map[string]map[string]any{
		actorURI: remoteActorDoc(actorURI, "carol"),
	}}
	svc, _ := newService(t, cfg, st, nil, fetcher)

	activity := map[string]any{
		"type":  "Create",
		"actor": actorURI,
		"object": map[string]any{
			"type":         "Note",
			"id":           actorURI + "posts/1/",
			"attributedTo": actorURI,
			"content":      "delivered twice",
		},
	}
	for range 2 {
		if err := svc.HandleCreate(ctx, activity); err != nil {
			t.Fatalf("HandleCreate failed: %v", err)
		}
	}

	post, err := st.PostByObjectURI(ctx, actorURI+"posts/1/")
	if err != nil {
		t.Fatalf("PostByObjectURI failed: %v", err)
	}
	if post == nil {
		t.Fatal("expected post to exist")
	}

	carol, err := st.IdentityByActorURI(ctx, actorURI)
	if err != nil {
		t.Fatalf("IdentityByActorURI failed: %v", err)
	}
	posts, err := st.PostsByAuthor(ctx, carol.ID)
	if err != nil {
		t.Fatalf("PostsByAuthor failed: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("expected exactly one post, got %d", len(posts))
	}
}

func TestHandleDeleteUnknownObjectIsNoop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	svc, _ := newService(t, cfg, st, nil, nil)

	err := svc.HandleDelete(context.Background(), map[string]any{
		"type":   "Delete",
		"actor":  "https://remote.example/users/carol/",
		"object": "https://remote.example/users/carol/posts/unknown/",
	})
	if err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
}

func TestHandleDeleteRejectsWrongActor(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	svc, _ := newService(t, cfg, st, nil, nil)

	alice := testsupport.NewLocalIdentity(t, st, "roost.test", "alice")
	post := testsupport.NewPost(t, st, alice, "keep me", activities.PostStateFannedOut)
	post.ObjectURI = alice.ActorURI + "posts/1/"
	if err := st.UpdatePost(ctx, post); err != nil {
		t.Fatalf("UpdatePost failed: %v", err)
	}

	err := svc.HandleDelete(ctx, map[string]any{
		"type":   "Delete",
		"actor":  "https://remote.example/users/mallory/",
		"object": post.ObjectURI,
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	still, err := st.PostByObjectURI(ctx, post.ObjectURI)
	if err != nil {
		t.Fatalf("PostByObjectURI failed: %v", err)
	}
	if still == nil {
		t.Fatal("post must survive a forged delete")
	}
}

func TestHandleDeleteRemovesPost(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	svc, _ := newService(t, cfg, st, nil, nil)

	alice := testsupport.NewLocalIdentity(t, st, "roost.test", "alice")
	bob := testsupport.NewLocalIdentity(t, st, "roost.test", "bob")
	post := testsupport.NewPost(t, st, alice, "short lived", activities.PostStateFannedOut)
	post.ObjectURI = alice.ActorURI + "posts/1/"
	if err := st.UpdatePost(ctx, post); err != nil {
		t.Fatalf("UpdatePost failed: %v", err)
	}
	if _, err := st.AddTimelineEvent(ctx, bob.ID, "post", post.ID); err != nil {
		t.Fatalf("AddTimelineEvent failed: %v", err)
	}

	err := svc.HandleDelete(ctx, map[string]any{
		"type":  "Delete",
		"actor": alice.ActorURI,
		"object": map[string]any{
			"type": "Tombstone",
			"id":   post.ObjectURI,
		},
	})
	if err != nil {
		t.Fatalf("HandleDelete failed: %v", err)
	}

	gone, err := st.PostByObjectURI(ctx, post.ObjectURI)
	if err != nil {
		t.Fatalf("PostByObjectURI failed: %v", err)
	}
	if gone != nil {
		t.Fatal("post should be deleted")
	}
	timeline, err := st.TimelineForIdentity(ctx, bob.ID, 10)
	if err != nil {
		t.Fatalf("TimelineForIdentity failed: %v", err)
	}
	if len(timeline) != 0 {
		t.Fatalf("timeline events should cascade: %#v", timeline)
	}
}

func TestOutboundInboundRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	alice := testsupport.NewLocalIdentity(t, st, "roost.test", "alice")
	fetcher := &stubFetcher{docs: map[string]map[string]any{
		alice.ActorURI: remoteActorDoc(alice.ActorURI, "alice"),
	}}
	svc, _ := newService(t, cfg, st, nil, fetcher)

	post, err := svc.CreateLocal(ctx, alice, "round and round", "")
	if err != nil {
		t.Fatalf("CreateLocal failed: %v", err)
	}

	// The envelope this server would deliver comes straight back, as
	// happens when a recipient shares our domain view of the post.
	envelope := activities.ToCreateAP(post, alice)
	if err := svc.HandleCreate(ctx, envelope); err != nil {
		t.Fatalf("HandleCreate failed: %v", err)
	}

	posts, err := st.PostsByAuthor(ctx, alice.ID)
	if err != nil {
		t.Fatalf("PostsByAuthor failed: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("round trip duplicated the post: %d rows", len(posts))
	}
	if posts[0].ObjectURI != post.ObjectURI {
		t.Fatalf("object URI changed: %q vs %q", posts[0].ObjectURI, post.ObjectURI)
	}
}
