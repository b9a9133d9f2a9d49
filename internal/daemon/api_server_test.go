package daemon_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"roost/internal/api"
	"roost/internal/config"
	"roost/internal/store"
	"roost/internal/testsupport"
)

func startDaemon(t *testing.T, fixture *daemonFixture) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := fixture.daemon.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	addr := fixture.daemon.Addr()
	if addr == "" {
		t.Fatal("daemon did not bind an api address")
	}
	return "http://" + addr
}

func getJSON(t *testing.T, url string, out any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

func TestAPIStatusAndQueueEndpoints(t *testing.T) {
	fixture := newDaemonFixture(t, nil)
	alice := testsupport.NewLocalIdentity(t, fixture.store, fixture.cfg.Server.Domain, "alice")
	testsupport.NewPost(t, fixture.store, alice, "hello", "fanned_out")

	base := startDaemon(t, fixture)

	var status api.DaemonStatus
	getJSON(t, base+"/api/status", &status)
	if !status.Running {
		t.Fatal("expected running status")
	}
	if status.Domain != fixture.cfg.Server.Domain {
		t.Fatalf("unexpected domain %q", status.Domain)
	}
	totals := map[string]int{}
	for _, kind := range status.Kinds {
		totals[kind.Kind] = kind.Total
	}
	if totals["post"] != 1 || totals["identity"] != 1 {
		t.Fatalf("unexpected kind totals %v", totals)
	}

	var queue api.QueueListResponse
	getJSON(t, base+"/api/queue?kind=post", &queue)
	if len(queue.Entries) != 1 {
		t.Fatalf("expected 1 post entry, got %d", len(queue.Entries))
	}
	if queue.Entries[0].State != "fanned_out" {
		t.Fatalf("unexpected state %q", queue.Entries[0].State)
	}

	resp, err := http.Get(base + "/api/queue?kind=bogus")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown kind, got %d", resp.StatusCode)
	}
}

func TestAPIQueueRetryRequiresToken(t *testing.T) {
	fixture := newDaemonFixture(t, func(cfg *config.Config) {
		cfg.Server.APIToken = "sekrit"
	})
	alice := testsupport.NewLocalIdentity(t, fixture.store, fixture.cfg.Server.Domain, "alice")
	post := testsupport.NewPost(t, fixture.store, alice, "stuck", "new")
	if err := fixture.store.Park(context.Background(), store.KindPost, post.ID, "boom"); err != nil {
		t.Fatalf("Park: %v", err)
	}

	base := startDaemon(t, fixture)

	resp, err := http.Post(base+"/api/queue/retry", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
	var denied api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&denied); err != nil {
		t.Fatalf("decode 401 body: %v", err)
	}
	if denied.Error != "unauthorized" {
		t.Fatalf("unexpected 401 body %+v", denied)
	}

	wrong, err := http.NewRequest(http.MethodPost, base+"/api/queue/retry", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	wrong.Header.Set("Authorization", "Bearer guess")
	wrongResp, err := http.DefaultClient.Do(wrong)
	if err != nil {
		t.Fatalf("POST with wrong token: %v", err)
	}
	wrongResp.Body.Close()
	if wrongResp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", wrongResp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodPost, base+"/api/queue/retry?kind=post", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Authorization", "Bearer sekrit")
	authed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST with token: %v", err)
	}
	defer authed.Body.Close()
	if authed.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", authed.StatusCode)
	}
	var retried api.RetryResponse
	if err := json.NewDecoder(authed.Body).Decode(&retried); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if retried.Resurrected != 1 {
		t.Fatalf("expected 1 resurrected, got %d", retried.Resurrected)
	}
}

func TestInboxAcceptsCreateActivity(t *testing.T) {
	fixture := newDaemonFixture(t, nil)

	actorURI := "https://remote.example/users/bob/"
	fixture.fetcher.docs[actorURI] = map[string]any{
		"id":                actorURI,
		"type":              "Person",
		"preferredUsername": "bob",
		"inbox":             actorURI + "inbox/",
		"url":               "https://remote.example/@bob/",
	}

	base := startDaemon(t, fixture)

	activity := map[string]any{
		"type":  "Create",
		"actor": actorURI,
		"object": map[string]any{
			"type":         "Note",
			"id":           "https://remote.example/@bob/posts/1/",
			"attributedTo": actorURI,
			"content":      "hello from afar",
		},
	}
	body, err := json.Marshal(activity)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(base+"/inbox", "application/activity+json", strings.NewReader(string(body)))
	if err != nil {
		t.Fatalf("POST /inbox: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	post, err := fixture.store.PostByObjectURI(context.Background(), "https://remote.example/@bob/posts/1/")
	if err != nil {
		t.Fatalf("PostByObjectURI: %v", err)
	}
	if post == nil {
		t.Fatal("expected inbound post to be stored")
	}
	if post.Author == nil || post.Author.Username != "bob" {
		t.Fatalf("unexpected author %+v", post.Author)
	}
}

func TestAPITimelineEndpoint(t *testing.T) {
	fixture := newDaemonFixture(t, nil)
	ctx := context.Background()

	alice := testsupport.NewLocalIdentity(t, fixture.store, fixture.cfg.Server.Domain, "alice")
	bob := testsupport.NewLocalIdentity(t, fixture.store, fixture.cfg.Server.Domain, "bob")
	post := testsupport.NewPost(t, fixture.store, alice, "hello bob", "fanned_out")
	if _, err := fixture.store.AddTimelineEvent(ctx, bob.ID, "post", post.ID); err != nil {
		t.Fatalf("AddTimelineEvent: %v", err)
	}

	base := startDaemon(t, fixture)

	var timeline api.TimelineResponse
	getJSON(t, base+"/api/timeline?identity=bob", &timeline)
	if len(timeline.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(timeline.Events))
	}
	if timeline.Events[0].Content != "hello bob" {
		t.Fatalf("unexpected content %q", timeline.Events[0].Content)
	}

	resp, err := http.Get(base + "/api/timeline?identity=nobody")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown identity, got %d", resp.StatusCode)
	}
}

func TestInboxRejectsBadDocuments(t *testing.T) {
	fixture := newDaemonFixture(t, nil)
	base := startDaemon(t, fixture)

	cases := []struct {
		name string
		body string
		want int
	}{
		{"not json", "{", http.StatusBadRequest},
		{"actor mismatch", `{"type":"Create","actor":"https://a.example/u/x/","object":{"id":"https://b.example/p/1/","attributedTo":"https://b.example/u/y/"}}`, http.StatusBadRequest},
		{"unsupported type", `{"type":"Like","actor":"https://a.example/u/x/"}`, http.StatusAccepted},
	}
	for _, tc := range cases {
		resp, err := http.Post(base+"/inbox", "application/activity+json", strings.NewReader(tc.body))
		if err != nil {
			t.Fatalf("%s: POST: %v", tc.name, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, resp.StatusCode)
		}
	}
}

func TestInboxDeleteRemovesPost(t *testing.T) {
	fixture := newDaemonFixture(t, nil)

	actorURI := "https://remote.example/users/bob/"
	fixture.fetcher.docs[actorURI] = map[string]any{
		"id":                actorURI,
		"type":              "Person",
		"preferredUsername": "bob",
		"inbox":             actorURI + "inbox/",
		"url":               "https://remote.example/@bob/",
	}

	base := startDaemon(t, fixture)

	objectURI := "https://remote.example/@bob/posts/9/"
	create := fmt.Sprintf(`{"type":"Create","actor":%[1]q,"object":{"type":"Note","id":%[2]q,"attributedTo":%[1]q,"content":"soon gone"}}`, actorURI, objectURI)
	resp, err := http.Post(base+"/inbox", "application/activity+json", strings.NewReader(create))
	if err != nil {
		t.Fatalf("POST create: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("create: expected 202, got %d", resp.StatusCode)
	}

	remove := fmt.Sprintf(`{"type":"Delete","actor":%q,"object":{"type":"Tombstone","id":%q}}`, actorURI, objectURI)
	resp, err = http.Post(base+"/inbox", "application/activity+json", strings.NewReader(remove))
	if err != nil {
		t.Fatalf("POST delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("delete: expected 202, got %d", resp.StatusCode)
	}

	post, err := fixture.store.PostByObjectURI(context.Background(), objectURI)
	if err != nil {
		t.Fatalf("PostByObjectURI: %v", err)
	}
	if post != nil {
		t.Fatal("expected post to be removed")
	}
}
