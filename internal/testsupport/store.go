package testsupport

import (
	"context"
	"fmt"
	"testing"

	"roost/internal/config"
	"roost/internal/store"
)

// MustOpenStore opens a store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewLocalIdentity creates a local identity in a settled state.
func NewLocalIdentity(t testing.TB, st *store.Store, domain, username string) *store.Identity {
	t.Helper()

	identity, err := st.CreateIdentity(context.Background(), &store.Identity{
		Username:  username,
		Domain:    domain,
		ActorURI:  fmt.Sprintf("https://%s/@%s/", domain, username),
		InboxURI:  fmt.Sprintf("https://%s/@%s/inbox/", domain, username),
		PublicURL: fmt.Sprintf("https://%s/@%s/", domain, username),
		Local:     true,
	}, "updated", false)
	if err != nil {
		t.Fatalf("store.CreateIdentity: %v", err)
	}
	return identity
}

// NewRemoteIdentity creates a remote identity in a settled state.
func NewRemoteIdentity(t testing.TB, st *store.Store, domain, username string) *store.Identity {
	t.Helper()

	identity, err := st.CreateIdentity(context.Background(), &store.Identity{
		Username:  username,
		Domain:    domain,
		ActorURI:  fmt.Sprintf("https://%s/users/%s/", domain, username),
		InboxURI:  fmt.Sprintf("https://%s/users/%s/inbox/", domain, username),
		PublicURL: fmt.Sprintf("https://%s/@%s/", domain, username),
	}, "updated", false)
	if err != nil {
		t.Fatalf("store.CreateIdentity: %v", err)
	}
	return identity
}

// NewPost creates a post by the given author in the given scheduling state.
func NewPost(t testing.TB, st *store.Store, author *store.Identity, content, state string) *store.Post {
	t.Helper()

	post, err := st.CreatePost(context.Background(), &store.Post{
		AuthorID:   author.ID,
		Local:      author.Local,
		Visibility: store.VisibilityPublic,
		Content:    content,
	}, state, true)
	if err != nil {
		t.Fatalf("store.CreatePost: %v", err)
	}
	return post
}
