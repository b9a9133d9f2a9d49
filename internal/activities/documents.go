package activities

import (
	"time"

	"roost/internal/store"
)

// Activity type names handled by the inbox dispatcher.
const (
	ActivityCreate = "Create"
	ActivityDelete = "Delete"
)

// ToAP renders a post as an ActivityPub Note document.
func ToAP(post *store.Post, author *store.Identity) map[string]any {
	doc := map[string]any{
		"type":         "Note",
		"id":           post.ObjectURI,
		"published":    post.Published.UTC().Format(time.RFC3339),
		"attributedTo": author.ActorURI,
		"content":      post.Content,
		"to":           "as:Public",
		"as:sensitive": post.Sensitive,
		"url":          post.URL,
	}
	if post.Summary != "" {
		doc["summary"] = post.Summary
	}
	return doc
}

// ToCreateAP wraps a post's Note in the Create envelope delivered to
// inboxes.
func ToCreateAP(post *store.Post, author *store.Identity) map[string]any {
	return map[string]any{
		"type":   ActivityCreate,
		"id":     post.ObjectURI + "#create",
		"actor":  author.ActorURI,
		"object": ToAP(post, author),
	}
}
