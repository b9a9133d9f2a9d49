package activities

import (
	"context"
	"fmt"

	"roost/internal/logging"
	"roost/internal/services"
	"roost/internal/store"
)

// HandleCreate processes an inbound Create activity. The actor must match
// the object's attributedTo; anything else is a forgery attempt and is
// rejected without touching the store. Posts are created or updated by
// their canonical object URI, so redelivery is harmless.
func (s *Service) HandleCreate(ctx context.Context, data map[string]any) error {
	actor, _ := data["actor"].(string)
	object, _ := data["object"].(map[string]any)
	if actor == "" || object == nil {
		return services.Wrap(services.ErrValidation, "activities", "inbound_create", "activity missing actor or object", nil)
	}
	attributedTo, _ := object["attributedTo"].(string)
	if actor != attributedTo {
		return services.Wrap(services.ErrValidation, "activities", "inbound_create", fmt.Sprintf("actor %q does not match attributedTo %q", actor, attributedTo), nil)
	}
	objectURI, _ := object["id"].(string)
	if objectURI == "" {
		return services.Wrap(services.ErrValidation, "activities", "inbound_create", "object has no id", nil)
	}

	author, err := s.identities.ResolveOrCreate(ctx, actor)
	if err != nil {
		return err
	}

	existing, err := s.store.PostByObjectURI(ctx, objectURI)
	if err != nil {
		return err
	}
	var post *store.Post
	if existing != nil {
		if existing.AuthorID != author.ID {
			return services.Wrap(services.ErrValidation, "activities", "inbound_create", fmt.Sprintf("post %s belongs to another author", objectURI), nil)
		}
		if content, ok := object["content"].(string); ok {
			existing.Content = content
		}
		if summary, ok := object["summary"].(string); ok {
			existing.Summary = summary
			existing.Sensitive = summary != ""
		}
		if err := s.store.UpdatePost(ctx, existing); err != nil {
			return err
		}
		post = existing
	} else {
		post, err = s.createRemotePost(ctx, author, object)
		if err != nil {
			return err
		}
	}

	followerIDs, err := s.store.LocalFollowerIDs(ctx, author.ID)
	if err != nil {
		return err
	}
	for _, followerID := range followerIDs {
		if _, err := s.store.AddTimelineEvent(ctx, followerID, string(store.FanOutPost), post.ID); err != nil {
			return err
		}
	}

	s.logger.Info("inbound post stored",
		logging.Int64(logging.FieldEntityID, post.ID),
		logging.String("object_uri", objectURI),
		logging.Int("local_followers", len(followerIDs)),
		logging.String(logging.FieldEventType, "inbound_create"),
	)
	return nil
}

// HandleDelete processes an inbound Delete activity. Deletes for unknown
// objects are silently ignored: servers broadcast deletions to peers that
// may never have seen the post.
func (s *Service) HandleDelete(ctx context.Context, data map[string]any) error {
	actor, _ := data["actor"].(string)
	if actor == "" {
		return services.Wrap(services.ErrValidation, "activities", "inbound_delete", "activity missing actor", nil)
	}
	objectURI := deleteObjectURI(data["object"])
	if objectURI == "" {
		return services.Wrap(services.ErrValidation, "activities", "inbound_delete", "activity missing object id", nil)
	}

	post, err := s.store.PostByObjectURI(ctx, objectURI)
	if err != nil {
		return err
	}
	if post == nil {
		return nil
	}
	if post.Author == nil || post.Author.ActorURI != actor {
		return services.Wrap(services.ErrValidation, "activities", "inbound_delete", fmt.Sprintf("actor %q may not delete %s", actor, objectURI), nil)
	}

	if _, err := s.store.DeletePost(ctx, post.ID); err != nil {
		return err
	}
	s.logger.Info("inbound post deleted",
		logging.String("object_uri", objectURI),
		logging.String(logging.FieldEventType, "inbound_delete"),
	)
	return nil
}

// deleteObjectURI accepts both Delete shapes: a bare object URI string or
// an embedded object document.
func deleteObjectURI(object any) string {
	switch v := object.(type) {
	case string:
		return v
	case map[string]any:
		uri, _ := v["id"].(string)
		return uri
	default:
		return ""
	}
}
