package api

import (
	"context"

	"roost/internal/store"
)

// TimelineReader abstracts the timeline persistence interactions the API
// needs.
type TimelineReader interface {
	TimelineForIdentity(ctx context.Context, identityID int64, limit int) ([]*store.TimelineEvent, error)
	PostByID(ctx context.Context, id int64) (*store.Post, error)
}

// TimelineService resolves timeline events into API DTOs.
type TimelineService struct {
	store TimelineReader
}

// NewTimelineService constructs a TimelineService around the provided
// reader.
func NewTimelineService(reader TimelineReader) *TimelineService {
	if reader == nil {
		return nil
	}
	return &TimelineService{store: reader}
}

// For returns the newest timeline events for one identity with their
// subject posts resolved.
func (s *TimelineService) For(ctx context.Context, identity *store.Identity, limit int) ([]TimelineEvent, error) {
	if s == nil || s.store == nil || identity == nil {
		return nil, nil
	}
	events, err := s.store.TimelineForIdentity(ctx, identity.ID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]TimelineEvent, 0, len(events))
	for _, event := range events {
		dto := TimelineEvent{
			ID:     event.ID,
			Type:   event.Type,
			PostID: event.SubjectPostID,
		}
		if !event.CreatedAt.IsZero() {
			dto.CreatedAt = event.CreatedAt.UTC().Format(dateTimeFormat)
		}
		post, err := s.store.PostByID(ctx, event.SubjectPostID)
		if err != nil {
			return nil, err
		}
		if post != nil {
			dto.ObjectURI = post.ObjectURI
			dto.Content = post.Content
			if post.Author != nil {
				dto.Author = post.Author.ActorURI
			}
		}
		out = append(out, dto)
	}
	return out, nil
}
