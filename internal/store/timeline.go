package store

import (
	"context"
	"fmt"
	"time"
)

// AddTimelineEvent records a post on a local identity's timeline. Adding the
// same (identity, type, post) twice is a no-op, so delivery handlers can be
// retried safely. Returns whether a new event was written.
func (s *Store) AddTimelineEvent(ctx context.Context, identityID int64, eventType string, subjectPostID int64) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO timeline_events (identity_id, type, subject_post_id, created_at)
         VALUES (?, ?, ?, ?)
         ON CONFLICT (identity_id, type, subject_post_id) DO NOTHING`,
		identityID, eventType, subjectPostID, formatTime(time.Now()),
	)
	if err != nil {
		return false, fmt.Errorf("insert timeline event: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// TimelineForIdentity returns the newest events for one identity, most
// recent first. Subject posts are resolved by the caller.
func (s *Store) TimelineForIdentity(ctx context.Context, identityID int64, limit int) ([]*TimelineEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT id, identity_id, type, subject_post_id, created_at
         FROM timeline_events
         WHERE identity_id = ?
         ORDER BY id DESC
         LIMIT ?`,
		identityID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query timeline: %w", err)
	}
	defer rows.Close()

	var events []*TimelineEvent
	for rows.Next() {
		var (
			event      TimelineEvent
			createdRaw string
		)
		if err := rows.Scan(&event.ID, &event.IdentityID, &event.Type, &event.SubjectPostID, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan timeline event: %w", err)
		}
		if created, err := parseTimeString(createdRaw); err == nil {
			event.CreatedAt = created
		}
		events = append(events, &event)
	}
	return events, rows.Err()
}
