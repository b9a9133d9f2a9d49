package store

import (
	"context"
	"fmt"
	"time"
)

// CreateFollow records that source follows target. Duplicate follows are
// ignored so replayed federation activity stays idempotent.
func (s *Store) CreateFollow(ctx context.Context, sourceID, targetID int64) error {
	if _, err := s.execWithRetry(
		ctx,
		`INSERT INTO follows (source_id, target_id, created_at)
         VALUES (?, ?, ?)
         ON CONFLICT (source_id, target_id) DO NOTHING`,
		sourceID, targetID, formatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("insert follow: %w", err)
	}
	return nil
}

// RemoveFollow deletes a follow relationship if present.
func (s *Store) RemoveFollow(ctx context.Context, sourceID, targetID int64) error {
	if _, err := s.execWithRetry(
		ctx,
		`DELETE FROM follows WHERE source_id = ? AND target_id = ?`,
		sourceID, targetID,
	); err != nil {
		return fmt.Errorf("delete follow: %w", err)
	}
	return nil
}

// InboundFollows returns every follow targeting the given identity, joined
// with the locality of both sides. Fan-out only materializes deliveries
// where at least one side is local.
func (s *Store) InboundFollows(ctx context.Context, targetID int64) ([]InboundFollow, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT f.source_id, src.local, tgt.local
         FROM follows f
         JOIN identities src ON src.id = f.source_id
         JOIN identities tgt ON tgt.id = f.target_id
         WHERE f.target_id = ?
         ORDER BY f.id`,
		targetID,
	)
	if err != nil {
		return nil, fmt.Errorf("query inbound follows: %w", err)
	}
	defer rows.Close()

	var follows []InboundFollow
	for rows.Next() {
		var (
			follow      InboundFollow
			sourceLocal int
			targetLocal int
		)
		if err := rows.Scan(&follow.SourceID, &sourceLocal, &targetLocal); err != nil {
			return nil, err
		}
		follow.SourceLocal = sourceLocal != 0
		follow.TargetLocal = targetLocal != 0
		follows = append(follows, follow)
	}
	return follows, rows.Err()
}

// LocalFollowerIDs returns the identifiers of local identities following the
// given identity. Used to surface remote posts on local timelines.
func (s *Store) LocalFollowerIDs(ctx context.Context, targetID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT f.source_id
         FROM follows f
         JOIN identities src ON src.id = f.source_id
         WHERE f.target_id = ? AND src.local = 1
         ORDER BY f.id`,
		targetID,
	)
	if err != nil {
		return nil, fmt.Errorf("query local followers: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
