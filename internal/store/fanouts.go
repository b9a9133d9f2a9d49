package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const fanOutColumns = "f.id, f.identity_id, f.type, f.subject_post_id, f.created_at, f.updated_at, f.state, f.state_ready, f.state_locked_until, f.state_changed, f.attempts, f.last_error"

// CreateFanOut inserts one delivery task for one recipient in the given
// scheduling state. The uniqueness key (identity, type, subject) makes
// re-running a crashed fan-out handler idempotent: duplicates are ignored
// and reported via the created return.
func (s *Store) CreateFanOut(ctx context.Context, identityID int64, fanType FanOutType, subjectPostID int64, state string) (bool, error) {
	now := formatTime(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO fan_outs (
            identity_id, type, subject_post_id, created_at, updated_at,
            state, state_ready, state_changed
        ) VALUES (?, ?, ?, ?, ?, ?, 1, ?)
        ON CONFLICT (identity_id, type, subject_post_id) DO NOTHING`,
		identityID, string(fanType), subjectPostID, now, now, state, now,
	)
	if err != nil {
		return false, fmt.Errorf("insert fan-out: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// FanOutByID fetches a fan-out with its recipient and subject post (author
// included) resolved. Returns nil when absent.
func (s *Store) FanOutByID(ctx context.Context, id int64) (*FanOut, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+fanOutColumns+`, `+joinedRecipientColumns+`
         FROM fan_outs f JOIN identities r ON r.id = f.identity_id
         WHERE f.id = ?`,
		id,
	)
	fanOut, err := scanFanOut(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get fan-out: %w", err)
	}

	subject, err := s.PostByID(ctx, fanOut.SubjectPostID)
	if err != nil {
		return nil, err
	}
	fanOut.Subject = subject
	return fanOut, nil
}

// FanOutsForPost returns every fan-out referencing the given post.
func (s *Store) FanOutsForPost(ctx context.Context, postID int64) ([]*FanOut, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+fanOutColumns+`, `+joinedRecipientColumns+`
         FROM fan_outs f JOIN identities r ON r.id = f.identity_id
         WHERE f.subject_post_id = ?
         ORDER BY f.id`,
		postID,
	)
	if err != nil {
		return nil, fmt.Errorf("query fan-outs for post: %w", err)
	}
	defer rows.Close()

	var fanOuts []*FanOut
	for rows.Next() {
		fanOut, err := scanFanOut(rows)
		if err != nil {
			return nil, err
		}
		fanOuts = append(fanOuts, fanOut)
	}
	return fanOuts, rows.Err()
}

const joinedRecipientColumns = "r.id, r.username, r.domain, r.actor_uri, r.inbox_uri, r.public_url, r.local, r.created_at, r.updated_at, r.state, r.state_ready, r.state_locked_until, r.state_changed, r.attempts, r.last_error"

func scanFanOut(scanner interface{ Scan(dest ...any) error }) (*FanOut, error) {
	var (
		id         int64
		identityID int64
		fanType    string
		subjectID  int64
		createdRaw string
		updatedRaw string
		state      string
		stateReady int
		lockedRaw  sql.NullString
		changedRaw string
		attempts   int
		lastError  sql.NullString

		rID         int64
		rUsername   string
		rDomain     string
		rActorURI   string
		rInboxURI   sql.NullString
		rPublicURL  sql.NullString
		rLocal      int
		rCreatedRaw string
		rUpdatedRaw string
		rState      string
		rReady      int
		rLockedRaw  sql.NullString
		rChangedRaw string
		rAttempts   int
		rLastError  sql.NullString
	)
	if err := scanner.Scan(
		&id, &identityID, &fanType, &subjectID, &createdRaw, &updatedRaw,
		&state, &stateReady, &lockedRaw, &changedRaw, &attempts, &lastError,
		&rID, &rUsername, &rDomain, &rActorURI, &rInboxURI, &rPublicURL, &rLocal,
		&rCreatedRaw, &rUpdatedRaw, &rState, &rReady, &rLockedRaw, &rChangedRaw,
		&rAttempts, &rLastError,
	); err != nil {
		return nil, err
	}

	fanOut := &FanOut{
		ID:            id,
		IdentityID:    identityID,
		Type:          FanOutType(fanType),
		SubjectPostID: subjectID,
	}
	fanOut.Scheduling = scanScheduling(state, stateReady, lockedRaw, changedRaw, attempts, lastError)
	if created, err := parseTimeString(createdRaw); err == nil {
		fanOut.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		fanOut.UpdatedAt = updated
	}

	recipient := &Identity{
		ID:        rID,
		Username:  rUsername,
		Domain:    rDomain,
		ActorURI:  rActorURI,
		InboxURI:  rInboxURI.String,
		PublicURL: rPublicURL.String,
		Local:     rLocal != 0,
	}
	recipient.Scheduling = scanScheduling(rState, rReady, rLockedRaw, rChangedRaw, rAttempts, rLastError)
	if created, err := parseTimeString(rCreatedRaw); err == nil {
		recipient.CreatedAt = created
	}
	if updated, err := parseTimeString(rUpdatedRaw); err == nil {
		recipient.UpdatedAt = updated
	}
	fanOut.Recipient = recipient
	return fanOut, nil
}
