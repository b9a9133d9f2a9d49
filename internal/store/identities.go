package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const identityColumns = "id, username, domain, actor_uri, inbox_uri, public_url, local, created_at, updated_at, state, state_ready, state_locked_until, state_changed, attempts, last_error"

// CreateIdentity inserts an identity in the given scheduling state. Local
// identities are typically created directly in a settled state; remote ones
// enter their graph's initial state so the scheduler refreshes them.
func (s *Store) CreateIdentity(ctx context.Context, identity *Identity, state string, ready bool) (*Identity, error) {
	if identity == nil {
		return nil, errors.New("identity is nil")
	}
	now := time.Now().UTC()
	timestamp := formatTime(now)

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO identities (
            username, domain, actor_uri, inbox_uri, public_url, local,
            created_at, updated_at, state, state_ready, state_changed
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		identity.Username,
		identity.Domain,
		identity.ActorURI,
		nullableString(identity.InboxURI),
		nullableString(identity.PublicURL),
		boolToInt(identity.Local),
		timestamp,
		timestamp,
		state,
		boolToInt(ready),
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert identity: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.IdentityByID(ctx, id)
}

// IdentityByID fetches an identity by identifier. Returns nil when absent.
func (s *Store) IdentityByID(ctx context.Context, id int64) (*Identity, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+identityColumns+` FROM identities WHERE id = ?`, id)
	identity, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return identity, nil
}

// IdentityByActorURI fetches an identity by its canonical actor URI.
// Returns nil when absent.
func (s *Store) IdentityByActorURI(ctx context.Context, actorURI string) (*Identity, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+identityColumns+` FROM identities WHERE actor_uri = ?`, actorURI)
	identity, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get identity by actor uri: %w", err)
	}
	return identity, nil
}

// UpdateIdentityProfile persists refreshed profile fields for an identity.
func (s *Store) UpdateIdentityProfile(ctx context.Context, identity *Identity) error {
	if identity == nil {
		return errors.New("identity is nil")
	}
	identity.UpdatedAt = time.Now().UTC()
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE identities
         SET username = ?, domain = ?, inbox_uri = ?, public_url = ?, updated_at = ?
         WHERE id = ?`,
		identity.Username,
		identity.Domain,
		nullableString(identity.InboxURI),
		nullableString(identity.PublicURL),
		formatTime(identity.UpdatedAt),
		identity.ID,
	); err != nil {
		return fmt.Errorf("update identity: %w", err)
	}
	return nil
}

// ListIdentities returns identities filtered by locality.
func (s *Store) ListIdentities(ctx context.Context, localOnly bool) ([]*Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities`
	if localOnly {
		query += ` WHERE local = 1`
	}
	query += ` ORDER BY domain, username`

	rows, err := s.db.QueryContext(ensureContext(ctx), query)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var identities []*Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		identities = append(identities, identity)
	}
	return identities, rows.Err()
}

func scanIdentity(scanner interface{ Scan(dest ...any) error }) (*Identity, error) {
	var (
		id         int64
		username   string
		domain     string
		actorURI   string
		inboxURI   sql.NullString
		publicURL  sql.NullString
		local      int
		createdRaw string
		updatedRaw string
		state      string
		stateReady int
		lockedRaw  sql.NullString
		changedRaw string
		attempts   int
		lastError  sql.NullString
	)
	if err := scanner.Scan(
		&id, &username, &domain, &actorURI, &inboxURI, &publicURL, &local,
		&createdRaw, &updatedRaw, &state, &stateReady, &lockedRaw, &changedRaw,
		&attempts, &lastError,
	); err != nil {
		return nil, err
	}

	identity := &Identity{
		ID:        id,
		Username:  username,
		Domain:    domain,
		ActorURI:  actorURI,
		InboxURI:  inboxURI.String,
		PublicURL: publicURL.String,
		Local:     local != 0,
	}
	identity.Scheduling = scanScheduling(state, stateReady, lockedRaw, changedRaw, attempts, lastError)
	if created, err := parseTimeString(createdRaw); err == nil {
		identity.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		identity.UpdatedAt = updated
	}
	return identity, nil
}

func scanScheduling(state string, ready int, lockedRaw sql.NullString, changedRaw string, attempts int, lastError sql.NullString) Scheduling {
	sched := Scheduling{
		State:      state,
		StateReady: ready != 0,
		Attempts:   attempts,
		LastError:  lastError.String,
	}
	if lockedRaw.Valid {
		if locked, err := parseTimeString(lockedRaw.String); err == nil {
			sched.StateLockedUntil = &locked
		}
	}
	if changed, err := parseTimeString(changedRaw); err == nil {
		sched.StateChanged = changed
	}
	return sched
}
