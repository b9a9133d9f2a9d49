package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ReadySet returns up to limit entities of the given kind currently eligible
// for claiming. Terminal states are excluded so finished entities never
// re-enter scheduling regardless of their flag values. Results are ordered
// oldest first (by lock expiry, then last state change) to avoid starvation.
func (s *Store) ReadySet(ctx context.Context, kind Kind, terminal []string, limit int) ([]ScheduledRow, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	now := formatTime(time.Now())
	query := `SELECT id, state, attempts FROM ` + table + `
        WHERE state_ready = 1 AND (state_locked_until IS NULL OR state_locked_until <= ?)`
	args := []any{now}
	if len(terminal) > 0 {
		query += ` AND state NOT IN (` + makePlaceholders(len(terminal)) + `)`
		for _, state := range terminal {
			args = append(args, state)
		}
	}
	query += ` ORDER BY COALESCE(state_locked_until, state_changed) ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ready set: %w", err)
	}
	defer rows.Close()

	var candidates []ScheduledRow
	for rows.Next() {
		var row ScheduledRow
		if err := rows.Scan(&row.ID, &row.State, &row.Attempts); err != nil {
			return nil, err
		}
		candidates = append(candidates, row)
	}
	return candidates, rows.Err()
}

// Claim atomically takes ownership of an entity for lockDuration. The UPDATE
// doubles as a compare-and-swap against the current lock: when two workers
// race, exactly one sees RowsAffected 1. A false return means another worker
// won; callers must move on rather than retry.
func (s *Store) Claim(ctx context.Context, kind Kind, id int64, lockDuration time.Duration) (bool, error) {
	table, err := tableFor(kind)
	if err != nil {
		return false, err
	}

	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE `+table+`
         SET state_ready = 0, state_locked_until = ?, attempts = attempts + 1, updated_at = ?
         WHERE id = ? AND state_ready = 1 AND (state_locked_until IS NULL OR state_locked_until <= ?)`,
		formatTime(now.Add(lockDuration)),
		formatTime(now),
		id,
		formatTime(now),
	)
	if err != nil {
		return false, fmt.Errorf("claim %s %d: %w", kind, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim rows affected: %w", err)
	}
	return affected == 1, nil
}

// TransitionState moves an entity to next. Terminal states clear the lock
// and leave the entity permanently unready; non-terminal states reschedule
// no earlier than readyDelay from now. Also used for administrative force
// transitions, so no live claim is required.
func (s *Store) TransitionState(ctx context.Context, kind Kind, id int64, next string, terminal bool, readyDelay time.Duration) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	var res sql.Result
	if terminal {
		res, err = s.execWithRetry(
			ctx,
			`UPDATE `+table+`
             SET state = ?, state_ready = 0, state_locked_until = NULL, state_changed = ?,
                 attempts = 0, last_error = NULL, updated_at = ?
             WHERE id = ?`,
			next, formatTime(now), formatTime(now), id,
		)
	} else {
		res, err = s.execWithRetry(
			ctx,
			`UPDATE `+table+`
             SET state = ?, state_ready = 1, state_locked_until = ?, state_changed = ?,
                 attempts = 0, last_error = NULL, updated_at = ?
             WHERE id = ?`,
			next, formatTime(now.Add(readyDelay)), formatTime(now), formatTime(now), id,
		)
	}
	if err != nil {
		return fmt.Errorf("transition %s %d to %s: %w", kind, id, next, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("transition %s %d to %s: no such entity", kind, id, next)
	}
	return nil
}

// ForceState administratively moves an entity to a state without a claim,
// clearing any live lock. Used by operators and by inbound federation code
// that settles posts it will never fan out itself.
func (s *Store) ForceState(ctx context.Context, kind Kind, id int64, state string, terminal bool) error {
	return s.TransitionState(ctx, kind, id, state, terminal, 0)
}

// ScheduleRetry keeps the entity in its current state and makes it eligible
// again no earlier than readyDelay from now.
func (s *Store) ScheduleRetry(ctx context.Context, kind Kind, id int64, readyDelay time.Duration) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE `+table+`
         SET state_ready = 1, state_locked_until = ?, updated_at = ?
         WHERE id = ?`,
		formatTime(now.Add(readyDelay)), formatTime(now), id,
	); err != nil {
		return fmt.Errorf("schedule retry %s %d: %w", kind, id, err)
	}
	return nil
}

// RecordHandlerFailure notes the error on the row and leaves the lock
// intact: the entity becomes reclaimable when the lock expires, which is the
// sole retry mechanism for failed handlers.
func (s *Store) RecordHandlerFailure(ctx context.Context, kind Kind, id int64, message string) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}

	if _, err := s.execWithRetry(
		ctx,
		`UPDATE `+table+` SET last_error = ?, updated_at = ? WHERE id = ?`,
		nullableString(message), formatTime(time.Now()), id,
	); err != nil {
		return fmt.Errorf("record handler failure %s %d: %w", kind, id, err)
	}
	return nil
}

// ReclaimExpired flips expired locks back to ready so abandoned claims
// (crashed or overran workers) re-enter the scheduling pool.
func (s *Store) ReclaimExpired(ctx context.Context, kind Kind) (int64, error) {
	table, err := tableFor(kind)
	if err != nil {
		return 0, err
	}

	now := formatTime(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE `+table+`
         SET state_ready = 1
         WHERE state_ready = 0 AND state_locked_until IS NOT NULL AND state_locked_until <= ?`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim expired %s locks: %w", kind, err)
	}
	return res.RowsAffected()
}

// Park takes an entity out of scheduling permanently, recording why. Used
// when an entity exceeds the configured attempt limit.
func (s *Store) Park(ctx context.Context, kind Kind, id int64, reason string) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}

	if _, err := s.execWithRetry(
		ctx,
		`UPDATE `+table+`
         SET state_ready = 0, state_locked_until = NULL, last_error = ?, updated_at = ?
         WHERE id = ?`,
		nullableString(reason), formatTime(time.Now()), id,
	); err != nil {
		return fmt.Errorf("park %s %d: %w", kind, id, err)
	}
	return nil
}

// RetryParked makes parked or errored entities of a kind schedulable again.
func (s *Store) RetryParked(ctx context.Context, kind Kind) (int64, error) {
	table, err := tableFor(kind)
	if err != nil {
		return 0, err
	}

	res, err := s.execWithRetry(
		ctx,
		`UPDATE `+table+`
         SET state_ready = 1, state_locked_until = NULL, attempts = 0, last_error = NULL, updated_at = ?
         WHERE state_ready = 0 AND last_error IS NOT NULL`,
		formatTime(time.Now()),
	)
	if err != nil {
		return 0, fmt.Errorf("retry parked %s: %w", kind, err)
	}
	return res.RowsAffected()
}

// SchedulingEntries lists recent entities of a kind with their full
// scheduling triple, newest first. Read model for the API and CLI.
func (s *Store) SchedulingEntries(ctx context.Context, kind Kind, limit int) ([]SchedulingEntry, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT id, state, state_ready, state_locked_until, state_changed, attempts, last_error
         FROM `+table+`
         ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query %s entries: %w", kind, err)
	}
	defer rows.Close()

	var entries []SchedulingEntry
	for rows.Next() {
		var (
			entry      SchedulingEntry
			state      string
			ready      int
			lockedRaw  sql.NullString
			changedRaw string
			attempts   int
			lastError  sql.NullString
		)
		if err := rows.Scan(&entry.ID, &state, &ready, &lockedRaw, &changedRaw, &attempts, &lastError); err != nil {
			return nil, err
		}
		entry.Kind = kind
		entry.Scheduling = scanScheduling(state, ready, lockedRaw, changedRaw, attempts, lastError)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// DeleteFanOutsInState removes fan-outs resting in the given state. Used to
// clear abandoned deliveries.
func (s *Store) DeleteFanOutsInState(ctx context.Context, state string) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM fan_outs WHERE state = ?`, state)
	if err != nil {
		return 0, fmt.Errorf("delete fan-outs in %s: %w", state, err)
	}
	return res.RowsAffected()
}

// Stats returns a count of entities grouped by state for one kind.
func (s *Store) Stats(ctx context.Context, kind Kind) (map[string]int, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT state, COUNT(1) FROM `+table+` GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("%s stats: %w", kind, err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		stats[state] = count
	}
	return stats, rows.Err()
}

// Health aggregates scheduling counts for one kind.
func (s *Store) Health(ctx context.Context, kind Kind, terminal []string) (HealthSummary, error) {
	table, err := tableFor(kind)
	if err != nil {
		return HealthSummary{}, err
	}

	terminalSet := make(map[string]struct{}, len(terminal))
	for _, state := range terminal {
		terminalSet[state] = struct{}{}
	}

	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT state, state_ready, state_locked_until IS NOT NULL, last_error IS NOT NULL, COUNT(1)
         FROM `+table+`
         GROUP BY state, state_ready, state_locked_until IS NOT NULL, last_error IS NOT NULL`,
	)
	if err != nil {
		return HealthSummary{}, fmt.Errorf("%s health: %w", kind, err)
	}
	defer rows.Close()

	health := HealthSummary{Kind: kind}
	for rows.Next() {
		var (
			state   string
			ready   int
			locked  int
			errored int
			count   int
		)
		if err := rows.Scan(&state, &ready, &locked, &errored, &count); err != nil {
			return HealthSummary{}, err
		}
		health.Total += count
		if _, ok := terminalSet[state]; ok {
			health.Terminal += count
			continue
		}
		if ready == 1 {
			health.Ready += count
		} else if locked == 1 {
			health.Locked += count
		}
		if errored == 1 {
			health.Errored += count
		}
	}
	return health, rows.Err()
}
