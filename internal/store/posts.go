package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const postColumns = "p.id, p.author_id, p.local, p.object_uri, p.visibility, p.content, p.sensitive, p.summary, p.url, p.in_reply_to, p.published, p.created_at, p.updated_at, p.state, p.state_ready, p.state_locked_until, p.state_changed, p.attempts, p.last_error"

// CreatePost inserts a post in the given scheduling state.
func (s *Store) CreatePost(ctx context.Context, post *Post, state string, ready bool) (*Post, error) {
	if post == nil {
		return nil, errors.New("post is nil")
	}
	now := time.Now().UTC()
	timestamp := formatTime(now)
	published := post.Published
	if published.IsZero() {
		published = now
	}

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO posts (
            author_id, local, object_uri, visibility, content, sensitive,
            summary, url, in_reply_to, published, created_at, updated_at,
            state, state_ready, state_changed
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		post.AuthorID,
		boolToInt(post.Local),
		nullableString(post.ObjectURI),
		int(post.Visibility),
		post.Content,
		boolToInt(post.Sensitive),
		nullableString(post.Summary),
		nullableString(post.URL),
		nullableString(post.InReplyTo),
		formatTime(published),
		timestamp,
		timestamp,
		state,
		boolToInt(ready),
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert post: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.PostByID(ctx, id)
}

// PostByID fetches a post with its author resolved. Returns nil when absent.
func (s *Store) PostByID(ctx context.Context, id int64) (*Post, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+postColumns+`, `+joinedIdentityColumns+`
         FROM posts p JOIN identities a ON a.id = p.author_id
         WHERE p.id = ?`,
		id,
	)
	post, err := scanPostWithAuthor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	return post, nil
}

// PostByObjectURI fetches a post by its canonical object URI, author
// resolved. Returns nil when absent.
func (s *Store) PostByObjectURI(ctx context.Context, objectURI string) (*Post, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+postColumns+`, `+joinedIdentityColumns+`
         FROM posts p JOIN identities a ON a.id = p.author_id
         WHERE p.object_uri = ?`,
		objectURI,
	)
	post, err := scanPostWithAuthor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get post by object uri: %w", err)
	}
	return post, nil
}

// UpdatePost persists mutable post fields.
func (s *Store) UpdatePost(ctx context.Context, post *Post) error {
	if post == nil {
		return errors.New("post is nil")
	}
	post.UpdatedAt = time.Now().UTC()
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE posts
         SET object_uri = ?, visibility = ?, content = ?, sensitive = ?,
             summary = ?, url = ?, in_reply_to = ?, published = ?, updated_at = ?
         WHERE id = ?`,
		nullableString(post.ObjectURI),
		int(post.Visibility),
		post.Content,
		boolToInt(post.Sensitive),
		nullableString(post.Summary),
		nullableString(post.URL),
		nullableString(post.InReplyTo),
		formatTime(post.Published),
		formatTime(post.UpdatedAt),
		post.ID,
	); err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	return nil
}

// DeletePost removes a post. Dependent fan-outs and timeline events cascade.
func (s *Store) DeletePost(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete post: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// PostsByAuthor returns an author's posts ordered newest first.
func (s *Store) PostsByAuthor(ctx context.Context, authorID int64) ([]*Post, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+postColumns+`, `+joinedIdentityColumns+`
         FROM posts p JOIN identities a ON a.id = p.author_id
         WHERE p.author_id = ?
         ORDER BY p.published DESC`,
		authorID,
	)
	if err != nil {
		return nil, fmt.Errorf("query posts by author: %w", err)
	}
	defer rows.Close()

	var posts []*Post
	for rows.Next() {
		post, err := scanPostWithAuthor(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

const joinedIdentityColumns = "a.id, a.username, a.domain, a.actor_uri, a.inbox_uri, a.public_url, a.local, a.created_at, a.updated_at, a.state, a.state_ready, a.state_locked_until, a.state_changed, a.attempts, a.last_error"

func scanPostWithAuthor(scanner interface{ Scan(dest ...any) error }) (*Post, error) {
	var (
		id           int64
		authorID     int64
		local        int
		objectURI    sql.NullString
		visibility   int
		content      string
		sensitive    int
		summary      sql.NullString
		url          sql.NullString
		inReplyTo    sql.NullString
		publishedRaw string
		createdRaw   string
		updatedRaw   string
		state        string
		stateReady   int
		lockedRaw    sql.NullString
		changedRaw   string
		attempts     int
		lastError    sql.NullString

		aID         int64
		aUsername   string
		aDomain     string
		aActorURI   string
		aInboxURI   sql.NullString
		aPublicURL  sql.NullString
		aLocal      int
		aCreatedRaw string
		aUpdatedRaw string
		aState      string
		aReady      int
		aLockedRaw  sql.NullString
		aChangedRaw string
		aAttempts   int
		aLastError  sql.NullString
	)
	if err := scanner.Scan(
		&id, &authorID, &local, &objectURI, &visibility, &content, &sensitive,
		&summary, &url, &inReplyTo, &publishedRaw, &createdRaw, &updatedRaw,
		&state, &stateReady, &lockedRaw, &changedRaw, &attempts, &lastError,
		&aID, &aUsername, &aDomain, &aActorURI, &aInboxURI, &aPublicURL, &aLocal,
		&aCreatedRaw, &aUpdatedRaw, &aState, &aReady, &aLockedRaw, &aChangedRaw,
		&aAttempts, &aLastError,
	); err != nil {
		return nil, err
	}

	post := &Post{
		ID:         id,
		AuthorID:   authorID,
		Local:      local != 0,
		ObjectURI:  objectURI.String,
		Visibility: Visibility(visibility),
		Content:    content,
		Sensitive:  sensitive != 0,
		Summary:    summary.String,
		URL:        url.String,
		InReplyTo:  inReplyTo.String,
	}
	post.Scheduling = scanScheduling(state, stateReady, lockedRaw, changedRaw, attempts, lastError)
	if published, err := parseTimeString(publishedRaw); err == nil {
		post.Published = published
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		post.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		post.UpdatedAt = updated
	}

	author := &Identity{
		ID:        aID,
		Username:  aUsername,
		Domain:    aDomain,
		ActorURI:  aActorURI,
		InboxURI:  aInboxURI.String,
		PublicURL: aPublicURL.String,
		Local:     aLocal != 0,
	}
	author.Scheduling = scanScheduling(aState, aReady, aLockedRaw, aChangedRaw, aAttempts, aLastError)
	if created, err := parseTimeString(aCreatedRaw); err == nil {
		author.CreatedAt = created
	}
	if updated, err := parseTimeString(aUpdatedRaw); err == nil {
		author.UpdatedAt = updated
	}
	post.Author = author
	return post, nil
}
