package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/orderbot/internal/conversation"
	"github.com/soyeahso/orderbot/internal/domain"
)

// SQLiteSessionStore implements conversation.SessionStore backed by SQLite.
// Each identity owns at most one row.
type SQLiteSessionStore struct {
	db *DB
}

// NewSQLiteSessionStore creates a session store using the given database.
func NewSQLiteSessionStore(db *DB) *SQLiteSessionStore {
	return &SQLiteSessionStore{db: db}
}

// Get returns the session for identity, or nil when none exists. Rows with
// an unknown step or an undecodable draft yield conversation.ErrCorruptSession.
func (s *SQLiteSessionStore) Get(ctx context.Context, identity string) (*domain.Session, error) {
	var step, draft, updatedAt string
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT step, draft, updated_at FROM sessions WHERE identity = ?`, identity,
	).Scan(&step, &draft, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	sess := &domain.Session{Identity: identity, Step: domain.Step(step), UpdatedAt: parseTime(updatedAt)}
	if !sess.Step.Valid() {
		return nil, fmt.Errorf("%w: unknown step %q", conversation.ErrCorruptSession, step)
	}
	if sess.Draft, err = domain.DecodeDraft([]byte(draft)); err != nil {
		return nil, fmt.Errorf("%w: %v", conversation.ErrCorruptSession, err)
	}
	return sess, nil
}

// Put replaces the session for sess.Identity.
func (s *SQLiteSessionStore) Put(ctx context.Context, sess *domain.Session) error {
	draft, err := domain.EncodeDraft(sess.Draft)
	if err != nil {
		return fmt.Errorf("encoding draft: %w", err)
	}
	at := sess.UpdatedAt
	if at.IsZero() {
		at = time.Now()
	}

	_, err = s.db.sql.ExecContext(ctx,
		`INSERT INTO sessions (identity, step, draft, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(identity) DO UPDATE SET
			step = excluded.step,
			draft = excluded.draft,
			updated_at = excluded.updated_at`,
		sess.Identity, string(sess.Step), string(draft), formatTime(at), formatTime(at),
	)
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// Delete removes the session for identity. Deleting an absent session is not an error.
func (s *SQLiteSessionStore) Delete(ctx context.Context, identity string) error {
	if _, err := s.db.sql.ExecContext(ctx, `DELETE FROM sessions WHERE identity = ?`, identity); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// Count returns the number of stored sessions.
func (s *SQLiteSessionStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n)
	return n, err
}

// PurgeIdle deletes sessions last updated before cutoff and returns how many were removed.
func (s *SQLiteSessionStore) PurgeIdle(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.sql.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purging sessions: %w", err)
	}
	return res.RowsAffected()
}
