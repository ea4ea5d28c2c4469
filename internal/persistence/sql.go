package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/htetarkarhlaing/wecare-chat-widget/internal/database"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/model"
)

const createSessionsTable = `
CREATE TABLE IF NOT EXISTS widget_sessions (
	slot          TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL,
	session_token TEXT NOT NULL,
	created_at    BIGINT NOT NULL
)`

// SQLStore keeps one row per slot in widget_sessions. The same table can
// serve many slots, which is what DeleteExpired sweeps.
type SQLStore struct {
	db   database.DBTX
	slot string
}

func NewSQLStore(ctx context.Context, db database.DBTX, slot string) (*SQLStore, error) {
	if _, err := db.ExecContext(ctx, createSessionsTable); err != nil {
		return nil, fmt.Errorf("create widget_sessions table: %w", err)
	}
	return &SQLStore{db: db, slot: slot}, nil
}

func (s *SQLStore) Load(ctx context.Context) (*model.PersistedSession, error) {
	var record model.PersistedSession
	err := s.db.GetContext(ctx, &record, s.db.Rebind(`
		SELECT session_id, session_token, created_at
		FROM widget_sessions
		WHERE slot = ?
	`), s.slot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}
	return &record, nil
}

func (s *SQLStore) Save(ctx context.Context, record *model.PersistedSession) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO widget_sessions (slot, session_id, session_token, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (slot) DO UPDATE SET
			session_id = excluded.session_id,
			session_token = excluded.session_token,
			created_at = excluded.created_at
	`), s.slot, record.SessionID, record.SessionToken, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM widget_sessions WHERE slot = ?`), s.slot)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpired removes records in any slot created more than maxAge ago.
func (s *SQLStore) DeleteExpired(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).UnixMilli()
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM widget_sessions WHERE created_at < ?`), cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return result.RowsAffected()
}
