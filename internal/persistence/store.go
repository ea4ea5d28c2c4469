// Package persistence is the durable port for the resumable session record.
// Each store holds at most one record per slot; it has no business logic.
package persistence

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/htetarkarhlaing/wecare-chat-widget/internal/config"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/database"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/model"
	redisclient "github.com/htetarkarhlaing/wecare-chat-widget/internal/redis"
)

const DefaultSlot = "wecare_widget_session"

// SessionStore loads, saves and deletes the record in its slot.
// Load returns (nil, nil) when the slot is empty. Delete is idempotent.
type SessionStore interface {
	Load(ctx context.Context) (*model.PersistedSession, error)
	Save(ctx context.Context, record *model.PersistedSession) error
	Delete(ctx context.Context) error
}

// Expirer is implemented by stores shared across slots that can drop stale
// records in bulk.
type Expirer interface {
	DeleteExpired(ctx context.Context, maxAge time.Duration) (int64, error)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open builds the store selected by cfg.StorageBackend. The returned closer
// releases any connection the store holds.
func Open(ctx context.Context, cfg *config.Config) (SessionStore, io.Closer, error) {
	slot := cfg.StorageSlot
	if slot == "" {
		slot = DefaultSlot
	}

	switch cfg.StorageBackend {
	case "memory":
		return NewMemoryStore(), nopCloser{}, nil

	case "file", "":
		store, err := NewFileStore(cfg.StorageDir, slot)
		if err != nil {
			return nil, nil, err
		}
		return store, nopCloser{}, nil

	case "sqlite", "postgres":
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open session database: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, config.StoragePingTimeout)
		defer cancel()
		if err := db.Ping(pingCtx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("ping session database: %w", err)
		}
		store, err := NewSQLStore(ctx, db, slot)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return store, db, nil

	case "redis":
		client, err := redisclient.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open session redis: %w", err)
		}
		return NewRedisStore(client, slot, cfg.SessionTTL()), client, nil
	}

	return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
}
