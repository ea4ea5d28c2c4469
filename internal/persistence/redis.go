package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/htetarkarhlaing/wecare-chat-widget/internal/model"
	redisclient "github.com/htetarkarhlaing/wecare-chat-widget/internal/redis"
)

// RedisStore keeps the record under widget:session:<slot>. A positive ttl
// lets redis expire abandoned records on its own.
type RedisStore struct {
	client *redisclient.Client
	key    string
	ttl    time.Duration
}

func NewRedisStore(client *redisclient.Client, slot string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		key:    redisclient.SessionKey(slot),
		ttl:    ttl,
	}
}

func (s *RedisStore) Load(ctx context.Context) (*model.PersistedSession, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var record model.PersistedSession
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &record, nil
}

func (s *RedisStore) Save(ctx context.Context, record *model.PersistedSession) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("del session: %w", err)
	}
	return nil
}
