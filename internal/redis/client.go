package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(ctx context.Context, redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

func SessionKey(slot string) string {
	return fmt.Sprintf("widget:session:%s", slot)
}

// ConversationChannel is the pubsub channel carrying new messages for one
// conversation across mock server replicas.
func ConversationChannel(conversationID string) string {
	return fmt.Sprintf("widget:conversation:%s:messages", conversationID)
}

// RateLimitKey is the sliding window key of one API client.
func RateLimitKey(client string) string {
	return fmt.Sprintf("widget:ratelimit:%s", client)
}
