package hub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/htetarkarhlaing/wecare-chat-widget/internal/model"
	redisclient "github.com/htetarkarhlaing/wecare-chat-widget/internal/redis"
)

const clientBufferSize = 64

// Subscriber receives the messages of one conversation.
type Subscriber struct {
	ConversationID string
	Messages       chan model.APIMessage
	Done           chan struct{}
}

// Hub fans new conversation messages out to socket subscribers. With a
// redis client, publishes go through pubsub so every replica sees them;
// without one, they are broadcast in-process.
type Hub struct {
	redis       *redisclient.Client
	subscribers map[string]map[*Subscriber]bool
	relays      map[string]context.CancelFunc
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

func New(redisClient *redisclient.Client) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		redis:       redisClient,
		subscribers: make(map[string]map[*Subscriber]bool),
		relays:      make(map[string]context.CancelFunc),
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (h *Hub) Subscribe(conversationID string) *Subscriber {
	sub := &Subscriber{
		ConversationID: conversationID,
		Messages:       make(chan model.APIMessage, clientBufferSize),
		Done:           make(chan struct{}),
	}

	h.mu.Lock()
	if h.subscribers[conversationID] == nil {
		h.subscribers[conversationID] = make(map[*Subscriber]bool)
		if h.redis != nil {
			ctx, cancel := context.WithCancel(h.ctx)
			h.relays[conversationID] = cancel
			go h.subscribeToRedis(ctx, conversationID)
		}
	}
	h.subscribers[conversationID][sub] = true
	count := len(h.subscribers[conversationID])
	h.mu.Unlock()

	log.Info().
		Str("conversation_id", conversationID).
		Int("subscriber_count", count).
		Msg("socket subscribed")

	return sub
}

func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subscribers[sub.ConversationID]
	if !ok || !subs[sub] {
		return
	}
	delete(subs, sub)
	close(sub.Done)
	if len(subs) == 0 {
		delete(h.subscribers, sub.ConversationID)
		if cancel, ok := h.relays[sub.ConversationID]; ok {
			cancel()
			delete(h.relays, sub.ConversationID)
		}
	}

	log.Info().
		Str("conversation_id", sub.ConversationID).
		Int("subscriber_count", len(subs)).
		Msg("socket unsubscribed")
}

func (h *Hub) Publish(ctx context.Context, conversationID string, msg model.APIMessage) error {
	if h.redis == nil {
		h.broadcast(conversationID, msg)
		return nil
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.redis.Publish(ctx, redisclient.ConversationChannel(conversationID), data).Err()
}

func (h *Hub) subscribeToRedis(ctx context.Context, conversationID string) {
	channel := redisclient.ConversationChannel(conversationID)
	pubsub := h.redis.Subscribe(ctx, channel)
	defer pubsub.Close()

	log.Debug().
		Str("conversation_id", conversationID).
		Str("channel", channel).
		Msg("redis pubsub subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			var msg model.APIMessage
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal conversation message")
				continue
			}
			h.broadcast(conversationID, msg)
		}
	}
}

func (h *Hub) broadcast(conversationID string, msg model.APIMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subscribers[conversationID] {
		select {
		case sub.Messages <- msg:
		default:
			log.Warn().
				Str("conversation_id", conversationID).
				Msg("subscriber buffer full, dropping message")
		}
	}
}

func (h *Hub) Close() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, subs := range h.subscribers {
		for sub := range subs {
			close(sub.Done)
		}
	}
	h.subscribers = make(map[string]map[*Subscriber]bool)
	h.relays = make(map[string]context.CancelFunc)
}

func (h *Hub) SubscriberCount(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[conversationID])
}
