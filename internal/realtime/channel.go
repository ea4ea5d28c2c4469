package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/htetarkarhlaing/wecare-chat-widget/internal/model"
)

type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateClosed       State = "closed"
)

var ErrChannelClosed = errors.New("realtime channel closed")

// Callbacks are invoked without the channel lock held, on the transport
// goroutine.
type Callbacks struct {
	OnMessage      func(sessionID string, msg model.Message)
	OnConnectivity func(connected bool)
}

// Channel binds one transport to one session. It is opened at most once and
// never reused for another session.
type Channel struct {
	endpoint  string
	dialer    Dialer
	callbacks Callbacks
	now       func() time.Time

	mu        sync.Mutex
	state     State
	transport Transport
	sessionID string
	token     string
	connected bool
}

func NewChannel(endpoint string, dialer Dialer, callbacks Callbacks) *Channel {
	return &Channel{
		endpoint:  endpoint,
		dialer:    dialer,
		callbacks: callbacks,
		now:       time.Now,
		state:     StateIdle,
	}
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Open dials the endpoint for the given session. Without a session id, token
// or endpoint the channel stays idle and Open returns nil.
func (c *Channel) Open(ctx context.Context, sessionID, token string) error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	if c.state != StateIdle {
		c.mu.Unlock()
		return fmt.Errorf("realtime channel already %s", c.state)
	}
	if sessionID == "" || token == "" || c.endpoint == "" || c.dialer == nil {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.sessionID = sessionID
	c.token = token
	c.mu.Unlock()

	t, err := c.dialer.Dial(ctx, c.endpoint)
	if err != nil {
		c.mu.Lock()
		if c.state == StateConnecting {
			c.state = StateDisconnected
		}
		c.mu.Unlock()
		return fmt.Errorf("dial realtime: %w", err)
	}

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		t.Close()
		return ErrChannelClosed
	}
	c.transport = t
	c.mu.Unlock()

	t.On(EventConnect, func(json.RawMessage) { c.handleConnect() })
	t.On(EventDisconnect, func(json.RawMessage) { c.handleDisconnect() })
	t.On(EventNewMessage, c.handlePush)

	// The first connection may be up before the handlers were registered.
	if t.Connected() {
		c.handleConnect()
	}
	return nil
}

// Close unregisters handlers and closes the transport. It does not invoke
// callbacks and is safe to call more than once.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	c.connected = false
	t := c.transport
	c.transport = nil
	c.mu.Unlock()

	if t == nil {
		return nil
	}
	t.Off(EventConnect)
	t.Off(EventDisconnect)
	t.Off(EventNewMessage)
	return t.Close()
}

func (c *Channel) handleConnect() {
	c.mu.Lock()
	if c.state == StateClosed || c.transport == nil {
		c.mu.Unlock()
		return
	}
	c.state = StateConnected
	c.connected = true
	t := c.transport
	join := model.JoinPayload{ConversationID: c.sessionID, SessionToken: c.token}
	c.mu.Unlock()

	if err := t.Emit(EventJoin, join); err != nil {
		log.Warn().Err(err).Str("session_id", join.ConversationID).Msg("failed to join conversation")
	}
	c.notifyConnectivity(true)
}

func (c *Channel) handleDisconnect() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	c.connected = false
	c.mu.Unlock()

	c.notifyConnectivity(false)
}

func (c *Channel) handlePush(data json.RawMessage) {
	var payload model.SocketMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Debug().Err(err).Msg("dropping malformed push")
		return
	}

	c.mu.Lock()
	closed := c.state == StateClosed
	sessionID := c.sessionID
	c.mu.Unlock()

	if closed || payload.ConversationID != sessionID {
		log.Debug().
			Str("session_id", sessionID).
			Str("conversation_id", payload.ConversationID).
			Msg("dropping push for another conversation")
		return
	}

	if c.callbacks.OnMessage != nil {
		c.callbacks.OnMessage(sessionID, payload.Message.ToMessage(c.now()))
	}
}

func (c *Channel) notifyConnectivity(connected bool) {
	if c.callbacks.OnConnectivity != nil {
		c.callbacks.OnConnectivity(connected)
	}
}
