package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSocketPath = "/widget/socket"

	writeTimeout = 10 * time.Second
	dialTimeout  = 10 * time.Second
)

var ErrNotConnected = errors.New("websocket not connected")

// SocketURL turns a configured endpoint into a websocket URL. http and https
// map to ws and wss; an empty path becomes DefaultSocketPath.
func SocketURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse socket url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported socket scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = DefaultSocketPath
	}
	return u.String(), nil
}

// WebsocketDialer dials with gorilla/websocket. Dropped connections are
// retried with exponential backoff from ReconnectDelay up to
// MaxReconnectDelay; each successful retry fires connect.
type WebsocketDialer struct {
	Dialer            *websocket.Dialer
	Header            http.Header
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
}

func (d *WebsocketDialer) Dial(ctx context.Context, endpoint string) (Transport, error) {
	wsURL, err := SocketURL(endpoint)
	if err != nil {
		return nil, err
	}

	t := &wsTransport{
		url:      wsURL,
		dialer:   d.Dialer,
		header:   d.Header,
		minDelay: d.ReconnectDelay,
		maxDelay: d.MaxReconnectDelay,
		handlers: make(map[string]Handler),
		done:     make(chan struct{}),
	}
	if t.dialer == nil {
		t.dialer = websocket.DefaultDialer
	}
	if t.minDelay <= 0 {
		t.minDelay = time.Second
	}
	if t.maxDelay < t.minDelay {
		t.maxDelay = t.minDelay
	}

	conn, _, err := t.dialer.DialContext(ctx, wsURL, d.Header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	t.conn = conn
	t.connected.Store(true)

	go t.run(conn)
	return t, nil
}

type wsTransport struct {
	url      string
	dialer   *websocket.Dialer
	header   http.Header
	minDelay time.Duration
	maxDelay time.Duration

	mu       sync.Mutex
	conn     *websocket.Conn
	handlers map[string]Handler
	closed   bool

	writeMu   sync.Mutex
	connected atomic.Bool
	done      chan struct{}
}

func (t *wsTransport) On(event string, h Handler) {
	t.mu.Lock()
	t.handlers[event] = h
	t.mu.Unlock()
}

func (t *wsTransport) Off(event string) {
	t.mu.Lock()
	delete(t.handlers, event)
	t.mu.Unlock()
}

func (t *wsTransport) Connected() bool {
	return t.connected.Load()
}

func (t *wsTransport) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil || !t.Connected() {
		return ErrNotConnected
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(Frame{Event: event, Data: data}); err != nil {
		return fmt.Errorf("write %s: %w", event, err)
	}
	return nil
}

// Close stops reconnecting and closes the socket. It does not wait for the
// reader goroutine.
func (t *wsTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	t.connected.Store(false)
	if conn == nil {
		return nil
	}

	t.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	t.writeMu.Unlock()
	return conn.Close()
}

func (t *wsTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *wsTransport) run(conn *websocket.Conn) {
	for {
		t.readLoop(conn)
		t.connected.Store(false)
		if t.isClosed() {
			return
		}
		t.dispatch(EventDisconnect, nil)

		next, ok := t.reconnect()
		if !ok {
			return
		}
		conn = next
		t.dispatch(EventConnect, nil)
	}
}

func (t *wsTransport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !t.isClosed() {
				log.Debug().Err(err).Str("url", t.url).Msg("websocket read ended")
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Debug().Err(err).Msg("dropping malformed websocket frame")
			continue
		}
		t.dispatch(frame.Event, frame.Data)
	}
}

func (t *wsTransport) reconnect() (*websocket.Conn, bool) {
	delay := t.minDelay
	for {
		timer := time.NewTimer(delay)
		select {
		case <-t.done:
			timer.Stop()
			return nil, false
		case <-timer.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		conn, _, err := t.dialer.DialContext(ctx, t.url, t.header)
		cancel()
		if err != nil {
			log.Debug().Err(err).Dur("delay", delay).Msg("websocket reconnect failed")
			delay *= 2
			if delay > t.maxDelay {
				delay = t.maxDelay
			}
			continue
		}

		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			conn.Close()
			return nil, false
		}
		t.conn = conn
		t.mu.Unlock()
		t.connected.Store(true)

		log.Info().Str("url", t.url).Msg("websocket reconnected")
		return conn, true
	}
}

func (t *wsTransport) dispatch(event string, data json.RawMessage) {
	t.mu.Lock()
	h := t.handlers[event]
	t.mu.Unlock()
	if h != nil {
		h(data)
	}
}
