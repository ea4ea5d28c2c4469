package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog/log"

	"github.com/htetarkarhlaing/wecare-chat-widget/internal/errors"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/hub"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/model"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/realtime"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/service"
)

const (
	EventError = "error"

	socketWriteTimeout = 10 * time.Second
)

// SocketHandler is the realtime endpoint. A widget joins a conversation
// with its session token and then receives every new message of it.
type SocketHandler struct {
	chat           *service.ChatService
	hub            *hub.Hub
	originPatterns []string
}

func NewSocketHandler(chat *service.ChatService, h *hub.Hub, originPatterns []string) *SocketHandler {
	if len(originPatterns) == 0 {
		originPatterns = []string{"*"}
	}
	return &SocketHandler{chat: chat, hub: h, originPatterns: originPatterns}
}

func (h *SocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		log.Warn().Err(err).Msg("websocket accept failed")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	conn := &socketConn{ws: ws, handler: h, subs: make(map[string]*hub.Subscriber)}
	defer func() {
		cancel()
		conn.unsubscribeAll()
		if err := ws.Close(websocket.StatusNormalClosure, "bye"); err != nil {
			log.Debug().Err(err).Msg("websocket close")
		}
	}()

	log.Debug().Str("remote", r.RemoteAddr).Msg("socket connected")

	for {
		var frame realtime.Frame
		if err := wsjson.Read(ctx, ws, &frame); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				log.Debug().Err(err).Msg("socket read ended")
			}
			return
		}

		switch frame.Event {
		case realtime.EventJoin:
			conn.join(ctx, frame.Data)
		default:
			log.Debug().Str("event", frame.Event).Msg("ignoring socket event")
		}
	}
}

type socketConn struct {
	ws      *websocket.Conn
	handler *SocketHandler

	mu   sync.Mutex
	subs map[string]*hub.Subscriber
}

func (c *socketConn) join(ctx context.Context, data json.RawMessage) {
	var join model.JoinPayload
	if err := json.Unmarshal(data, &join); err != nil || join.ConversationID == "" {
		c.sendError(ctx, errors.ValidationError("Invalid join payload"))
		return
	}
	if err := c.handler.chat.Authorize(join.ConversationID, join.SessionToken); err != nil {
		log.Warn().Err(err).Str("conversation_id", join.ConversationID).Msg("socket join rejected")
		c.sendError(ctx, err)
		return
	}

	c.mu.Lock()
	if _, ok := c.subs[join.ConversationID]; ok {
		c.mu.Unlock()
		return
	}
	sub := c.handler.hub.Subscribe(join.ConversationID)
	c.subs[join.ConversationID] = sub
	c.mu.Unlock()

	go c.forward(ctx, sub)
}

func (c *socketConn) forward(ctx context.Context, sub *hub.Subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done:
			return
		case msg := <-sub.Messages:
			payload := model.SocketMessagePayload{ConversationID: sub.ConversationID, Message: msg}
			if err := c.write(ctx, realtime.EventNewMessage, payload); err != nil {
				log.Debug().Err(err).Str("conversation_id", sub.ConversationID).Msg("socket push failed")
				return
			}
		}
	}
}

func (c *socketConn) write(ctx context.Context, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, socketWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, c.ws, realtime.Frame{Event: event, Data: data})
}

func (c *socketConn) sendError(ctx context.Context, err error) {
	if werr := c.write(ctx, EventError, map[string]any{
		"code":    errors.GetCode(err),
		"message": errors.UserMessage(err, "Unable to join conversation"),
	}); werr != nil {
		log.Debug().Err(werr).Msg("socket error frame failed")
	}
}

func (c *socketConn) unsubscribeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, sub := range c.subs {
		c.handler.hub.Unsubscribe(sub)
		delete(c.subs, id)
	}
}
