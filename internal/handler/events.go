package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/htetarkarhlaing/wecare-chat-widget/internal/httputil"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/hub"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/service"
)

const HeartbeatInterval = 30 * time.Second

// EventsHandler streams one conversation to an operator as server-sent
// events: the stored history first, then every new message.
type EventsHandler struct {
	chat *service.ChatService
	hub  *hub.Hub
}

func NewEventsHandler(chat *service.ChatService, h *hub.Hub) *EventsHandler {
	return &EventsHandler{chat: chat, hub: h}
}

// GET /dev/conversations/{sessionId}/events
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	history, err := h.chat.History(sessionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sub := h.hub.Subscribe(sessionID)
	defer h.hub.Unsubscribe(sub)

	log.Info().Str("conversation_id", sessionID).Msg("operator stream opened")

	for _, msg := range history {
		if err := sendEvent(w, flusher, "message", msg); err != nil {
			return
		}
	}
	if err := sendEvent(w, flusher, "ready", map[string]any{"conversationId": sessionID, "count": len(history)}); err != nil {
		return
	}

	ctx := r.Context()
	heartbeat := time.NewTicker(HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("conversation_id", sessionID).Msg("operator stream closed by client")
			return

		case <-sub.Done:
			log.Info().Str("conversation_id", sessionID).Msg("operator stream closed by hub")
			return

		case msg := <-sub.Messages:
			if err := sendEvent(w, flusher, "message", msg); err != nil {
				log.Error().Err(err).Msg("failed to send event")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().Str("conversation_id", sessionID).Msg("heartbeat failed, closing stream")
				return
			}
			flusher.Flush()
		}
	}
}

func sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

