package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/htetarkarhlaing/wecare-chat-widget/internal/errors"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/httputil"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/model"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/util"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

// formatConversation is the operator listing shape of a conversation.
func formatConversation(chat model.ChatSession) map[string]any {
	agent := ""
	if chat.AssignedUser != nil {
		agent = chat.AssignedUser.Name
	}
	return map[string]any{
		"id":           chat.ID,
		"consumer":     chat.Consumer.Name,
		"email":        chat.Consumer.Email,
		"agent":        agent,
		"status":       chat.Status,
		"messageCount": len(chat.Messages),
		"rating":       chat.Rating,
		"ratedAt":      formatTime(chat.RatedAt),
		"updatedAt":    chat.UpdatedAt.Format(time.RFC3339),
	}
}

// Session ids are issued as UUIDs, so anything else is rejected before lookup.
func validSessionID(id string) error {
	if id == "" {
		return errors.MissingRequired("sessionId")
	}
	if !util.IsValidUUID(id) {
		return errors.InvalidInput("sessionId", "must be a UUID")
	}
	return nil
}

func sessionIDParam(r *http.Request) (string, error) {
	id := chi.URLParam(r, "sessionId")
	return id, validSessionID(id)
}
