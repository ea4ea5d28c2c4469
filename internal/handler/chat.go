package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/htetarkarhlaing/wecare-chat-widget/internal/api"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/audit"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/errors"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/httputil"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/model"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/service"
)

// ChatHandler serves the widget chat REST surface.
type ChatHandler struct {
	chat *service.ChatService
}

func NewChatHandler(chat *service.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

func (h *ChatHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/session", h.CreateSession)
	r.Get("/session/{sessionId}", h.GetSession)
	r.Post("/session/{sessionId}/rating", h.SubmitRating)
	r.Post("/message", h.SendMessage)

	return r
}

// POST /widget/chat/session
func (h *ChatHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req model.CreateSessionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	resp, err := h.chat.CreateSession(r.Context(), req)
	if err != nil {
		log.Warn().Err(err).Msg("failed to create chat session")
		httputil.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// GET /widget/chat/session/{sessionId}
func (h *ChatHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	chat, err := h.chat.GetSession(r.Context(), sessionID, sessionToken(r))
	if err != nil {
		h.authFailure(r, sessionID, err)
		httputil.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, chat)
}

// POST /widget/chat/message
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req model.SendMessageRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := validSessionID(req.SessionID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	msg, err := h.chat.SendMessage(r.Context(), sessionToken(r), req)
	if err != nil {
		h.authFailure(r, req.SessionID, err)
		httputil.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// POST /widget/chat/session/{sessionId}/rating
func (h *ChatHandler) SubmitRating(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req model.SubmitRatingRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	resp, err := h.chat.SubmitRating(r.Context(), sessionID, sessionToken(r), req)
	if err != nil {
		h.authFailure(r, sessionID, err)
		httputil.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *ChatHandler) authFailure(r *http.Request, sessionID string, err error) {
	code := errors.GetCode(err)
	if code != errors.ErrCodeUnauthorized && code != errors.ErrCodeInvalidToken {
		return
	}
	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventAuthFailure,
		SessionID: sessionID,
		Details: map[string]interface{}{
			"path": r.URL.Path,
			"code": string(code),
		},
	})
}

func sessionToken(r *http.Request) string {
	return r.Header.Get(api.HeaderSessionToken)
}
