package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/htetarkarhlaing/wecare-chat-widget/internal/errors"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/httputil"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/model"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/service"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/util"
)

var settableStatuses = []string{
	string(model.SessionStatusActive),
	string(model.SessionStatusResolved),
	string(model.SessionStatusClosed),
}

// DevHandler lets an operator play the agent side of a conversation
// against the mock server.
type DevHandler struct {
	chat *service.ChatService
}

func NewDevHandler(chat *service.ChatService) *DevHandler {
	return &DevHandler{chat: chat}
}

func (h *DevHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/conversations", h.ListConversations)
	r.Post("/conversations/{sessionId}/messages", h.PostAgentMessage)
	r.Post("/conversations/{sessionId}/status", h.SetStatus)

	return r
}

type agentMessageRequest struct {
	Message string `json:"message"`
}

type statusRequest struct {
	Status model.SessionStatus `json:"status"`
}

// GET /dev/conversations?limit=&offset=
func (h *DevHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	page := ParsePagination(r)
	chats := h.chat.List()

	out := make([]map[string]any, 0, page.Limit)
	for _, c := range Page(chats, page) {
		out = append(out, formatConversation(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversations": out,
		"total":         len(chats),
		"limit":         page.Limit,
		"offset":        page.Offset,
	})
}

// POST /dev/conversations/{sessionId}/messages
func (h *DevHandler) PostAgentMessage(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req agentMessageRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	msg, err := h.chat.PostAgentMessage(r.Context(), sessionID, req.Message)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// POST /dev/conversations/{sessionId}/status
func (h *DevHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req statusRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.Status == "" {
		httputil.WriteError(w, errors.MissingRequired("status"))
		return
	}
	if !util.IsValidEnum(string(req.Status), settableStatuses) {
		httputil.WriteError(w, errors.InvalidInput("status", "must be ACTIVE, RESOLVED or CLOSED"))
		return
	}

	if err := h.chat.SetStatus(r.Context(), sessionID, req.Status); err != nil {
		httputil.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": sessionID, "status": req.Status})
}
