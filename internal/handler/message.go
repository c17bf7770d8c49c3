package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/travelmate/chat/internal/chat"
	"github.com/travelmate/chat/internal/middleware"
	"github.com/travelmate/chat/internal/model"
	"github.com/travelmate/chat/internal/ws"
)

type MessageHandler struct {
	registry *chat.Registry
	messages *chat.Messages
	hub      *ws.Hub
}

func NewMessageHandler(registry *chat.Registry, messages *chat.Messages, hub *ws.Hub) *MessageHandler {
	return &MessageHandler{registry: registry, messages: messages, hub: hub}
}

type SendMessageRequest struct {
	UserID      string `json:"userId"`
	UserName    string `json:"userName"`
	Text        string `json:"text" validate:"required"`
	ClientMsgID string `json:"clientMsgId" validate:"omitempty,max=64"`
}

// List serves GET /conversations/{id}/messages. Opening history marks it read for the caller.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, err := actingUser(r, r.URL.Query().Get("userId"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	limit, err := queryInt64(r, "limit")
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	before, err := queryInt64(r, "before")
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	views, err := h.messages.Open(r.Context(), chi.URLParam(r, "id"), uid, model.Page{Limit: int(limit), Before: before})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// Send serves POST /conversations/{id}/messages. The stored message is also fanned out to live sessions.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	uid, err := actingUser(r, req.UserID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	conv, err := h.registry.RequireParticipant(r.Context(), chi.URLParam(r, "id"), uid)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	name := middleware.GetUserName(r.Context())
	if name == "" {
		name = strings.TrimSpace(req.UserName)
	}
	m, err := h.hub.Post(r.Context(), conv, uid, name, req.Text, req.ClientMsgID, nil)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	v := m.View(uid)
	v.ClientMsgID = req.ClientMsgID
	writeJSON(w, http.StatusCreated, v)
}

// MarkRead serves PUT /conversations/{id}/read
func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	uid, err := actingUser(r, r.URL.Query().Get("userId"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	n, err := h.messages.MarkRead(r.Context(), chi.URLParam(r, "id"), uid)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

// Delete serves DELETE /messages/{id}. Only the author may delete.
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	uid, err := actingUser(r, "")
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if err := h.messages.DeleteByID(r.Context(), chi.URLParam(r, "id"), uid); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
