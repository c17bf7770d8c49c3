package handler

import (
	"net/http"

	"github.com/travelmate/chat/internal/chat"
)

type ConversationHandler struct {
	registry *chat.Registry
}

func NewConversationHandler(registry *chat.Registry) *ConversationHandler {
	return &ConversationHandler{registry: registry}
}

type OpenPrivateRequest struct {
	UserID      string `json:"userId"`
	OtherUserID string `json:"otherUserId" validate:"required"`
}

type OpenGroupRequest struct {
	TripID string `json:"tripId" validate:"required"`
	UserID string `json:"userId"`
}

type openResponse struct {
	ConversationID string `json:"conversationId"`
}

// List serves GET /conversations?userId=
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, err := actingUser(r, r.URL.Query().Get("userId"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	items, err := h.registry.ListForUser(r.Context(), uid)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// OpenPrivate serves POST /conversations/private
func (h *ConversationHandler) OpenPrivate(w http.ResponseWriter, r *http.Request) {
	var req OpenPrivateRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	uid, err := actingUser(r, req.UserID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	c, err := h.registry.GetOrCreatePrivate(r.Context(), uid, req.OtherUserID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, openResponse{ConversationID: c.ID})
}

// OpenGroup serves POST /conversations/group
func (h *ConversationHandler) OpenGroup(w http.ResponseWriter, r *http.Request) {
	var req OpenGroupRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	uid, err := actingUser(r, req.UserID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	c, err := h.registry.GetOrCreateGroup(r.Context(), req.TripID, uid)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, openResponse{ConversationID: c.ID})
}
