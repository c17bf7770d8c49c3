package model

import "time"

type Message struct {
	ID             string           `json:"id"`
	Seq            int64            `json:"seq"`
	ConversationID string           `json:"conversation_id"`
	Kind           ConversationKind `json:"kind"`
	AuthorID       string           `json:"author_id"`
	// AuthorName is a snapshot taken at send time; renames do not rewrite history.
	AuthorName  string    `json:"author_name"`
	Body        string    `json:"body"`
	RecipientID *string   `json:"recipient_id,omitempty"`
	TripID      *string   `json:"trip_id,omitempty"`
	SentAt      time.Time `json:"sent_at"`
	IsRead      bool      `json:"is_read"`
}

// Page bounds a history read: the most recent Limit messages older than Before (seq), if set.
type Page struct {
	Limit  int
	Before int64
}

// MessageView is the wire shape of a message for clients.
type MessageView struct {
	ID             string           `json:"id"`
	ConversationID string           `json:"conversationId"`
	Kind           ConversationKind `json:"kind"`
	Seq            int64            `json:"seq"`
	Text           string           `json:"text"`
	AuthorID       string           `json:"authorId"`
	AuthorName     string           `json:"authorName"`
	TripID         string           `json:"tripId,omitempty"`
	RecipientID    string           `json:"recipientId,omitempty"`
	Time           string           `json:"time"`
	SentAt         time.Time        `json:"sentAt"`
	IsMine         bool             `json:"isMine"`
	IsRead         bool             `json:"isRead"`
	ClientMsgID    string           `json:"clientMsgId,omitempty"`
}

// View renders m for viewerID. Time is the HH:MM of SentAt in UTC; clients localize from SentAt.
func (m *Message) View(viewerID string) MessageView {
	v := MessageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Kind:           m.Kind,
		Seq:            m.Seq,
		Text:           m.Body,
		AuthorID:       m.AuthorID,
		AuthorName:     m.AuthorName,
		Time:           m.SentAt.UTC().Format("15:04"),
		SentAt:         m.SentAt,
		IsMine:         viewerID != "" && m.AuthorID == viewerID,
		IsRead:         m.IsRead,
	}
	if m.TripID != nil {
		v.TripID = *m.TripID
	}
	if m.RecipientID != nil {
		v.RecipientID = *m.RecipientID
	}
	return v
}
