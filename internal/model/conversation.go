package model

import (
	"sort"
	"strings"
	"time"
)

type ConversationKind string

const (
	KindPrivate ConversationKind = "private"
	KindGroup   ConversationKind = "group"
)

func (k ConversationKind) Valid() bool {
	return k == KindPrivate || k == KindGroup
}

// Summary is the denormalized last-message cache kept on a conversation for listings.
type Summary struct {
	Text       string    `json:"text"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	SentAt     time.Time `json:"sent_at"`
}

type Conversation struct {
	ID           string           `json:"id"`
	Kind         ConversationKind `json:"kind"`
	Participants []string         `json:"participants"`
	// TripID is set iff Kind == KindGroup.
	TripID *string `json:"trip_id,omitempty"`
	// PairKey is set iff Kind == KindPrivate; see PairKey.
	PairKey     string    `json:"-"`
	Name        string    `json:"name,omitempty"`
	LastMessage *Summary  `json:"last_message,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasParticipant reports whether userID belongs to the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Counterpart returns the other participant of a private conversation.
func (c *Conversation) Counterpart(userID string) string {
	if c.Kind != KindPrivate {
		return ""
	}
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// LastActivity is the ordering key for listings: last message time, or creation time.
func (c *Conversation) LastActivity() time.Time {
	if c.LastMessage != nil && !c.LastMessage.SentAt.IsZero() {
		return c.LastMessage.SentAt
	}
	return c.CreatedAt
}

// PairKey is the order-independent identity of a private conversation between a and b.
func PairKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, ":")
}

// GroupName is the trip-derived label of a group conversation.
func GroupName(t *Trip) string {
	if t == nil || t.Destination == "" {
		return "Trip Chat"
	}
	return t.Destination + " Trip Chat"
}

// ConversationListItem is one row of a user's conversation list.
type ConversationListItem struct {
	ID                string           `json:"id"`
	Kind              ConversationKind `json:"kind"`
	DisplayName       string           `json:"displayName"`
	AvatarURL         string           `json:"avatarUrl,omitempty"`
	TripID            string           `json:"tripId,omitempty"`
	OtherUserID       string           `json:"otherUserId,omitempty"`
	LastMessage       string           `json:"lastMessage"`
	LastMessageAuthor string           `json:"lastMessageAuthor,omitempty"`
	Time              string           `json:"time"`
	LastActivity      time.Time        `json:"lastActivity"`
	UnreadCount       int              `json:"unreadCount"`
}
