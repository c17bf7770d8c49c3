// Package chat holds the conversation registry and the message store service.
package chat

import (
	"context"

	"github.com/travelmate/chat/internal/model"
)

// ConversationStore persists conversations. Not-found lookups return repository.ErrNotFound;
// a create that loses a uniqueness race returns repository.ErrConflict.
type ConversationStore interface {
	GetByID(ctx context.Context, id string) (*model.Conversation, error)
	FindPrivate(ctx context.Context, pairKey string) (*model.Conversation, error)
	FindGroup(ctx context.Context, tripID string) (*model.Conversation, error)
	Create(ctx context.Context, c *model.Conversation) error
	AddParticipant(ctx context.Context, conversationID, userID string) error
	ListForUser(ctx context.Context, userID string) ([]model.Conversation, error)
	UpdateSummary(ctx context.Context, conversationID string, s model.Summary) error
}

type MessageStore interface {
	Create(ctx context.Context, m *model.Message) error
	GetByID(ctx context.Context, id string) (*model.Message, error)
	ListByConversation(ctx context.Context, conversationID string, page model.Page) ([]model.Message, error)
	MarkRead(ctx context.Context, conversationID, recipientID string) (int64, error)
	CountUnread(ctx context.Context, conversationID, recipientID string) (int, error)
	Delete(ctx context.Context, id string) error
}

// Directory resolves users and trips owned by other services.
type Directory interface {
	User(ctx context.Context, id string) (*model.User, error)
	Trip(ctx context.Context, id string) (*model.Trip, error)
}
