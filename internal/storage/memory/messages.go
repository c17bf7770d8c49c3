package memory

import (
	"context"
	"sync"

	"github.com/travelmate/chat/internal/model"
	"github.com/travelmate/chat/internal/repository"
)

// Messages mirrors repository.MessageRepository; seq comes from a store-wide counter.
type Messages struct {
	mu     sync.RWMutex
	seq    int64
	byID   map[string]*model.Message
	byConv map[string][]*model.Message
}

func NewMessages() *Messages {
	return &Messages{
		byID:   make(map[string]*model.Message),
		byConv: make(map[string][]*model.Message),
	}
}

func (s *Messages) Create(ctx context.Context, m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	m.Seq = s.seq
	stored := *m
	s.byID[m.ID] = &stored
	// appended in seq order, which is the only ordering key
	s.byConv[m.ConversationID] = append(s.byConv[m.ConversationID], &stored)
	return nil
}

func (s *Messages) GetByID(ctx context.Context, id string) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *m
	return &out, nil
}

func (s *Messages) ListByConversation(ctx context.Context, conversationID string, page model.Page) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var window []*model.Message
	for _, m := range s.byConv[conversationID] {
		if page.Before > 0 && m.Seq >= page.Before {
			continue
		}
		window = append(window, m)
	}
	if page.Limit > 0 && len(window) > page.Limit {
		window = window[len(window)-page.Limit:]
	}
	out := make([]model.Message, 0, len(window))
	for _, m := range window {
		out = append(out, *m)
	}
	return out, nil
}

func (s *Messages) MarkRead(ctx context.Context, conversationID, recipientID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.byConv[conversationID] {
		if !m.IsRead && m.RecipientID != nil && *m.RecipientID == recipientID {
			m.IsRead = true
			n++
		}
	}
	return n, nil
}

func (s *Messages) CountUnread(ctx context.Context, conversationID, recipientID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.byConv[conversationID] {
		if !m.IsRead && m.RecipientID != nil && *m.RecipientID == recipientID {
			n++
		}
	}
	return n, nil
}

func (s *Messages) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	delete(s.byID, id)
	list := s.byConv[m.ConversationID]
	for i, x := range list {
		if x.ID == id {
			s.byConv[m.ConversationID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	return nil
}
