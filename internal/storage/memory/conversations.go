package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/travelmate/chat/internal/model"
	"github.com/travelmate/chat/internal/repository"
)

// Conversations mirrors repository.ConversationRepository, including its unique
// constraints on pair key and trip id.
type Conversations struct {
	mu     sync.RWMutex
	byID   map[string]*model.Conversation
	byPair map[string]string
	byTrip map[string]string
}

func NewConversations() *Conversations {
	return &Conversations{
		byID:   make(map[string]*model.Conversation),
		byPair: make(map[string]string),
		byTrip: make(map[string]string),
	}
}

func cloneConversation(c *model.Conversation) *model.Conversation {
	out := *c
	out.Participants = append([]string(nil), c.Participants...)
	if c.TripID != nil {
		id := *c.TripID
		out.TripID = &id
	}
	if c.LastMessage != nil {
		s := *c.LastMessage
		out.LastMessage = &s
	}
	return &out
}

func (s *Conversations) lookup(id string, ok bool) (*model.Conversation, error) {
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneConversation(s.byID[id]), nil
}

func (s *Conversations) GetByID(ctx context.Context, id string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byID[id]
	return s.lookup(id, ok)
}

func (s *Conversations) FindPrivate(ctx context.Context, pairKey string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPair[pairKey]
	return s.lookup(id, ok)
}

func (s *Conversations) FindGroup(ctx context.Context, tripID string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byTrip[tripID]
	return s.lookup(id, ok)
}

func (s *Conversations) Create(ctx context.Context, c *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.PairKey != "" {
		if _, dup := s.byPair[c.PairKey]; dup {
			return repository.ErrConflict
		}
	}
	if c.TripID != nil {
		if _, dup := s.byTrip[*c.TripID]; dup {
			return repository.ErrConflict
		}
	}
	stored := cloneConversation(c)
	stored.Participants = uniqueStrings(stored.Participants)
	s.byID[c.ID] = stored
	if c.PairKey != "" {
		s.byPair[c.PairKey] = c.ID
	}
	if c.TripID != nil {
		s.byTrip[*c.TripID] = c.ID
	}
	return nil
}

func (s *Conversations) AddParticipant(ctx context.Context, conversationID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[conversationID]
	if !ok {
		return repository.ErrNotFound
	}
	if c.HasParticipant(userID) {
		return nil
	}
	c.Participants = append(c.Participants, userID)
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Conversations) ListForUser(ctx context.Context, userID string) ([]model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Conversation, 0, 16)
	for _, c := range s.byID {
		if c.HasParticipant(userID) {
			out = append(out, *cloneConversation(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := out[i].LastActivity(), out[j].LastActivity()
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Conversations) UpdateSummary(ctx context.Context, conversationID string, sum model.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[conversationID]
	if !ok {
		return nil
	}
	if c.LastMessage != nil && c.LastMessage.SentAt.After(sum.SentAt) {
		return nil
	}
	c.LastMessage = &sum
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
