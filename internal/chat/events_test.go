package chat

import (
	"context"
	"sync"
	"time"

	"github.com/travelmate/chat/internal/events"
	"github.com/travelmate/chat/internal/model"
)

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *recordingPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	p.mu.Lock()
	p.keys = append(p.keys, routingKey)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

func (s *chatSuite) TestDomainEventsPublished() {
	pub := &recordingPublisher{}
	registry := NewRegistry(s.convs, s.store, s.dir, pub, time.Second)
	messages := NewMessages(s.convs, s.store, s.dir, pub, time.Second, 0)

	c, err := registry.GetOrCreatePrivate(s.ctx, "u1", "u2")
	s.Require().NoError(err)
	_, err = registry.GetOrCreatePrivate(s.ctx, "u2", "u1")
	s.Require().NoError(err)

	m, err := messages.Append(s.ctx, c.ID, "u1", "Alice", "hi")
	s.Require().NoError(err)
	_, err = messages.Append(s.ctx, c.ID, "u1", "Alice", "   ")
	s.Require().Error(err)
	s.Require().NoError(messages.DeleteByID(s.ctx, m.ID, "u1"))

	g, err := registry.GetOrCreateGroup(s.ctx, "t1", "u2")
	s.Require().NoError(err)
	s.Equal(model.KindGroup, g.Kind)

	s.Equal([]string{
		events.ConversationCreated,
		events.MessageCreated,
		events.MessageDeleted,
		events.ConversationCreated,
	}, pub.published())
}
