package client

import (
	"context"
	"sync"

	"github.com/travelmate/chat/internal/apperr"
	"github.com/travelmate/chat/internal/logger"
	"github.com/travelmate/chat/internal/model"
)

// Session ties the REST client and the live connection of one user together and
// keeps the set of open timelines.
type Session struct {
	api  *Client
	live *Live

	mu   sync.Mutex
	open map[string]*Timeline
}

// NewSession needs a signed-in api client. live may be nil: timelines then only see
// history and own sends.
func NewSession(api *Client, live *Live) (*Session, error) {
	if api.Identity() == nil {
		return nil, apperr.Unauthorized("not signed in")
	}
	return &Session{api: api, live: live, open: make(map[string]*Timeline)}, nil
}

func (s *Session) UserID() string { return s.api.Identity().ID }

// OpenPrivate resolves the private conversation with otherUserID and opens it.
// The user room is joined at connect, so no subscription is needed.
func (s *Session) OpenPrivate(ctx context.Context, otherUserID string) (*Timeline, error) {
	id, err := s.api.OpenPrivate(ctx, otherUserID)
	if err != nil {
		return nil, err
	}
	return s.openConversation(ctx, id, nil), nil
}

// OpenGroup resolves (joining if needed) the trip's group conversation and opens it.
func (s *Session) OpenGroup(ctx context.Context, tripID string) (*Timeline, error) {
	id, err := s.api.OpenGroup(ctx, tripID)
	if err != nil {
		return nil, err
	}
	var subscribe func(context.Context) error
	if s.live != nil {
		subscribe = func(ctx context.Context) error { return s.live.JoinTrip(ctx, tripID) }
	}
	return s.openConversation(ctx, id, subscribe), nil
}

// openConversation subscribes and fetches history at the same time, then loads the
// snapshot. Both must finish before Load so nothing falls between them.
func (s *Session) openConversation(ctx context.Context, conversationID string, subscribe func(context.Context) error) *Timeline {
	s.mu.Lock()
	t, ok := s.open[conversationID]
	if !ok {
		t = NewTimeline(conversationID, s.UserID())
		s.open[conversationID] = t
	}
	s.mu.Unlock()
	if ok && t.State() != StateClosed {
		return t
	}

	t.Begin()
	if s.live != nil {
		s.live.Route(t)
	}

	type result struct {
		views []model.MessageView
		err   error
	}
	hist := make(chan result, 1)
	go func() {
		views, err := s.api.History(ctx, conversationID, model.Page{})
		hist <- result{views, err}
	}()
	if subscribe != nil {
		if err := subscribe(ctx); err != nil {
			logger.Warnf("session: subscribe %s: %v", conversationID, err)
		}
	}
	res := <-hist
	if res.err != nil {
		logger.Warnf("session: history %s: %v", conversationID, res.err)
	}
	t.Load(res.views, res.err)
	return t
}

// Close stops routing live messages to the conversation's timeline.
func (s *Session) Close(conversationID string) {
	s.mu.Lock()
	t, ok := s.open[conversationID]
	delete(s.open, conversationID)
	s.mu.Unlock()
	if s.live != nil {
		s.live.Unroute(conversationID)
	}
	if ok {
		t.Close()
	}
}

// Send posts text and applies the server's echo to the open timeline. Nothing is shown
// before the server has stored the message.
func (s *Session) Send(ctx context.Context, conversationID, text, clientMsgID string) (*model.MessageView, error) {
	v, err := s.api.Send(ctx, conversationID, text, clientMsgID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	t := s.open[conversationID]
	s.mu.Unlock()
	if t != nil {
		t.Deliver(*v)
	}
	return v, nil
}

// Shutdown closes every timeline and the live connection.
func (s *Session) Shutdown() error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.open))
	for id := range s.open {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		s.Close(id)
	}
	if s.live != nil {
		return s.live.Close()
	}
	return nil
}
