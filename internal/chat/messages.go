package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/travelmate/chat/internal/apperr"
	"github.com/travelmate/chat/internal/events"
	"github.com/travelmate/chat/internal/keylock"
	"github.com/travelmate/chat/internal/logger"
	"github.com/travelmate/chat/internal/metrics"
	"github.com/travelmate/chat/internal/model"
	"github.com/travelmate/chat/internal/repository"
)

const DefaultHistoryLimit = 100

// Messages appends, reads and deletes messages of existing conversations.
type Messages struct {
	convs   ConversationStore
	store   MessageStore
	dir     Directory
	events  events.Publisher
	locks   *keylock.Map
	timeout time.Duration
	limit   int
	now     func() time.Time
}

func NewMessages(convs ConversationStore, store MessageStore, dir Directory, pub events.Publisher, timeout time.Duration, historyLimit int) *Messages {
	if pub == nil {
		pub = events.Noop{}
	}
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Messages{
		convs:   convs,
		store:   store,
		dir:     dir,
		events:  pub,
		locks:   keylock.New(),
		timeout: timeout,
		limit:   historyLimit,
		now:     time.Now,
	}
}

func (s *Messages) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Messages) participantOf(ctx context.Context, conversationID, userID string) (*model.Conversation, error) {
	c, err := s.convs.GetByID(ctx, conversationID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("conversation %s not found", conversationID)
	}
	if err != nil {
		return nil, apperr.FromStore("get conversation", err)
	}
	if !c.HasParticipant(userID) {
		return nil, apperr.Unauthorized("user is not a participant of this conversation")
	}
	return c, nil
}

// Append stores a message authored by a participant and advances the conversation summary.
// The author name stored is the directory name when the author is known there.
func (s *Messages) Append(ctx context.Context, conversationID, authorID, authorName, body string) (*model.Message, error) {
	defer logger.DeferLogDuration("messages.Append", time.Now())()
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperr.InvalidArgument("message text is required")
	}
	if strings.TrimSpace(authorID) == "" {
		return nil, apperr.InvalidArgument("author is required")
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	c, err := s.participantOf(sctx, conversationID, authorID)
	if err != nil {
		return nil, err
	}
	authorName = s.resolveName(sctx, authorID, authorName)

	m := &model.Message{
		ID:             uuid.NewString(),
		ConversationID: c.ID,
		Kind:           c.Kind,
		AuthorID:       authorID,
		AuthorName:     authorName,
		Body:           body,
	}
	switch c.Kind {
	case model.KindPrivate:
		to := c.Counterpart(authorID)
		m.RecipientID = &to
	case model.KindGroup:
		m.TripID = c.TripID
	}

	unlock := s.locks.Lock(c.ID)
	m.SentAt = s.now().UTC()
	if c.LastMessage != nil && m.SentAt.Before(c.LastMessage.SentAt) {
		// clock stepped back; keep sentAt in step with seq
		m.SentAt = c.LastMessage.SentAt
	}
	err = s.store.Create(sctx, m)
	if err == nil {
		err = s.convs.UpdateSummary(sctx, c.ID, model.Summary{
			Text:       m.Body,
			AuthorID:   m.AuthorID,
			AuthorName: m.AuthorName,
			SentAt:     m.SentAt,
		})
		if err != nil {
			// The message is durable; a stale summary heals on the next append.
			logger.Errorf("messages: update summary %s: %v", c.ID, err)
			err = nil
		}
	} else {
		err = apperr.FromStore("store message", err)
	}
	unlock()
	if err != nil {
		return nil, err
	}

	metrics.IncMessageStored(string(m.Kind))
	s.publish(ctx, events.MessageCreated, m)
	return m, nil
}

func (s *Messages) resolveName(ctx context.Context, authorID, fallback string) string {
	if u, err := s.dir.User(ctx, authorID); err == nil && u.Name != "" {
		return u.Name
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		logger.Warnf("messages: resolve author %s: %v", authorID, err)
	}
	if name := strings.TrimSpace(fallback); name != "" {
		return name
	}
	return authorID
}

func (s *Messages) page(p model.Page) (model.Page, error) {
	if p.Before < 0 {
		return p, apperr.InvalidArgument("before must be a positive sequence number")
	}
	if p.Limit <= 0 || p.Limit > s.limit {
		p.Limit = s.limit
	}
	return p, nil
}

// ListByConversation returns one page of history in ascending order. It never writes.
func (s *Messages) ListByConversation(ctx context.Context, conversationID, viewerID string, p model.Page) ([]model.MessageView, error) {
	defer logger.DeferLogDuration("messages.ListByConversation", time.Now())()
	p, err := s.page(p)
	if err != nil {
		return nil, err
	}
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	if _, err := s.participantOf(sctx, conversationID, viewerID); err != nil {
		return nil, err
	}
	list, err := s.store.ListByConversation(sctx, conversationID, p)
	if err != nil {
		return nil, apperr.FromStore("list messages", err)
	}
	views := make([]model.MessageView, 0, len(list))
	for i := range list {
		views = append(views, list[i].View(viewerID))
	}
	return views, nil
}

// MarkRead marks private messages addressed to recipientID as read. Group conversations
// have no read state.
func (s *Messages) MarkRead(ctx context.Context, conversationID, recipientID string) (int64, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	c, err := s.participantOf(sctx, conversationID, recipientID)
	if err != nil {
		return 0, err
	}
	if c.Kind != model.KindPrivate {
		return 0, nil
	}
	n, err := s.store.MarkRead(sctx, conversationID, recipientID)
	if err != nil {
		return 0, apperr.FromStore("mark read", err)
	}
	return n, nil
}

// Open is what a client does when it opens a conversation: read a page, then mark the
// conversation read for the viewer. The returned page reflects read state before marking.
func (s *Messages) Open(ctx context.Context, conversationID, viewerID string, p model.Page) ([]model.MessageView, error) {
	views, err := s.ListByConversation(ctx, conversationID, viewerID, p)
	if err != nil {
		return nil, err
	}
	if _, err := s.MarkRead(ctx, conversationID, viewerID); err != nil {
		return nil, err
	}
	return views, nil
}

// DeleteByID removes a message. Only its author may delete it; the conversation summary
// is left as is.
func (s *Messages) DeleteByID(ctx context.Context, messageID, actorID string) error {
	defer logger.DeferLogDuration("messages.DeleteByID", time.Now())()
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	m, err := s.store.GetByID(sctx, messageID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("message %s not found", messageID)
	}
	if err != nil {
		return apperr.FromStore("get message", err)
	}
	if m.AuthorID != actorID {
		return apperr.Unauthorized("only the author can delete a message")
	}
	if err := s.store.Delete(sctx, messageID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("message %s not found", messageID)
		}
		return apperr.FromStore("delete message", err)
	}
	s.publish(ctx, events.MessageDeleted, m)
	return nil
}

func (s *Messages) UnreadCount(ctx context.Context, conversationID, userID string) (int, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	n, err := s.store.CountUnread(sctx, conversationID, userID)
	if err != nil {
		return 0, apperr.FromStore("count unread", err)
	}
	return n, nil
}

func (s *Messages) publish(ctx context.Context, key string, m *model.Message) {
	pctx, cancel := s.storeCtx(context.WithoutCancel(ctx))
	defer cancel()
	_ = s.events.Publish(pctx, key, m)
}
