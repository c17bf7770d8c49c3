package chat

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/travelmate/chat/internal/apperr"
	"github.com/travelmate/chat/internal/events"
	"github.com/travelmate/chat/internal/keylock"
	"github.com/travelmate/chat/internal/logger"
	"github.com/travelmate/chat/internal/model"
	"github.com/travelmate/chat/internal/repository"
)

const unknownUserName = "Unknown user"

// Registry finds or creates conversations and builds per-user listings.
type Registry struct {
	convs   ConversationStore
	msgs    MessageStore
	dir     Directory
	events  events.Publisher
	locks   *keylock.Map
	timeout time.Duration
	now     func() time.Time
}

func NewRegistry(convs ConversationStore, msgs MessageStore, dir Directory, pub events.Publisher, timeout time.Duration) *Registry {
	if pub == nil {
		pub = events.Noop{}
	}
	return &Registry{
		convs:   convs,
		msgs:    msgs,
		dir:     dir,
		events:  pub,
		locks:   keylock.New(),
		timeout: timeout,
		now:     time.Now,
	}
}

func (r *Registry) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

// GetOrCreatePrivate returns the single private conversation between userA and userB.
func (r *Registry) GetOrCreatePrivate(ctx context.Context, userA, userB string) (*model.Conversation, error) {
	defer logger.DeferLogDuration("registry.GetOrCreatePrivate", time.Now())()
	userA, userB = strings.TrimSpace(userA), strings.TrimSpace(userB)
	if userA == "" || userB == "" {
		return nil, apperr.InvalidArgument("userId and otherUserId are required")
	}
	if userA == userB {
		return nil, apperr.InvalidArgument("cannot open a private conversation with yourself")
	}
	if err := r.requireUser(ctx, userB); err != nil {
		return nil, err
	}

	key := model.PairKey(userA, userB)
	unlock := r.locks.Lock("private:" + key)
	defer unlock()

	sctx, cancel := r.storeCtx(ctx)
	defer cancel()

	c, err := r.convs.FindPrivate(sctx, key)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.FromStore("find private conversation", err)
	}

	now := r.now().UTC()
	c = &model.Conversation{
		ID:           uuid.NewString(),
		Kind:         model.KindPrivate,
		Participants: []string{userA, userB},
		PairKey:      key,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.convs.Create(sctx, c); err != nil {
		if !errors.Is(err, repository.ErrConflict) {
			return nil, apperr.FromStore("create private conversation", err)
		}
		// Another instance created it first.
		c, err = r.convs.FindPrivate(sctx, key)
		if err != nil {
			return nil, apperr.FromStore("find private conversation", err)
		}
		return c, nil
	}
	r.publishCreated(ctx, c)
	logger.Infof("registry: private conversation %s created for %s", c.ID, key)
	return c, nil
}

// GetOrCreateGroup returns the trip's group conversation with joiningUserID added to it.
func (r *Registry) GetOrCreateGroup(ctx context.Context, tripID, joiningUserID string) (*model.Conversation, error) {
	defer logger.DeferLogDuration("registry.GetOrCreateGroup", time.Now())()
	tripID, joiningUserID = strings.TrimSpace(tripID), strings.TrimSpace(joiningUserID)
	if tripID == "" || joiningUserID == "" {
		return nil, apperr.InvalidArgument("tripId and userId are required")
	}
	trip, err := r.trip(ctx, tripID)
	if err != nil {
		return nil, err
	}

	unlock := r.locks.Lock("group:" + tripID)
	defer unlock()

	sctx, cancel := r.storeCtx(ctx)
	defer cancel()

	c, err := r.convs.FindGroup(sctx, tripID)
	switch {
	case err == nil:
		return r.join(sctx, c, joiningUserID)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, apperr.FromStore("find group conversation", err)
	}

	now := r.now().UTC()
	participants := []string{trip.HostID}
	if joiningUserID != trip.HostID {
		participants = append(participants, joiningUserID)
	}
	c = &model.Conversation{
		ID:           uuid.NewString(),
		Kind:         model.KindGroup,
		Participants: participants,
		TripID:       &trip.ID,
		Name:         model.GroupName(trip),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.convs.Create(sctx, c); err != nil {
		if !errors.Is(err, repository.ErrConflict) {
			return nil, apperr.FromStore("create group conversation", err)
		}
		c, err = r.convs.FindGroup(sctx, tripID)
		if err != nil {
			return nil, apperr.FromStore("find group conversation", err)
		}
		return r.join(sctx, c, joiningUserID)
	}
	r.publishCreated(ctx, c)
	logger.Infof("registry: group conversation %s created for trip %s", c.ID, tripID)
	return c, nil
}

func (r *Registry) join(ctx context.Context, c *model.Conversation, userID string) (*model.Conversation, error) {
	if c.HasParticipant(userID) {
		return c, nil
	}
	if err := r.convs.AddParticipant(ctx, c.ID, userID); err != nil {
		return nil, apperr.FromStore("add participant", err)
	}
	c.Participants = append(c.Participants, userID)
	return c, nil
}

// Get returns a conversation by id.
func (r *Registry) Get(ctx context.Context, id string) (*model.Conversation, error) {
	sctx, cancel := r.storeCtx(ctx)
	defer cancel()
	c, err := r.convs.GetByID(sctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("conversation %s not found", id)
	}
	if err != nil {
		return nil, apperr.FromStore("get conversation", err)
	}
	return c, nil
}

// RequireParticipant loads the conversation and checks that userID belongs to it.
func (r *Registry) RequireParticipant(ctx context.Context, conversationID, userID string) (*model.Conversation, error) {
	c, err := r.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !c.HasParticipant(userID) {
		return nil, apperr.Unauthorized("user is not a participant of this conversation")
	}
	return c, nil
}

// GroupForTrip returns the trip's group conversation without joining it.
func (r *Registry) GroupForTrip(ctx context.Context, tripID string) (*model.Conversation, error) {
	sctx, cancel := r.storeCtx(ctx)
	defer cancel()
	c, err := r.convs.FindGroup(sctx, tripID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("no group conversation for trip %s", tripID)
	}
	if err != nil {
		return nil, apperr.FromStore("find group conversation", err)
	}
	return c, nil
}

// ListForUser returns the user's conversations, most recently active first.
func (r *Registry) ListForUser(ctx context.Context, userID string) ([]model.ConversationListItem, error) {
	defer logger.DeferLogDuration("registry.ListForUser", time.Now())()
	if strings.TrimSpace(userID) == "" {
		return nil, apperr.InvalidArgument("userId is required")
	}
	sctx, cancel := r.storeCtx(ctx)
	defer cancel()

	convs, err := r.convs.ListForUser(sctx, userID)
	if err != nil {
		return nil, apperr.FromStore("list conversations", err)
	}
	now := r.now()
	items := make([]model.ConversationListItem, 0, len(convs))
	for i := range convs {
		c := &convs[i]
		item := model.ConversationListItem{
			ID:           c.ID,
			Kind:         c.Kind,
			LastActivity: c.LastActivity(),
			Time:         TimeAgo(now, c.LastActivity()),
		}
		if c.LastMessage != nil {
			item.LastMessage = c.LastMessage.Text
			item.LastMessageAuthor = c.LastMessage.AuthorName
		}
		switch c.Kind {
		case model.KindPrivate:
			other := c.Counterpart(userID)
			item.OtherUserID = other
			item.DisplayName = unknownUserName
			item.AvatarURL = (&model.User{ID: other}).Avatar()
			if u, err := r.dir.User(sctx, other); err == nil {
				item.DisplayName = u.Name
				item.AvatarURL = u.Avatar()
			} else if !errors.Is(err, repository.ErrNotFound) {
				logger.Warnf("registry: resolve user %s: %v", other, err)
			}
			n, err := r.msgs.CountUnread(sctx, c.ID, userID)
			if err != nil {
				return nil, apperr.FromStore("count unread", err)
			}
			item.UnreadCount = n
		case model.KindGroup:
			item.DisplayName = c.Name
			if c.TripID != nil {
				item.TripID = *c.TripID
			}
		}
		items = append(items, item)
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].LastActivity.After(items[j].LastActivity)
	})
	return items, nil
}

func (r *Registry) requireUser(ctx context.Context, id string) error {
	sctx, cancel := r.storeCtx(ctx)
	defer cancel()
	if _, err := r.dir.User(sctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("user %s not found", id)
		}
		return apperr.FromStore("resolve user", err)
	}
	return nil
}

func (r *Registry) trip(ctx context.Context, id string) (*model.Trip, error) {
	sctx, cancel := r.storeCtx(ctx)
	defer cancel()
	t, err := r.dir.Trip(sctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("trip %s not found", id)
		}
		return nil, apperr.FromStore("resolve trip", err)
	}
	return t, nil
}

func (r *Registry) publishCreated(ctx context.Context, c *model.Conversation) {
	pctx, cancel := r.storeCtx(context.WithoutCancel(ctx))
	defer cancel()
	_ = r.events.Publish(pctx, events.ConversationCreated, c)
}
