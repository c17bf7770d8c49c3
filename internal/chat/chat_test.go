package chat

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/travelmate/chat/internal/apperr"
	"github.com/travelmate/chat/internal/model"
	"github.com/travelmate/chat/internal/storage/memory"
)

type chatSuite struct {
	suite.Suite
	ctx      context.Context
	convs    *memory.Conversations
	store    *memory.Messages
	dir      *memory.Directory
	registry *Registry
	messages *Messages
}

func TestChatSuite(t *testing.T) {
	suite.Run(t, new(chatSuite))
}

func (s *chatSuite) SetupTest() {
	s.ctx = context.Background()
	s.convs = memory.NewConversations()
	s.store = memory.NewMessages()
	s.dir = memory.NewDirectory()
	for _, u := range []model.User{
		{ID: "u1", Name: "Alice"},
		{ID: "u2", Name: "Bob", AvatarURL: "https://cdn.example/bob.png"},
		{ID: "u3", Name: "Carol"},
	} {
		s.dir.PutUser(u)
	}
	s.dir.PutTrip(model.Trip{ID: "t1", Origin: "Berlin", Destination: "Lisbon", HostID: "u1"})
	s.registry = NewRegistry(s.convs, s.store, s.dir, nil, time.Second)
	s.messages = NewMessages(s.convs, s.store, s.dir, nil, time.Second, 0)
}

func (s *chatSuite) private(a, b string) *model.Conversation {
	c, err := s.registry.GetOrCreatePrivate(s.ctx, a, b)
	s.Require().NoError(err)
	return c
}

func (s *chatSuite) TestGetOrCreatePrivate_SameConversationEitherOrder() {
	first := s.private("u1", "u2")
	second := s.private("u2", "u1")

	s.Equal(first.ID, second.ID)
	s.Equal(model.KindPrivate, first.Kind)
	s.ElementsMatch([]string{"u1", "u2"}, second.Participants)
}

func (s *chatSuite) TestGetOrCreatePrivate_ConcurrentCreatesOnce() {
	const n = 32
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := "u1", "u3"
			if i%2 == 1 {
				a, b = b, a
			}
			c, err := s.registry.GetOrCreatePrivate(s.ctx, a, b)
			if s.NoError(err) {
				ids[i] = c.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		s.Equal(ids[0], id)
	}
	list, err := s.convs.ListForUser(s.ctx, "u1")
	s.Require().NoError(err)
	s.Len(list, 1)
}

func (s *chatSuite) TestGetOrCreatePrivate_Validation() {
	_, err := s.registry.GetOrCreatePrivate(s.ctx, "u1", "  ")
	s.ErrorIs(err, apperr.ErrInvalidArgument)

	_, err = s.registry.GetOrCreatePrivate(s.ctx, "u1", "u1")
	s.ErrorIs(err, apperr.ErrInvalidArgument)

	_, err = s.registry.GetOrCreatePrivate(s.ctx, "u1", "ghost")
	s.ErrorIs(err, apperr.ErrNotFound)
}

func (s *chatSuite) TestGetOrCreateGroup_NUsersNoDuplicates() {
	users := []string{"u1", "u2", "u3", "u4", "u5"}
	var wg sync.WaitGroup
	for _, u := range users {
		for rep := 0; rep < 3; rep++ {
			wg.Add(1)
			go func(u string) {
				defer wg.Done()
				_, err := s.registry.GetOrCreateGroup(s.ctx, "t1", u)
				s.NoError(err)
			}(u)
		}
	}
	wg.Wait()

	c, err := s.registry.GroupForTrip(s.ctx, "t1")
	s.Require().NoError(err)
	s.ElementsMatch(users, c.Participants)
	s.Equal("Lisbon Trip Chat", c.Name)
	s.Equal(model.KindGroup, c.Kind)
	s.Require().NotNil(c.TripID)
	s.Equal("t1", *c.TripID)
}

func (s *chatSuite) TestGetOrCreateGroup_SeedsHost() {
	c, err := s.registry.GetOrCreateGroup(s.ctx, "t1", "u2")
	s.Require().NoError(err)
	s.ElementsMatch([]string{"u1", "u2"}, c.Participants)

	_, err = s.registry.GetOrCreateGroup(s.ctx, "missing", "u2")
	s.ErrorIs(err, apperr.ErrNotFound)
}

func (s *chatSuite) TestAppendThenList_IsMine() {
	c := s.private("u1", "u2")
	m, err := s.messages.Append(s.ctx, c.ID, "u1", "Alice", "hi")
	s.Require().NoError(err)
	s.NotEmpty(m.ID)
	s.Positive(m.Seq)

	forBob, err := s.messages.ListByConversation(s.ctx, c.ID, "u2", model.Page{})
	s.Require().NoError(err)
	s.Require().Len(forBob, 1)
	s.Equal("hi", forBob[0].Text)
	s.Equal("u1", forBob[0].AuthorID)
	s.False(forBob[0].IsMine)

	forAlice, err := s.messages.ListByConversation(s.ctx, c.ID, "u1", model.Page{})
	s.Require().NoError(err)
	s.True(forAlice[0].IsMine)
}

func (s *chatSuite) TestAppend_TrimsAndUsesDirectoryName() {
	c := s.private("u1", "u2")
	m, err := s.messages.Append(s.ctx, c.ID, "u1", "Mallory", "  hello  ")
	s.Require().NoError(err)
	s.Equal("hello", m.Body)
	s.Equal("Alice", m.AuthorName)
	s.Require().NotNil(m.RecipientID)
	s.Equal("u2", *m.RecipientID)
}

func (s *chatSuite) TestAppend_EmptyBodyPersistsNothing() {
	c := s.private("u1", "u2")
	for _, body := range []string{"", "   ", "\n\t"} {
		_, err := s.messages.Append(s.ctx, c.ID, "u1", "Alice", body)
		s.ErrorIs(err, apperr.ErrInvalidArgument)
	}
	list, err := s.messages.ListByConversation(s.ctx, c.ID, "u1", model.Page{})
	s.Require().NoError(err)
	s.Empty(list)

	got, err := s.registry.Get(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Nil(got.LastMessage)
}

func (s *chatSuite) TestAppend_NonParticipantRejected() {
	c := s.private("u1", "u2")
	_, err := s.messages.Append(s.ctx, c.ID, "u3", "Carol", "let me in")
	s.ErrorIs(err, apperr.ErrUnauthorized)

	_, err = s.messages.Append(s.ctx, "no-such-conversation", "u1", "Alice", "hi")
	s.ErrorIs(err, apperr.ErrNotFound)
}

func (s *chatSuite) TestListTwice_SameContent() {
	c := s.private("u1", "u2")
	_, err := s.messages.Append(s.ctx, c.ID, "u1", "Alice", "one")
	s.Require().NoError(err)

	first, err := s.messages.Open(s.ctx, c.ID, "u2", model.Page{})
	s.Require().NoError(err)
	second, err := s.messages.Open(s.ctx, c.ID, "u2", model.Page{})
	s.Require().NoError(err)

	s.Require().Len(second, len(first))
	s.Equal(first[0].ID, second[0].ID)
	s.Equal(first[0].Text, second[0].Text)
	s.True(second[0].IsRead)
}

func (s *chatSuite) TestListIsPure_MarkReadExplicit() {
	c := s.private("u1", "u2")
	_, err := s.messages.Append(s.ctx, c.ID, "u1", "Alice", "one")
	s.Require().NoError(err)

	_, err = s.messages.ListByConversation(s.ctx, c.ID, "u2", model.Page{})
	s.Require().NoError(err)
	n, err := s.messages.UnreadCount(s.ctx, c.ID, "u2")
	s.Require().NoError(err)
	s.Equal(1, n)

	changed, err := s.messages.MarkRead(s.ctx, c.ID, "u2")
	s.Require().NoError(err)
	s.EqualValues(1, changed)
	n, err = s.messages.UnreadCount(s.ctx, c.ID, "u2")
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *chatSuite) TestMarkRead_GroupIsNoop() {
	c, err := s.registry.GetOrCreateGroup(s.ctx, "t1", "u2")
	s.Require().NoError(err)
	_, err = s.messages.Append(s.ctx, c.ID, "u1", "Alice", "hello all")
	s.Require().NoError(err)

	n, err := s.messages.MarkRead(s.ctx, c.ID, "u2")
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *chatSuite) TestOrdering_SurvivesLatencyJitter() {
	jittery := &jitterStore{Messages: s.store}
	s.messages = NewMessages(s.convs, jittery, s.dir, nil, time.Second, 0)
	c := s.private("u1", "u2")

	for i := 1; i <= 10; i++ {
		_, err := s.messages.Append(s.ctx, c.ID, "u1", "Alice", fmt.Sprintf("m%d", i))
		s.Require().NoError(err)
	}
	list, err := s.messages.ListByConversation(s.ctx, c.ID, "u2", model.Page{})
	s.Require().NoError(err)
	s.Require().Len(list, 10)
	for i, v := range list {
		s.Equal(fmt.Sprintf("m%d", i+1), v.Text)
	}
}

func (s *chatSuite) TestHistoryPaging() {
	s.messages = NewMessages(s.convs, s.store, s.dir, nil, time.Second, 3)
	c := s.private("u1", "u2")
	for i := 1; i <= 7; i++ {
		_, err := s.messages.Append(s.ctx, c.ID, "u1", "Alice", fmt.Sprintf("m%d", i))
		s.Require().NoError(err)
	}

	latest, err := s.messages.ListByConversation(s.ctx, c.ID, "u2", model.Page{Limit: 50})
	s.Require().NoError(err)
	s.Require().Len(latest, 3)
	s.Equal([]string{"m5", "m6", "m7"}, texts(latest))

	older, err := s.messages.ListByConversation(s.ctx, c.ID, "u2", model.Page{Limit: 2, Before: latest[0].Seq})
	s.Require().NoError(err)
	s.Equal([]string{"m3", "m4"}, texts(older))

	_, err = s.messages.ListByConversation(s.ctx, c.ID, "u2", model.Page{Before: -1})
	s.ErrorIs(err, apperr.ErrInvalidArgument)
}

func (s *chatSuite) TestDeleteByID() {
	c := s.private("u1", "u2")
	m, err := s.messages.Append(s.ctx, c.ID, "u1", "Alice", "oops")
	s.Require().NoError(err)

	s.ErrorIs(s.messages.DeleteByID(s.ctx, "nope", "u1"), apperr.ErrNotFound)
	s.ErrorIs(s.messages.DeleteByID(s.ctx, m.ID, "u2"), apperr.ErrUnauthorized)

	list, err := s.messages.ListByConversation(s.ctx, c.ID, "u1", model.Page{})
	s.Require().NoError(err)
	s.Len(list, 1)

	s.Require().NoError(s.messages.DeleteByID(s.ctx, m.ID, "u1"))
	list, err = s.messages.ListByConversation(s.ctx, c.ID, "u1", model.Page{})
	s.Require().NoError(err)
	s.Empty(list)
}

func (s *chatSuite) TestListForUser() {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.registry.now = func() time.Time { return now }

	s.messages.now = func() time.Time { return now.Add(-3 * time.Hour) }
	p := s.private("u1", "u2")
	_, err := s.messages.Append(s.ctx, p.ID, "u2", "Bob", "see you there")
	s.Require().NoError(err)

	s.messages.now = func() time.Time { return now.Add(-5 * time.Minute) }
	g, err := s.registry.GetOrCreateGroup(s.ctx, "t1", "u3")
	s.Require().NoError(err)
	_, err = s.messages.Append(s.ctx, g.ID, "u3", "Carol", "who brings snacks")
	s.Require().NoError(err)

	items, err := s.registry.ListForUser(s.ctx, "u1")
	s.Require().NoError(err)
	s.Require().Len(items, 2)

	s.Equal(g.ID, items[0].ID)
	s.Equal("Lisbon Trip Chat", items[0].DisplayName)
	s.Equal("t1", items[0].TripID)
	s.Equal("5m ago", items[0].Time)
	s.Equal("Carol", items[0].LastMessageAuthor)
	s.Zero(items[0].UnreadCount)

	s.Equal(p.ID, items[1].ID)
	s.Equal("Bob", items[1].DisplayName)
	s.Equal("https://cdn.example/bob.png", items[1].AvatarURL)
	s.Equal("see you there", items[1].LastMessage)
	s.Equal("3h ago", items[1].Time)
	s.Equal(1, items[1].UnreadCount)
}

func (s *chatSuite) TestClockStepBack_OrderSummaryAndPaging() {
	s.messages = NewMessages(s.convs, s.store, s.dir, nil, time.Second, 1)
	c := s.private("u1", "u2")
	base := time.Now().UTC()
	for i, at := range []time.Time{base, base.Add(2 * time.Second), base.Add(time.Second)} {
		s.messages.now = func() time.Time { return at }
		_, err := s.messages.Append(s.ctx, c.ID, "u1", "Alice", fmt.Sprintf("m%d", i+1))
		s.Require().NoError(err)
	}

	got, err := s.registry.Get(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal("m3", got.LastMessage.Text)

	// walk back one message per page: nothing skipped, nothing repeated
	var walked []string
	var prev time.Time
	page := model.Page{}
	for {
		list, err := s.messages.ListByConversation(s.ctx, c.ID, "u2", page)
		s.Require().NoError(err)
		if len(list) == 0 {
			break
		}
		walked = append([]string{list[0].Text}, walked...)
		if !prev.IsZero() {
			s.False(list[0].SentAt.After(prev), "sentAt follows seq")
		}
		prev = list[0].SentAt
		page.Before = list[0].Seq
	}
	s.Equal([]string{"m1", "m2", "m3"}, walked)
}

func (s *chatSuite) TestSlowStoreIsTransient() {
	slow := NewMessages(s.convs, blockingStore{s.store}, s.dir, nil, 20*time.Millisecond, 0)
	c := s.private("u1", "u2")
	_, err := slow.Append(s.ctx, c.ID, "u1", "Alice", "hello")
	s.ErrorIs(err, apperr.ErrTransient)
}

func texts(list []model.MessageView) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		out = append(out, v.Text)
	}
	return out
}

type jitterStore struct {
	*memory.Messages
}

func (j *jitterStore) Create(ctx context.Context, m *model.Message) error {
	time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond)
	return j.Messages.Create(ctx, m)
}

type blockingStore struct {
	*memory.Messages
}

func (blockingStore) Create(ctx context.Context, m *model.Message) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestTimeAgo(t *testing.T) {
	now := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		at   time.Time
		want string
	}{
		{now.Add(-30 * time.Second), "Now"},
		{now.Add(-5 * time.Minute), "5m ago"},
		{now.Add(-59 * time.Minute), "59m ago"},
		{now.Add(-3 * time.Hour), "3h ago"},
		{now.Add(-49 * time.Hour), "2d ago"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, TimeAgo(now, c.at))
	}
}

func TestPairKeyOrderIndependent(t *testing.T) {
	require.Equal(t, model.PairKey("b", "a"), model.PairKey("a", "b"))
}
