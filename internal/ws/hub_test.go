package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travelmate/chat/internal/chat"
	"github.com/travelmate/chat/internal/model"
	"github.com/travelmate/chat/internal/storage/memory"
)

type testEnv struct {
	hub      *Hub
	registry *chat.Registry
	messages *chat.Messages
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	dir := memory.NewDirectory()
	dir.PutUser(model.User{ID: "u1", Name: "Alice"})
	dir.PutUser(model.User{ID: "u2", Name: "Bob"})
	dir.PutUser(model.User{ID: "u3", Name: "Carol"})
	dir.PutTrip(model.Trip{ID: "t1", Origin: "Oslo", Destination: "Rome", HostID: "u1"})

	convs, store := memory.NewConversations(), memory.NewMessages()
	env := &testEnv{
		registry: chat.NewRegistry(convs, store, dir, nil, time.Second),
		messages: chat.NewMessages(convs, store, dir, nil, time.Second, 0),
	}
	env.hub = NewHub(env.registry, env.messages, opts)

	ctx, cancel := context.WithCancel(context.Background())
	go env.hub.Run(ctx)
	t.Cleanup(cancel)
	return env
}

func (e *testEnv) connect(t *testing.T, userID, name string) *Client {
	t.Helper()
	c := NewClient(e.hub, nil, userID, name)
	e.hub.Register(c)
	require.Eventually(t, func() bool { return e.hub.inRoom(c, UserRoom(userID)) }, time.Second, 5*time.Millisecond)
	return c
}

func send(t *testing.T, h *Hub, c *Client, typ EventType, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	h.HandleMessage(context.Background(), c, IncomingMessage{Type: typ, Payload: raw})
}

func nextEvent(t *testing.T, c *Client) OutgoingMessage {
	t.Helper()
	select {
	case msg := <-c.Events():
		return msg
	case <-time.After(time.Second):
		t.Fatalf("no event for user %s", c.userID)
		return OutgoingMessage{}
	}
}

func noEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.Events():
		t.Fatalf("unexpected event %s for user %s", msg.Type, c.userID)
	case <-time.After(50 * time.Millisecond):
	}
}

func errorCode(t *testing.T, msg OutgoingMessage) string {
	t.Helper()
	require.Equal(t, EventError, msg.Type)
	p, ok := msg.Payload.(ErrorPayload)
	require.True(t, ok)
	return p.Code
}

func TestHub_ConnectJoinsOwnRoom(t *testing.T) {
	env := newTestEnv(t, Options{})
	c := env.connect(t, "u1", "Alice")

	assert.ElementsMatch(t, []string{"user:u1"}, env.hub.Rooms(c))
	assert.Equal(t, 1, env.hub.Connected())
}

func TestHub_JoinPrivateOnlyOwnRoom(t *testing.T) {
	env := newTestEnv(t, Options{})
	c := env.connect(t, "u1", "Alice")

	send(t, env.hub, c, EventJoinPrivate, JoinPrivatePayload{UserID: "u2"})
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, nextEvent(t, c)))
	assert.NotContains(t, env.hub.Rooms(c), "user:u2")

	send(t, env.hub, c, EventJoinPrivate, JoinPrivatePayload{UserID: "u1"})
	joined := nextEvent(t, c)
	assert.Equal(t, EventJoined, joined.Type)
	assert.Equal(t, JoinedPayload{Room: "user:u1"}, joined.Payload)
}

func TestHub_JoinTripRequiresParticipant(t *testing.T) {
	env := newTestEnv(t, Options{})
	_, err := env.registry.GetOrCreateGroup(context.Background(), "t1", "u2")
	require.NoError(t, err)

	outsider := env.connect(t, "u3", "Carol")
	send(t, env.hub, outsider, EventJoinTrip, JoinTripPayload{TripID: "t1"})
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, nextEvent(t, outsider)))

	member := env.connect(t, "u2", "Bob")
	send(t, env.hub, member, EventJoinTrip, JoinTripPayload{TripID: "t1"})
	assert.Equal(t, EventJoined, nextEvent(t, member).Type)
	assert.Contains(t, env.hub.Rooms(member), "trip:t1")

	// idempotent
	send(t, env.hub, member, EventJoinTrip, JoinTripPayload{TripID: "t1"})
	assert.Equal(t, EventJoined, nextEvent(t, member).Type)
	assert.Len(t, env.hub.members("trip:t1"), 1)
}

func TestHub_GroupMessageReachesTripRoom(t *testing.T) {
	env := newTestEnv(t, Options{})
	_, err := env.registry.GetOrCreateGroup(context.Background(), "t1", "u2")
	require.NoError(t, err)

	alice := env.connect(t, "u1", "Alice")
	bob := env.connect(t, "u2", "Bob")
	for _, c := range []*Client{alice, bob} {
		send(t, env.hub, c, EventJoinTrip, JoinTripPayload{TripID: "t1"})
		require.Equal(t, EventJoined, nextEvent(t, c).Type)
	}

	send(t, env.hub, alice, EventSendTripMessage, SendTripPayload{
		Text: "hello", TripID: "t1", SenderID: "u1", SenderName: "Someone else", ClientMsgID: "c-1",
		Timestamp: "1999-01-01T00:00:00Z",
	})

	forAlice := nextEvent(t, alice)
	require.Equal(t, EventReceiveTripMessage, forAlice.Type)
	av := forAlice.Payload.(MessagePayload)
	assert.True(t, av.IsMine)
	assert.Equal(t, "c-1", av.ClientMsgID)
	assert.Equal(t, "Alice", av.AuthorName)
	assert.WithinDuration(t, time.Now(), av.SentAt, 5*time.Second)

	forBob := nextEvent(t, bob)
	require.Equal(t, EventReceiveTripMessage, forBob.Type)
	bv := forBob.Payload.(MessagePayload)
	assert.False(t, bv.IsMine)
	assert.Empty(t, bv.ClientMsgID)
	assert.Equal(t, av.ID, bv.ID)
	assert.Equal(t, "hello", bv.Text)
}

func TestHub_GroupSenderOutsideRoomGetsAck(t *testing.T) {
	env := newTestEnv(t, Options{})
	_, err := env.registry.GetOrCreateGroup(context.Background(), "t1", "u2")
	require.NoError(t, err)
	bob := env.connect(t, "u2", "Bob")

	send(t, env.hub, bob, EventSendTripMessage, SendTripPayload{Text: "hi", TripID: "t1"})
	assert.Equal(t, EventMessageSent, nextEvent(t, bob).Type)
}

func TestHub_PrivateMessage(t *testing.T) {
	env := newTestEnv(t, Options{})
	alice := env.connect(t, "u1", "Alice")
	bob := env.connect(t, "u2", "Bob")
	carol := env.connect(t, "u3", "Carol")

	send(t, env.hub, alice, EventSendPrivateMessage, SendPrivatePayload{Text: "psst", ToUserID: "u2", ClientMsgID: "k"})

	received := nextEvent(t, bob)
	require.Equal(t, EventReceivePrivateMessage, received.Type)
	rv := received.Payload.(MessagePayload)
	assert.Equal(t, "psst", rv.Text)
	assert.False(t, rv.IsMine)

	ack := nextEvent(t, alice)
	require.Equal(t, EventMessageSent, ack.Type)
	av := ack.Payload.(MessagePayload)
	assert.Equal(t, rv.ID, av.ID)
	assert.True(t, av.IsMine)
	assert.Equal(t, "k", av.ClientMsgID)

	noEvent(t, alice)
	noEvent(t, carol)
}

func TestHub_FailuresKeepConnection(t *testing.T) {
	env := newTestEnv(t, Options{})
	alice := env.connect(t, "u1", "Alice")

	send(t, env.hub, alice, EventSendPrivateMessage, SendPrivatePayload{Text: "   ", ToUserID: "u2"})
	assert.Equal(t, "INVALID_ARGUMENT", errorCode(t, nextEvent(t, alice)))

	send(t, env.hub, alice, EventSendPrivateMessage, SendPrivatePayload{Text: "x", ToUserID: "u2", SenderID: "u2"})
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, nextEvent(t, alice)))

	send(t, env.hub, alice, EventSendTripMessage, SendTripPayload{Text: "x", TripID: "nope"})
	assert.Equal(t, "NOT_FOUND", errorCode(t, nextEvent(t, alice)))

	env.hub.HandleMessage(context.Background(), alice, IncomingMessage{Type: "typing"})
	assert.Equal(t, "INVALID_ARGUMENT", errorCode(t, nextEvent(t, alice)))

	assert.Equal(t, 1, env.hub.Connected())
}

func TestHub_DisconnectLeavesAllRooms(t *testing.T) {
	env := newTestEnv(t, Options{})
	_, err := env.registry.GetOrCreateGroup(context.Background(), "t1", "u2")
	require.NoError(t, err)
	bob := env.connect(t, "u2", "Bob")
	send(t, env.hub, bob, EventJoinTrip, JoinTripPayload{TripID: "t1"})
	require.Equal(t, EventJoined, nextEvent(t, bob).Type)

	env.hub.Unregister(bob)
	require.Eventually(t, func() bool { return env.hub.Connected() == 0 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, env.hub.members("trip:t1"))
	assert.Empty(t, env.hub.members("user:u2"))
}

func TestHub_BroadcastOrderMatchesStorageOrder(t *testing.T) {
	env := newTestEnv(t, Options{SendBuffer: 512})
	_, err := env.registry.GetOrCreateGroup(context.Background(), "t1", "u2")
	require.NoError(t, err)
	_, err = env.registry.GetOrCreateGroup(context.Background(), "t1", "u3")
	require.NoError(t, err)

	watcher := env.connect(t, "u3", "Carol")
	send(t, env.hub, watcher, EventJoinTrip, JoinTripPayload{TripID: "t1"})
	require.Equal(t, EventJoined, nextEvent(t, watcher).Type)

	senders := []*Client{env.connect(t, "u1", "Alice"), env.connect(t, "u2", "Bob")}
	const perSender = 25
	var wg sync.WaitGroup
	for _, s := range senders {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				_, err := env.hub.PublishGroupMessage(context.Background(), c, SendTripPayload{
					Text: fmt.Sprintf("%s-%d", c.userID, i), TripID: "t1",
				})
				assert.NoError(t, err)
			}
		}(s)
	}
	wg.Wait()

	var last int64
	for i := 0; i < 2*perSender; i++ {
		v := nextEvent(t, watcher).Payload.(MessagePayload)
		assert.Greater(t, v.Seq, last)
		last = v.Seq
	}
}

func TestHub_EvictsSlowClient(t *testing.T) {
	env := newTestEnv(t, Options{SendBuffer: 1})
	alice := env.connect(t, "u1", "Alice")
	bob := env.connect(t, "u2", "Bob")

	for i := 0; i < 3; i++ {
		_, _ = env.hub.PublishPrivateMessage(context.Background(), alice, SendPrivatePayload{Text: "spam", ToUserID: "u2"})
		<-alice.Events()
	}
	require.Eventually(t, func() bool { return !env.hub.inRoom(bob, "user:u2") }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, env.hub.Connected())
}

func TestHub_ConnectionLimit(t *testing.T) {
	env := newTestEnv(t, Options{MaxConns: 1})
	env.connect(t, "u1", "Alice")

	extra := NewClient(env.hub, nil, "u2", "Bob")
	env.hub.Register(extra)
	select {
	case <-extra.done:
	case <-time.After(time.Second):
		t.Fatal("client over the limit was not closed")
	}
	assert.Equal(t, 1, env.hub.Connected())
}
