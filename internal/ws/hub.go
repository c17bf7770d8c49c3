package ws

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/travelmate/chat/internal/apperr"
	"github.com/travelmate/chat/internal/keylock"
	"github.com/travelmate/chat/internal/logger"
	"github.com/travelmate/chat/internal/metrics"
	"github.com/travelmate/chat/internal/model"
)

// Conversations is the part of the conversation registry the hub needs.
type Conversations interface {
	GetOrCreatePrivate(ctx context.Context, userA, userB string) (*model.Conversation, error)
	GroupForTrip(ctx context.Context, tripID string) (*model.Conversation, error)
}

// Messages persists messages before they are fanned out.
type Messages interface {
	Append(ctx context.Context, conversationID, authorID, authorName, body string) (*model.Message, error)
}

type Options struct {
	MaxConns       int
	SendBuffer     int
	MaxMessageSize int64
}

func TripRoom(tripID string) string { return "trip:" + tripID }

func UserRoom(userID string) string { return "user:" + userID }

// Hub owns live sessions and their room memberships. Rooms: trip:<tripId>, user:<userId>.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[string]map[*Client]struct{}
	clients  map[*Client]struct{}
	opts     Options
	convs    Conversations
	messages Messages

	// roomLocks keep persist+emit atomic per room so delivery order equals storage order.
	roomLocks *keylock.Map

	register   chan *Client
	unregister chan *Client
	// stopping closes when shutdown begins; pumps exiting after that never block on the hub.
	stopping chan struct{}
	done     chan struct{}
}

func NewHub(convs Conversations, messages Messages, opts Options) *Hub {
	if opts.MaxConns <= 0 {
		opts.MaxConns = 10000
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 8192
	}
	return &Hub{
		rooms:      make(map[string]map[*Client]struct{}),
		clients:    make(map[*Client]struct{}),
		opts:       opts,
		convs:      convs,
		messages:   messages,
		roomLocks:  keylock.New(),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		stopping:   make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

// Done closes once Run has returned and every session is closed.
func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) shutdown() {
	close(h.stopping)
	h.mu.Lock()
	all := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		all = append(all, c)
		metrics.DecWSActive()
	}
	h.clients = make(map[*Client]struct{})
	h.rooms = make(map[string]map[*Client]struct{})
	h.mu.Unlock()

	// sessions queued for registration never joined; close them as well
	for queued := true; queued; {
		select {
		case c := <-h.register:
			all = append(all, c)
		default:
			queued = false
		}
	}

	for _, c := range all {
		c.Close()
	}
	for _, c := range all {
		c.Wait()
	}
	logger.Infof("ws hub stopped, %d sessions closed", len(all))
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if len(h.clients) >= h.opts.MaxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.opts.MaxConns, c.userID)
		c.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.joinLocked(c, UserRoom(c.userID))
	h.mu.Unlock()
	c.markReady()
	metrics.IncWSActive()
	logger.Debugf("ws session %s connected user=%s", c.ID, c.userID)
}

// removeClient drops the session from every room at once. Nothing is redelivered later.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for room := range c.rooms {
		members := h.rooms[room]
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	c.rooms = make(map[string]struct{})
	h.mu.Unlock()

	c.Close()
	metrics.DecWSActive()
	logger.Debugf("ws session %s disconnected user=%s", c.ID, c.userID)
}

func (h *Hub) joinLocked(c *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

// join returns false when the session is no longer registered.
func (h *Hub) join(c *Client, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return false
	}
	h.joinLocked(c, room)
	return true
}

func (h *Hub) joinAndAck(c *Client, room string) error {
	if !h.join(c, room) {
		return apperr.Transient("session is not registered yet", nil)
	}
	h.sendToClient(c, OutgoingMessage{Type: EventJoined, Payload: JoinedPayload{Room: room}})
	return nil
}

// Rooms lists the rooms the session is in.
func (h *Hub) Rooms(c *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		out = append(out, r)
	}
	return out
}

func (h *Hub) inRoom(c *Client, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := c.rooms[room]
	return ok
}

// Connected is the number of registered sessions.
func (h *Hub) Connected() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) members(room string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members := h.rooms[room]
	out := make([]*Client, 0, len(members))
	for c := range members {
		out = append(out, c)
	}
	return out
}

// HandleMessage dispatches one client event. Failures go back to the sender as an error
// event; the connection is never closed because of them.
func (h *Hub) HandleMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	metrics.IncWSEvent("in", string(msg.Type))
	var err error
	switch msg.Type {
	case EventJoinTrip:
		var p JoinTripPayload
		if err = decode(msg.Payload, &p); err == nil {
			err = h.JoinGroupRoom(ctx, c, p.TripID)
		}
	case EventJoinPrivate:
		var p JoinPrivatePayload
		if err = decode(msg.Payload, &p); err == nil {
			err = h.JoinPrivateRoom(c, p.UserID)
		}
	case EventSendTripMessage:
		var p SendTripPayload
		if err = decode(msg.Payload, &p); err == nil {
			_, err = h.PublishGroupMessage(ctx, c, p)
		}
	case EventSendPrivateMessage:
		var p SendPrivatePayload
		if err = decode(msg.Payload, &p); err == nil {
			_, err = h.PublishPrivateMessage(ctx, c, p)
		}
	default:
		err = apperr.InvalidArgument("unknown event type %q", msg.Type)
	}
	if err != nil {
		h.reportError(c, msg.Type, err)
	}
}

func decode(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return apperr.InvalidArgument("payload is required")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return apperr.InvalidArgument("malformed payload")
	}
	return nil
}

func (h *Hub) reportError(c *Client, event EventType, err error) {
	code := apperr.CodeOf(err)
	if code == apperr.CodeInternal || code == apperr.CodeTransient {
		logger.Errorf("ws %s user=%s: %v", event, c.userID, err)
	} else {
		logger.Debugf("ws %s user=%s rejected: %v", event, c.userID, err)
	}
	h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: ErrorPayload{
		Event:   event,
		Code:    string(code),
		Message: apperr.PublicMessage(err),
	}})
}

// JoinGroupRoom subscribes the session to a trip room. Only participants of the trip's
// group conversation may join.
func (h *Hub) JoinGroupRoom(ctx context.Context, c *Client, tripID string) error {
	tripID = strings.TrimSpace(tripID)
	if tripID == "" {
		return apperr.InvalidArgument("tripId is required")
	}
	conv, err := h.convs.GroupForTrip(ctx, tripID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(c.userID) {
		return apperr.Unauthorized("user is not a participant of this trip chat")
	}
	room := TripRoom(tripID)
	return h.joinAndAck(c, room)
}

// JoinPrivateRoom subscribes the session to its own user room; other users' rooms are refused.
func (h *Hub) JoinPrivateRoom(c *Client, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		userID = c.userID
	}
	if userID != c.userID {
		return apperr.Unauthorized("cannot join another user's room")
	}
	room := UserRoom(userID)
	return h.joinAndAck(c, room)
}

func checkSender(c *Client, senderID string) error {
	if senderID = strings.TrimSpace(senderID); senderID != "" && senderID != c.userID {
		return apperr.Unauthorized("senderId does not match the session user")
	}
	return nil
}

// PublishGroupMessage persists a message to the trip's group conversation, then emits it to the trip room.
func (h *Hub) PublishGroupMessage(ctx context.Context, c *Client, p SendTripPayload) (*model.Message, error) {
	defer logger.DeferLogDuration("ws.PublishGroupMessage", time.Now())()
	if err := checkSender(c, p.SenderID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.TripID) == "" {
		return nil, apperr.InvalidArgument("tripId is required")
	}
	conv, err := h.convs.GroupForTrip(ctx, p.TripID)
	if err != nil {
		return nil, err
	}
	return h.Post(ctx, conv, c.userID, c.userName, p.Text, p.ClientMsgID, c)
}

// PublishPrivateMessage persists a message to the private conversation with p.ToUserID
// (creating it if needed), emits it to the recipient's room and acknowledges the sender.
func (h *Hub) PublishPrivateMessage(ctx context.Context, c *Client, p SendPrivatePayload) (*model.Message, error) {
	defer logger.DeferLogDuration("ws.PublishPrivateMessage", time.Now())()
	if err := checkSender(c, p.SenderID); err != nil {
		return nil, err
	}
	conv, err := h.convs.GetOrCreatePrivate(ctx, c.userID, p.ToUserID)
	if err != nil {
		return nil, err
	}
	return h.Post(ctx, conv, c.userID, c.userName, p.Text, p.ClientMsgID, c)
}

func roomFor(conv *model.Conversation, authorID string) string {
	if conv.Kind == model.KindGroup && conv.TripID != nil {
		return TripRoom(*conv.TripID)
	}
	return UserRoom(conv.Counterpart(authorID))
}

// Post appends a message and fans it out under the target room's lock. origin is the
// sending session, nil for REST-originated messages.
func (h *Hub) Post(ctx context.Context, conv *model.Conversation, authorID, authorName, text, clientMsgID string, origin *Client) (*model.Message, error) {
	room := roomFor(conv, authorID)
	unlock := h.roomLocks.Lock(room)
	defer unlock()

	m, err := h.messages.Append(ctx, conv.ID, authorID, authorName, text)
	if err != nil {
		return nil, err
	}
	switch conv.Kind {
	case model.KindGroup:
		h.BroadcastGroup(m, clientMsgID)
		if origin != nil && !h.inRoom(origin, room) {
			h.sendMessage(origin, EventMessageSent, m, clientMsgID)
		}
	case model.KindPrivate:
		h.BroadcastPrivate(m, clientMsgID)
		if origin != nil {
			h.sendMessage(origin, EventMessageSent, m, clientMsgID)
		}
	}
	return m, nil
}

// BroadcastGroup emits receive_trip_message to every session in the message's trip room.
func (h *Hub) BroadcastGroup(m *model.Message, clientMsgID string) {
	if m.TripID == nil {
		return
	}
	for _, c := range h.members(TripRoom(*m.TripID)) {
		h.sendMessage(c, EventReceiveTripMessage, m, clientMsgID)
	}
}

// BroadcastPrivate emits receive_private_message to the recipient's user room.
func (h *Hub) BroadcastPrivate(m *model.Message, clientMsgID string) {
	if m.RecipientID == nil {
		return
	}
	for _, c := range h.members(UserRoom(*m.RecipientID)) {
		h.sendMessage(c, EventReceivePrivateMessage, m, clientMsgID)
	}
}

// sendMessage renders m for the receiving user; the correlation id only goes back to the author.
func (h *Hub) sendMessage(c *Client, event EventType, m *model.Message, clientMsgID string) {
	v := m.View(c.userID)
	if c.userID == m.AuthorID {
		v.ClientMsgID = clientMsgID
	}
	h.sendToClient(c, OutgoingMessage{Type: event, Payload: v})
}

func (h *Hub) sendToClient(c *Client, msg OutgoingMessage) {
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		logger.Errorf("ws send buffer full, closing slow client user=%s", c.userID)
		metrics.IncWSEviction()
		c.Close()
		go h.Unregister(c)
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case <-h.stopping:
		c.Close()
		return
	default:
	}
	select {
	case h.register <- c:
	case <-h.stopping:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopping:
	}
}
