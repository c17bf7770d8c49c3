// Package client is the consumer-side façade of the chat: REST calls, the live socket
// and per-conversation timelines that merge history with real-time delivery.
package client

import (
	"sync"

	"github.com/travelmate/chat/internal/model"
)

type State int

const (
	StateClosed State = iota
	StateLoading
	StateLive
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateLive:
		return "live"
	default:
		return "closed"
	}
}

// Timeline is the displayed message list of one open conversation.
// Order is arrival order after the history baseline; a message id appears at most once.
type Timeline struct {
	conversationID string
	viewerID       string

	mu      sync.Mutex
	state   State
	items   []model.MessageView
	seen    map[string]struct{}
	pending []model.MessageView
	loadErr error
	changed chan struct{}
}

func NewTimeline(conversationID, viewerID string) *Timeline {
	return &Timeline{
		conversationID: conversationID,
		viewerID:       viewerID,
		seen:           make(map[string]struct{}),
		changed:        make(chan struct{}, 1),
	}
}

func (t *Timeline) ConversationID() string { return t.conversationID }

// Begin moves a closed timeline to Loading and drops whatever it displayed before.
func (t *Timeline) Begin() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateClosed {
		return
	}
	t.state = StateLoading
	t.items = nil
	t.pending = nil
	t.loadErr = nil
	t.seen = make(map[string]struct{})
}

// Load installs the history snapshot and goes Live. A failed fetch leaves an empty
// baseline; live messages buffered meanwhile are appended either way.
func (t *Timeline) Load(snapshot []model.MessageView, err error) {
	t.mu.Lock()
	if t.state != StateLoading {
		t.mu.Unlock()
		return
	}
	t.loadErr = err
	if err != nil {
		snapshot = nil
	}
	for _, v := range snapshot {
		t.appendLocked(v)
	}
	for _, v := range t.pending {
		t.appendLocked(v)
	}
	t.pending = nil
	t.state = StateLive
	t.mu.Unlock()
	t.notify()
}

// Deliver applies one message from the live stream or an own-send echo.
// It reports whether the displayed list changed.
func (t *Timeline) Deliver(v model.MessageView) bool {
	if v.ConversationID != t.conversationID {
		return false
	}
	t.mu.Lock()
	var added bool
	switch t.state {
	case StateLoading:
		t.pending = append(t.pending, v)
	case StateLive:
		added = t.appendLocked(v)
	}
	t.mu.Unlock()
	if added {
		t.notify()
	}
	return added
}

// Close stops the timeline; later deliveries are dropped.
func (t *Timeline) Close() {
	t.mu.Lock()
	t.state = StateClosed
	t.pending = nil
	t.mu.Unlock()
	t.notify()
}

func (t *Timeline) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err is the history fetch failure of the last Load, if any.
func (t *Timeline) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loadErr
}

// Messages returns a copy of the displayed list.
func (t *Timeline) Messages() []model.MessageView {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.MessageView, len(t.items))
	copy(out, t.items)
	return out
}

// Changed fires after the list or the state changes. Signals coalesce.
func (t *Timeline) Changed() <-chan struct{} { return t.changed }

func (t *Timeline) appendLocked(v model.MessageView) bool {
	if v.ID == "" {
		return false
	}
	if _, dup := t.seen[v.ID]; dup {
		return false
	}
	t.seen[v.ID] = struct{}{}
	v.IsMine = t.viewerID != "" && v.AuthorID == t.viewerID
	t.items = append(t.items, v)
	return true
}

func (t *Timeline) notify() {
	select {
	case t.changed <- struct{}{}:
	default:
	}
}
