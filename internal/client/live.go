package client

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/travelmate/chat/internal/apperr"
	"github.com/travelmate/chat/internal/logger"
	"github.com/travelmate/chat/internal/model"
	"github.com/travelmate/chat/internal/ws"
)

const liveWriteWait = 10 * time.Second

type envelope struct {
	Type    ws.EventType    `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Live is the real-time connection of one signed-in user. Message events are routed
// to the timeline of their conversation; events for conversations not open are dropped.
type Live struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu     sync.RWMutex
	routes map[string]*Timeline

	// one join at a time waits for its joined/error answer
	joinMu  sync.Mutex
	waitMu  sync.Mutex
	waiting chan error

	errs chan ws.ErrorPayload
	done chan struct{}
}

// Dial connects to the socket endpoint (ws:// or wss://) with the bearer token.
func Dial(ctx context.Context, wsURL, token string) (*Live, error) {
	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+token)
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, wsURL, hdr)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, responseError(resp)
		}
		return nil, apperr.Transient("dial "+wsURL, err)
	}
	l := &Live{
		conn:   conn,
		routes: make(map[string]*Timeline),
		errs:   make(chan ws.ErrorPayload, 16),
		done:   make(chan struct{}),
	}
	go l.readLoop()
	return l, nil
}

// WSURL turns an http(s) base URL into the socket endpoint URL.
func WSURL(baseURL string) string {
	u := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

// Route starts delivering the conversation's live messages to t.
func (l *Live) Route(t *Timeline) {
	l.mu.Lock()
	l.routes[t.ConversationID()] = t
	l.mu.Unlock()
}

func (l *Live) Unroute(conversationID string) {
	l.mu.Lock()
	delete(l.routes, conversationID)
	l.mu.Unlock()
}

// Errors carries error events not answered to a pending join (failed sends, mostly).
func (l *Live) Errors() <-chan ws.ErrorPayload { return l.errs }

// Done is closed when the connection is gone.
func (l *Live) Done() <-chan struct{} { return l.done }

// JoinTrip subscribes to a trip room and waits for the server to confirm it.
func (l *Live) JoinTrip(ctx context.Context, tripID string) error {
	return l.join(ctx, ws.EventJoinTrip, ws.JoinTripPayload{TripID: tripID})
}

func (l *Live) SendTrip(tripID, text, clientMsgID string) error {
	return l.write(ws.EventSendTripMessage, ws.SendTripPayload{TripID: tripID, Text: text, ClientMsgID: clientMsgID})
}

func (l *Live) SendPrivate(toUserID, text, clientMsgID string) error {
	return l.write(ws.EventSendPrivateMessage, ws.SendPrivatePayload{ToUserID: toUserID, Text: text, ClientMsgID: clientMsgID})
}

func (l *Live) Close() error {
	l.writeMu.Lock()
	_ = l.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(liveWriteWait))
	l.writeMu.Unlock()
	err := l.conn.Close()
	<-l.done
	return err
}

func (l *Live) join(ctx context.Context, event ws.EventType, payload any) error {
	l.joinMu.Lock()
	defer l.joinMu.Unlock()

	ch := make(chan error, 1)
	l.waitMu.Lock()
	l.waiting = ch
	l.waitMu.Unlock()
	defer func() {
		l.waitMu.Lock()
		l.waiting = nil
		l.waitMu.Unlock()
	}()

	if err := l.write(event, payload); err != nil {
		return err
	}
	select {
	case err := <-ch:
		return err
	case <-l.done:
		return apperr.Transient("connection closed", nil)
	case <-ctx.Done():
		return apperr.Transient("join "+string(event), ctx.Err())
	}
}

func (l *Live) write(event ws.EventType, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return apperr.InvalidArgument("encode %s: %v", event, err)
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	_ = l.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
	if err := l.conn.WriteJSON(ws.IncomingMessage{Type: event, Payload: raw}); err != nil {
		return apperr.Transient("send "+string(event), err)
	}
	return nil
}

// answerJoin hands the result to a pending join; false if nobody waits.
func (l *Live) answerJoin(err error) bool {
	l.waitMu.Lock()
	defer l.waitMu.Unlock()
	if l.waiting == nil {
		return false
	}
	select {
	case l.waiting <- err:
	default:
	}
	return true
}

func (l *Live) readLoop() {
	defer close(l.done)
	for {
		var env envelope
		if err := l.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warnf("live: read: %v", err)
			}
			return
		}
		switch env.Type {
		case ws.EventReceiveTripMessage, ws.EventReceivePrivateMessage, ws.EventMessageSent:
			var v model.MessageView
			if err := json.Unmarshal(env.Payload, &v); err != nil {
				logger.Warnf("live: malformed %s: %v", env.Type, err)
				continue
			}
			l.mu.RLock()
			t := l.routes[v.ConversationID]
			l.mu.RUnlock()
			if t != nil {
				t.Deliver(v)
			}
		case ws.EventJoined:
			l.answerJoin(nil)
		case ws.EventError:
			var p ws.ErrorPayload
			_ = json.Unmarshal(env.Payload, &p)
			if (p.Event == ws.EventJoinTrip || p.Event == ws.EventJoinPrivate) && l.answerJoin(&apperr.Error{Code: apperr.Code(p.Code), Message: p.Message}) {
				continue
			}
			select {
			case l.errs <- p:
			default:
				logger.Warnf("live: dropped error event %s: %s", p.Code, p.Message)
			}
		}
	}
}

