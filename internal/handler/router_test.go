package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travelmate/chat/internal/auth"
	"github.com/travelmate/chat/internal/chat"
	"github.com/travelmate/chat/internal/config"
	"github.com/travelmate/chat/internal/model"
	"github.com/travelmate/chat/internal/storage/memory"
	"github.com/travelmate/chat/internal/ws"
)

type testAPI struct {
	router http.Handler
	tokens *auth.Manager
}

func newTestAPI(t *testing.T, ready func(context.Context) error) *testAPI {
	t.Helper()
	dir := memory.NewDirectory()
	dir.PutUser(model.User{ID: "u1", Name: "Alice"})
	dir.PutUser(model.User{ID: "u2", Name: "Bob"})
	dir.PutTrip(model.Trip{ID: "t1", Origin: "Oslo", Destination: "Rome", HostID: "u1"})

	convs, store := memory.NewConversations(), memory.NewMessages()
	registry := chat.NewRegistry(convs, store, dir, nil, time.Second)
	messages := chat.NewMessages(convs, store, dir, nil, time.Second, 0)
	hub := ws.NewHub(registry, messages, ws.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	api := &testAPI{tokens: auth.NewManager("secret", time.Hour)}
	api.router = NewRouter(Deps{
		Config:   &config.Config{CORSAllowedOrigins: "*", InternalSecret: "internal"},
		Registry: registry,
		Messages: messages,
		Hub:      hub,
		Verifier: api.tokens,
		Ready:    ready,
	})
	return api
}

func (a *testAPI) do(t *testing.T, userID, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "192.0.2.10:5555"
	if userID != "" {
		tok, err := a.tokens.Issue(userID, "", "")
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var e errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e.Message
}

func openPrivate(t *testing.T, a *testAPI) string {
	t.Helper()
	rec := a.do(t, "u1", http.MethodPost, "/conversations/private", `{"otherUserId":"u2"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out openResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotEmpty(t, out.ConversationID)
	return out.ConversationID
}

func TestRouter_RequiresToken(t *testing.T) {
	a := newTestAPI(t, nil)
	rec := a.do(t, "", http.MethodGet, "/conversations", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_IdentityMismatch(t *testing.T) {
	a := newTestAPI(t, nil)

	rec := a.do(t, "u1", http.MethodGet, "/conversations?userId=u2", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(t, "u1", http.MethodPost, "/conversations/private", `{"userId":"u2","otherUserId":"u1"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, decodeMessage(t, rec), "userId")

	rec = a.do(t, "u1", http.MethodPost, "/conversations/private", `{"userId":"u1","otherUserId":"u2"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_Validation(t *testing.T) {
	a := newTestAPI(t, nil)

	rec := a.do(t, "u1", http.MethodPost, "/conversations/private", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "otherUserId is required", decodeMessage(t, rec))

	rec = a.do(t, "u1", http.MethodPost, "/conversations/private", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, "u1", http.MethodPost, "/conversations/private", `{"otherUserId":"u1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "private chat with oneself")

	rec = a.do(t, "u1", http.MethodPost, "/conversations/group", `{"tripId":"nope"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	id := openPrivate(t, a)
	rec = a.do(t, "u1", http.MethodPost, "/conversations/"+id+"/messages", `{"text":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, "u1", http.MethodGet, "/conversations/"+id+"/messages?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_MessageFlow(t *testing.T) {
	a := newTestAPI(t, nil)
	id := openPrivate(t, a)

	rec := a.do(t, "u1", http.MethodPost, "/conversations/"+id+"/messages", `{"text":"hello","clientMsgId":"c1"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sent model.MessageView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sent))
	assert.Equal(t, "hello", sent.Text)
	assert.Equal(t, "Alice", sent.AuthorName)
	assert.True(t, sent.IsMine)
	assert.Equal(t, "c1", sent.ClientMsgID)

	// outsiders cannot read or write
	rec = a.do(t, "u3", http.MethodGet, "/conversations/"+id+"/messages", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(t, "u2", http.MethodPut, "/conversations/"+id+"/read", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"updated":1}`, rec.Body.String())

	rec = a.do(t, "u2", http.MethodDelete, "/messages/"+sent.ID, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "only the author deletes")

	rec = a.do(t, "u1", http.MethodDelete, "/messages/"+sent.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = a.do(t, "u1", http.MethodGet, "/conversations/"+id+"/messages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestRouter_UnknownConversation(t *testing.T) {
	a := newTestAPI(t, nil)
	rec := a.do(t, "u1", http.MethodGet, "/conversations/missing/messages", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_Health(t *testing.T) {
	a := newTestAPI(t, nil)
	rec := a.do(t, "", http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	down := newTestAPI(t, func(context.Context) error { return errors.New("db down") })
	rec = down.do(t, "", http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouter_MetricsInternalOnly(t *testing.T) {
	a := newTestAPI(t, nil)
	rec := a.do(t, "", http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	req.Header.Set("X-Internal-Secret", "internal")
	rec = httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSplitOrigins(t *testing.T) {
	assert.Equal(t, []string{"*"}, splitOrigins(""))
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, splitOrigins(" https://a.example, https://b.example ,"))
}
