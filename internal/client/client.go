package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/travelmate/chat/internal/apperr"
	"github.com/travelmate/chat/internal/model"
)

// Identity is the auth service answer. All four fields are mandatory.
type Identity struct {
	ID    string `json:"id" validate:"required"`
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Token string `json:"token" validate:"required"`
}

var validate = validator.New()

// DecodeIdentity reads a login response and rejects anything that is not exactly
// the {id, name, email, token} shape.
func DecodeIdentity(r io.Reader) (*Identity, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var id Identity
	if err := dec.Decode(&id); err != nil {
		return nil, apperr.InvalidArgument("auth response: %v", err)
	}
	if err := validate.Struct(&id); err != nil {
		return nil, apperr.InvalidArgument("auth response: %v", err)
	}
	return &id, nil
}

// Client calls the chat REST API on behalf of one signed-in user.
type Client struct {
	baseURL string
	http    *http.Client
	id      *Identity
}

// New creates a client for baseURL (e.g. http://localhost:3000). httpClient may be nil.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Login posts credentials to the auth service and keeps the returned identity.
func (c *Client) Login(ctx context.Context, loginURL, email, password string) (*Identity, error) {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, bytes.NewReader(body))
	if err != nil {
		return nil, apperr.InvalidArgument("login url: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Transient("login", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, responseError(resp)
	}
	id, err := DecodeIdentity(resp.Body)
	if err != nil {
		return nil, err
	}
	c.id = id
	return id, nil
}

// UseIdentity sets an identity obtained elsewhere, e.g. restored from storage.
func (c *Client) UseIdentity(id *Identity) { c.id = id }

func (c *Client) Identity() *Identity { return c.id }

func (c *Client) Conversations(ctx context.Context) ([]model.ConversationListItem, error) {
	var out []model.ConversationListItem
	err := c.do(ctx, http.MethodGet, "/conversations", nil, &out)
	return out, err
}

func (c *Client) OpenPrivate(ctx context.Context, otherUserID string) (string, error) {
	var out struct {
		ConversationID string `json:"conversationId"`
	}
	err := c.do(ctx, http.MethodPost, "/conversations/private", map[string]string{"otherUserId": otherUserID}, &out)
	return out.ConversationID, err
}

func (c *Client) OpenGroup(ctx context.Context, tripID string) (string, error) {
	var out struct {
		ConversationID string `json:"conversationId"`
	}
	err := c.do(ctx, http.MethodPost, "/conversations/group", map[string]string{"tripId": tripID}, &out)
	return out.ConversationID, err
}

// History fetches a page of messages. The server marks the conversation read for the caller.
func (c *Client) History(ctx context.Context, conversationID string, page model.Page) ([]model.MessageView, error) {
	q := url.Values{}
	if page.Limit > 0 {
		q.Set("limit", strconv.Itoa(page.Limit))
	}
	if page.Before > 0 {
		q.Set("before", strconv.FormatInt(page.Before, 10))
	}
	path := "/conversations/" + url.PathEscape(conversationID) + "/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []model.MessageView
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// Send stores a message and returns the server's copy of it.
func (c *Client) Send(ctx context.Context, conversationID, text, clientMsgID string) (*model.MessageView, error) {
	body := map[string]string{"text": text}
	if clientMsgID != "" {
		body["clientMsgId"] = clientMsgID
	}
	var out model.MessageView
	if err := c.do(ctx, http.MethodPost, "/conversations/"+url.PathEscape(conversationID)+"/messages", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) MarkRead(ctx context.Context, conversationID string) (int64, error) {
	var out struct {
		Updated int64 `json:"updated"`
	}
	err := c.do(ctx, http.MethodPut, "/conversations/"+url.PathEscape(conversationID)+"/read", nil, &out)
	return out.Updated, err
}

func (c *Client) Delete(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodDelete, "/messages/"+url.PathEscape(messageID), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if c.id == nil {
		return apperr.Unauthorized("not signed in")
	}
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return apperr.InvalidArgument("encode request: %v", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return apperr.InvalidArgument("request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.id.Token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Transient(method+" "+path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return responseError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Internal(fmt.Sprintf("decode %s %s", method, path), err)
	}
	return nil
}

func responseError(resp *http.Response) error {
	var e struct {
		Message string `json:"message"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&e)
	return apperr.FromHTTPStatus(resp.StatusCode, e.Message)
}
