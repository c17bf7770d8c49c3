package memory

import (
	"context"
	"sync"
	"time"

	"github.com/travelmate/chat/internal/model"
)

type item[T any] struct {
	val T
	exp time.Time
}

// Client is an in-process DirectoryCache with the same TTL semantics as redis.Client.
type Client struct {
	mu    sync.RWMutex
	ttl   time.Duration
	users map[string]item[model.User]
	trips map[string]item[model.Trip]
}

func New(ttl time.Duration) *Client {
	return &Client{
		ttl:   ttl,
		users: make(map[string]item[model.User]),
		trips: make(map[string]item[model.Trip]),
	}
}

func (c *Client) Close() error { return nil }

func (c *Client) GetUser(ctx context.Context, id string) (*model.User, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.users[id]
	if !ok || time.Now().After(v.exp) {
		return nil, nil
	}
	u := v.val
	return &u, nil
}

func (c *Client) SetUser(ctx context.Context, u *model.User) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[u.ID] = item[model.User]{val: *u, exp: time.Now().Add(c.ttl)}
	return nil
}

func (c *Client) GetTrip(ctx context.Context, id string) (*model.Trip, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.trips[id]
	if !ok || time.Now().After(v.exp) {
		return nil, nil
	}
	t := v.val
	return &t, nil
}

func (c *Client) SetTrip(ctx context.Context, t *model.Trip) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trips[t.ID] = item[model.Trip]{val: *t, exp: time.Now().Add(c.ttl)}
	return nil
}
