package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/travelmate/chat/internal/model"
)

const (
	userKeyPrefix = "dir:user:"
	tripKeyPrefix = "dir:trip:"
)

// Client хранит записи справочника как JSON со сроком жизни ttl.
type Client struct {
	cli *redis.Client
	ttl time.Duration
}

func New(ctx context.Context, url string, ttl time.Duration) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli, ttl: ttl}, nil
}

// NewFromClient оборачивает готовый клиент (тесты, общий пул).
func NewFromClient(cli *redis.Client, ttl time.Duration) *Client {
	return &Client{cli: cli, ttl: ttl}
}

func (c *Client) Close() error {
	return c.cli.Close()
}

func (c *Client) get(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := c.cli.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		// Битая запись: удаляем, чтобы следующий промах перечитал источник.
		c.cli.Del(ctx, key)
		return false, nil
	}
	return true, nil
}

func (c *Client) set(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.cli.Set(ctx, key, raw, c.ttl).Err()
}

func (c *Client) GetUser(ctx context.Context, id string) (*model.User, error) {
	u := &model.User{}
	ok, err := c.get(ctx, userKeyPrefix+id, u)
	if err != nil || !ok {
		return nil, err
	}
	return u, nil
}

func (c *Client) SetUser(ctx context.Context, u *model.User) error {
	return c.set(ctx, userKeyPrefix+u.ID, u)
}

func (c *Client) GetTrip(ctx context.Context, id string) (*model.Trip, error) {
	t := &model.Trip{}
	ok, err := c.get(ctx, tripKeyPrefix+id, t)
	if err != nil || !ok {
		return nil, err
	}
	return t, nil
}

func (c *Client) SetTrip(ctx context.Context, t *model.Trip) error {
	return c.set(ctx, tripKeyPrefix+t.ID, t)
}

// FlushDB очищает текущую БД Redis (для тестов).
func (c *Client) FlushDB(ctx context.Context) error {
	return c.cli.FlushDB(ctx).Err()
}
