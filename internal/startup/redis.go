package startup

import (
	"context"
	"time"

	redisstorage "github.com/travelmate/chat/internal/storage/redis"
)

// ConnectRedis подключает кеш справочника с повторами.
func ConnectRedis(ctx context.Context, url string, ttl, maxWait time.Duration) (*redisstorage.Client, error) {
	var client *redisstorage.Client
	err := retry(ctx, "redis connect", maxWait, 2*time.Second, func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		c, err := redisstorage.New(cctx, url, ttl)
		if err != nil {
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}
