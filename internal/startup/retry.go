// Package startup подключает внешние зависимости процесса: Postgres, Redis, встроенный Postgres для -dev.
package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/travelmate/chat/internal/logger"
)

const maxBackoff = 30 * time.Second

// retry повторяет attempt с экспоненциальной паузой, пока не истечёт maxWait или ctx.
func retry(ctx context.Context, what string, maxWait, backoff time.Duration, attempt func(ctx context.Context) error) error {
	deadline := time.Now().Add(maxWait)
	for {
		err := attempt(ctx)
		if err == nil {
			return nil
		}
		if time.Now().Add(backoff).After(deadline) {
			return fmt.Errorf("%s (gave up after %v): %w", what, maxWait, err)
		}
		logger.Errorf("%s failed, retry in %v: %v", what, backoff, err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", what, ctx.Err())
		case <-time.After(backoff):
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}
