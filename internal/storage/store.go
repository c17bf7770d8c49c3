package storage

import (
	"context"

	"github.com/travelmate/chat/internal/model"
)

// DirectoryCache: кеш записей справочника пользователей и поездок.
// Реализации: redis.Client, memory.Client (для -dev/-inmem без Redis).
// Промах кеша возвращает (nil, nil); ошибка означает недоступность кеша, вызывающий идёт в источник.
type DirectoryCache interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
	SetUser(ctx context.Context, u *model.User) error
	GetTrip(ctx context.Context, id string) (*model.Trip, error)
	SetTrip(ctx context.Context, t *model.Trip) error
	Close() error
}
