// Package directory reads users and trips owned by other services, through a TTL cache.
package directory

import (
	"context"

	"github.com/travelmate/chat/internal/logger"
	"github.com/travelmate/chat/internal/model"
	"github.com/travelmate/chat/internal/storage"
)

type UserSource interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

type TripSource interface {
	GetByID(ctx context.Context, id string) (*model.Trip, error)
}

// Cached serves lookups from cache first. A cache failure is logged and the source is used.
type Cached struct {
	users UserSource
	trips TripSource
	cache storage.DirectoryCache
}

func New(users UserSource, trips TripSource, cache storage.DirectoryCache) *Cached {
	return &Cached{users: users, trips: trips, cache: cache}
}

func (d *Cached) User(ctx context.Context, id string) (*model.User, error) {
	if u, err := d.cache.GetUser(ctx, id); err != nil {
		logger.Warnf("directory: cache get user %s: %v", id, err)
	} else if u != nil {
		return u, nil
	}
	u, err := d.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := d.cache.SetUser(ctx, u); err != nil {
		logger.Warnf("directory: cache set user %s: %v", id, err)
	}
	return u, nil
}

func (d *Cached) Trip(ctx context.Context, id string) (*model.Trip, error) {
	if t, err := d.cache.GetTrip(ctx, id); err != nil {
		logger.Warnf("directory: cache get trip %s: %v", id, err)
	} else if t != nil {
		return t, nil
	}
	t, err := d.trips.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := d.cache.SetTrip(ctx, t); err != nil {
		logger.Warnf("directory: cache set trip %s: %v", id, err)
	}
	return t, nil
}
