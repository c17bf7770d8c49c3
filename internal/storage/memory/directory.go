package memory

import (
	"context"
	"sync"

	"github.com/travelmate/chat/internal/model"
	"github.com/travelmate/chat/internal/repository"
)

// Directory is a seeded users/trips source for -inmem mode and tests.
type Directory struct {
	mu    sync.RWMutex
	users map[string]model.User
	trips map[string]model.Trip
}

func NewDirectory() *Directory {
	return &Directory{users: make(map[string]model.User), trips: make(map[string]model.Trip)}
}

func (d *Directory) PutUser(u model.User) {
	d.mu.Lock()
	d.users[u.ID] = u
	d.mu.Unlock()
}

func (d *Directory) PutTrip(t model.Trip) {
	d.mu.Lock()
	d.trips[t.ID] = t
	d.mu.Unlock()
}

func (d *Directory) User(ctx context.Context, id string) (*model.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (d *Directory) Trip(ctx context.Context, id string) (*model.Trip, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.trips[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}
