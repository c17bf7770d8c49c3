package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/travelmate/chat/internal/logger"
	"github.com/travelmate/chat/internal/model"
)

// UserRepository reads the identity directory. The table is owned by the auth service.
type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByID", time.Now())()
	u := &model.User{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, email, avatar_url FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Name, &u.Email, &u.AvatarURL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("userRepo.GetByID: %w", err)
	}
	return u, nil
}

// TripRepository reads the trip directory.
type TripRepository struct {
	pool *pgxpool.Pool
}

func NewTripRepository(pool *pgxpool.Pool) *TripRepository {
	return &TripRepository{pool: pool}
}

func (r *TripRepository) GetByID(ctx context.Context, id string) (*model.Trip, error) {
	defer logger.DeferLogDuration("trip.GetByID", time.Now())()
	t := &model.Trip{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, origin, destination, host_id FROM trips WHERE id = $1`, id,
	).Scan(&t.ID, &t.Origin, &t.Destination, &t.HostID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("tripRepo.GetByID: %w", err)
	}
	return t, nil
}
