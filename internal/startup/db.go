package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ConnectDB открывает пул и ждёт успешного ping; БД в контейнере может подняться позже сервиса.
func ConnectDB(ctx context.Context, url string, maxConns int, maxWait time.Duration) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	poolCfg.MaxConns = int32(maxConns)
	if poolCfg.MaxConns >= 4 {
		poolCfg.MinConns = 4
	}

	var pool *pgxpool.Pool
	err = retry(ctx, "db connect", maxWait, 2*time.Second, func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		p, err := pgxpool.NewWithConfig(cctx, poolCfg)
		if err != nil {
			return err
		}
		if err := p.Ping(cctx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}
