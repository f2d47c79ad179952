package redis

import (
	"context"
	"time"

	"PPRealtime/tools/errs"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 3 * time.Second

// Config configures the Redis client.
type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// NewClient builds a client and pings it once within a timeout.
func NewClient(ctx context.Context, c Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
		PoolSize: c.PoolSize,
	})

	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errs.ErrStorage.Wrap(err, "addr", c.Addr)
	}
	return rdb, nil
}
