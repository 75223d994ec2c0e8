package db

import (
	"backend-tripjournal/internal/config"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis builds the client used for the document change fan-out.
// With no address configured it returns nil and live subscriptions fall
// back to the in-process store.
func ConnectRedis(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}

	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
}
