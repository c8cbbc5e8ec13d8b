package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"
)

const connectTimeout = 5 * time.Second

// Config holds the connection settings for the lock and dead letter store
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	// PoolSize of 0 keeps the go-redis default
	PoolSize int
}

func (c Config) addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Client is the shared go-redis handle for locks and dead letters
type Client struct {
	rdb    *redis.Client
	logger ectologger.Logger
}

// NewClient connects and pings, failing if Redis cannot be reached within the connect timeout
func NewClient(ctx context.Context, cfg Config, logger ectologger.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.addr(),
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: connectTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis unreachable at %s: %w", cfg.addr(), err)
	}

	logger.WithFields(map[string]any{"addr": cfg.addr(), "db": cfg.DB}).Info("Connected to redis")
	return Wrap(rdb, logger), nil
}

// Wrap adopts an existing go-redis client
func Wrap(rdb *redis.Client, logger ectologger.Logger) *Client {
	return &Client{rdb: rdb, logger: logger}
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Redis exposes the go-redis client to the lock and stream code
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
