package cache

import (
	"context"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Client is the shared connection used by the Redis queue transport. Nil until InitRedis.
var Client *redis.Client

const clientName = "rug-sentinel"

var (
	newRedisClient = func(opts *redis.Options) *redis.Client {
		return redis.NewClient(opts)
	}
	pingRedis = func(ctx context.Context, client *redis.Client) error {
		return client.Ping(ctx).Err()
	}
	parseRedisURL = redis.ParseURL
)

// InitRedis connects Client from REDIS_URL, which may be a bare host:port or a redis:// or
// rediss:// URL. Connection failures are fatal.
func InitRedis(ctx context.Context) {
	opts, err := redisOptions(os.Getenv("REDIS_URL"))
	if err != nil {
		log.Fatalf("failed to parse REDIS_URL: %v", err)
	}

	Client = newRedisClient(opts)
	if err := pingRedis(ctx, Client); err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	log.WithFields(log.Fields{"addr": opts.Addr, "db": opts.DB}).Info("Connected to Redis")
}

func redisOptions(addr string) (*redis.Options, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		addr = "localhost:6379"
	}
	opts := &redis.Options{Addr: addr}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := parseRedisURL(addr)
		if err != nil {
			return nil, err
		}
		opts = parsed
	}
	if opts.ClientName == "" {
		opts.ClientName = clientName
	}
	return opts, nil
}

// Close releases Client if it was opened.
func Close() {
	if Client == nil {
		return
	}
	if err := Client.Close(); err != nil {
		log.WithError(err).Warn("closing Redis client")
	}
	Client = nil
}
