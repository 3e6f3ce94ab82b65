package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/physio-portal/internal/config"
	"github.com/wolfman30/physio-portal/internal/session"
	"github.com/wolfman30/physio-portal/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildSessionStore keeps sessions in Redis when a client is available and
// in process memory otherwise. Memory sessions do not survive a restart.
func BuildSessionStore(redisClient *redis.Client, cfg *appconfig.Config, logger *logging.Logger) session.Store {
	if logger == nil {
		logger = logging.Default()
	}
	if redisClient != nil {
		logger.Info("session store: redis", "ttl", cfg.SessionTTL)
		return session.NewRedisStore(redisClient, cfg.SessionTTL, nil)
	}
	if cfg.IsProduction() {
		logger.Warn("session store: memory in production; sessions are lost on restart")
	} else {
		logger.Info("session store: memory", "ttl", cfg.SessionTTL)
	}
	return session.NewMemoryStore(cfg.SessionTTL)
}
