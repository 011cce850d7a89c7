// Package bus carries the cross-service coordination traffic: pub/sub
// invalidation channels, the persistent rank index, and session presence.
package bus

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"score-server/internal/config"
	"score-server/internal/constants"
)

// NewClient connects to redis and verifies the connection with a ping.
func NewClient(cfg *config.Config, logger zerolog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), constants.RedisConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}

	logger.Info().Str("redis_addr", cfg.RedisAddr).Msg("connected to redis")
	return client, nil
}

// Sessions answers presence questions from the session keys the gateway
// maintains.
type Sessions struct {
	client *redis.Client
}

func NewSessions(client *redis.Client) *Sessions {
	return &Sessions{client: client}
}

// IsOnline reports whether the player currently holds a gateway session.
func (s *Sessions) IsOnline(ctx context.Context, userID int64) (bool, error) {
	n, err := s.client.Exists(ctx, fmt.Sprintf("sessions:%d", userID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check session presence: %w", err)
	}
	return n > 0, nil
}
