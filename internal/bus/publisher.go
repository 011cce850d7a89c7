package bus

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Outbound channels other services subscribe to.
const (
	channelStatsRefresh = "players:stats"
	channelNewScore     = "scores:new"
	channelBan          = "players:ban"
	channelAnnounce     = "chat:announce"
)

// Publisher emits the notifications other services react to. Publishing is
// fire-and-forget: a failure is logged and returned, never fatal to the
// operation that triggered it.
type Publisher struct {
	client *redis.Client
	logger zerolog.Logger
}

func NewPublisher(client *redis.Client, logger zerolog.Logger) *Publisher {
	return &Publisher{client: client, logger: logger}
}

func (p *Publisher) publish(ctx context.Context, channel, payload string) error {
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		p.logger.Error().Err(err).
			Str("channel", channel).
			Str("payload", payload).
			Msg("failed to publish notification")
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// StatsRefresh asks the gateway to push fresh stats panels to the player.
func (p *Publisher) StatsRefresh(ctx context.Context, userID int64) error {
	return p.publish(ctx, channelStatsRefresh, strconv.FormatInt(userID, 10))
}

// NotifyNewScore announces a newly persisted score by id.
func (p *Publisher) NotifyNewScore(ctx context.Context, scoreID int64) error {
	return p.publish(ctx, channelNewScore, strconv.FormatInt(scoreID, 10))
}

// NotifyBan tells the gateway to drop the player's session after a
// restriction.
func (p *Publisher) NotifyBan(ctx context.Context, userID int64) error {
	return p.publish(ctx, channelBan, strconv.FormatInt(userID, 10))
}

// Announce posts a message to the public announce channel.
func (p *Publisher) Announce(ctx context.Context, message string) error {
	return p.publish(ctx, channelAnnounce, message)
}
