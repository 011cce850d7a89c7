package bus

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"score-server/internal/domain"
)

// RankStore maintains the persistent global and per-country rank indexes as
// sorted sets keyed by scoring variant and mode.
type RankStore struct {
	client *redis.Client
	logger zerolog.Logger
}

func NewRankStore(client *redis.Client, logger zerolog.Logger) *RankStore {
	return &RankStore{client: client, logger: logger}
}

func rankKey(variant domain.Variant, mode domain.Mode) string {
	return fmt.Sprintf("leaderboard:%s:%s", variant, mode)
}

func countryRankKey(variant domain.Variant, mode domain.Mode, country string) string {
	return fmt.Sprintf("leaderboard:%s:%s:%s", variant, mode, strings.ToLower(country))
}

// UpdateUser writes the player's ranking metric into the global index and,
// when a country is known, the country index.
func (r *RankStore) UpdateUser(ctx context.Context, userID int64, mode domain.Mode, variant domain.Variant, country string, metric float64) error {
	member := redis.Z{Score: metric, Member: userID}

	if err := r.client.ZAdd(ctx, rankKey(variant, mode), member).Err(); err != nil {
		return fmt.Errorf("failed to update global rank index: %w", err)
	}
	if country != "" {
		if err := r.client.ZAdd(ctx, countryRankKey(variant, mode, country), member).Err(); err != nil {
			return fmt.Errorf("failed to update country rank index: %w", err)
		}
	}
	return nil
}

// GlobalRank returns the player's 1-based global rank, or 0 when unranked.
func (r *RankStore) GlobalRank(ctx context.Context, userID int64, mode domain.Mode, variant domain.Variant) (int64, error) {
	rank, err := r.client.ZRevRank(ctx, rankKey(variant, mode), fmt.Sprint(userID)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read global rank: %w", err)
	}
	return rank + 1, nil
}

// CountryRank returns the player's 1-based rank among their country, or 0
// when unranked.
func (r *RankStore) CountryRank(ctx context.Context, userID int64, mode domain.Mode, variant domain.Variant, country string) (int64, error) {
	if country == "" {
		return 0, nil
	}
	rank, err := r.client.ZRevRank(ctx, countryRankKey(variant, mode, country), fmt.Sprint(userID)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read country rank: %w", err)
	}
	return rank + 1, nil
}

// RemoveUser drops the player from every rank index. Used on restriction.
func (r *RankStore) RemoveUser(ctx context.Context, userID int64, country string) error {
	member := fmt.Sprint(userID)
	for _, variant := range domain.Variants() {
		for _, mode := range variant.CompatibleModes() {
			if err := r.client.ZRem(ctx, rankKey(variant, mode), member).Err(); err != nil {
				return fmt.Errorf("failed to remove from global rank index: %w", err)
			}
			if country == "" {
				continue
			}
			if err := r.client.ZRem(ctx, countryRankKey(variant, mode, country), member).Err(); err != nil {
				return fmt.Errorf("failed to remove from country rank index: %w", err)
			}
		}
	}
	r.logger.Info().Int64("user_id", userID).Msg("removed user from rank indexes")
	return nil
}
