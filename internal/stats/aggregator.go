// Package stats maintains the per-player derived statistics: weighted
// performance, normalized accuracy, best combo and rank position.
package stats

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"score-server/internal/cache"
	"score-server/internal/constants"
	"score-server/internal/domain"
	"score-server/internal/repository"
)

// RankSource answers rank position lookups from the persistent rank index.
type RankSource interface {
	GlobalRank(ctx context.Context, userID int64, mode domain.Mode, variant domain.Variant) (int64, error)
}

type statsKey struct {
	UserID  int64
	Mode    domain.Mode
	Variant domain.Variant
}

type Aggregator struct {
	cache  *cache.Cache[statsKey, *domain.Stats]
	stats  *repository.StatsRepository
	scores *repository.ScoreRepository
	ranks  RankSource
	logger zerolog.Logger

	// One mutex per stats key. Get hands every caller the same cached
	// object, so mutation must be serialized across it.
	locks sync.Map
}

func NewAggregator(stats *repository.StatsRepository, scores *repository.ScoreRepository, ranks RankSource, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		cache:  cache.New[statsKey, *domain.Stats](constants.StatsCacheTTL, constants.StatsCacheLimit),
		stats:  stats,
		scores: scores,
		ranks:  ranks,
		logger: logger,
	}
}

// LockFor returns the mutex serializing mutation of one player's stats
// object. Callers hold it across the full read-modify-write, including the
// Get that fetches the shared object.
func (a *Aggregator) LockFor(userID int64, mode domain.Mode, variant domain.Variant) *sync.Mutex {
	mu, _ := a.locks.LoadOrStore(statsKey{UserID: userID, Mode: mode, Variant: variant}, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Get returns the player's stats for one mode/variant, read through the
// process-local cache. The cached object also carries the recalculation
// threshold state, which only exists in memory.
func (a *Aggregator) Get(ctx context.Context, userID int64, mode domain.Mode, variant domain.Variant) (*domain.Stats, error) {
	key := statsKey{UserID: userID, Mode: mode, Variant: variant}
	if st, ok := a.cache.Get(key); ok {
		return st, nil
	}

	st, err := a.stats.Get(ctx, userID, mode, variant)
	if err != nil {
		return nil, err
	}
	a.cache.Put(key, st)
	return st, nil
}

// Save persists the stats row and refreshes the cached copy.
func (a *Aggregator) Save(ctx context.Context, st *domain.Stats) error {
	if err := a.stats.Save(ctx, st); err != nil {
		return err
	}
	a.cache.Put(statsKey{UserID: st.UserID, Mode: st.Mode, Variant: st.Variant}, st)
	return nil
}

// Drop evicts every cached stats object for the player.
func (a *Aggregator) Drop(userID int64) int {
	return a.cache.RemoveMatching(func(k statsKey) bool { return k.UserID == userID })
}

// RecalcPerformance recomputes the player's weighted performance and
// normalized accuracy from their qualifying best scores.
//
// When the triggering score's performance sits below the value of the
// player's 100th best at the last full pass, the weighted set cannot have
// changed and only the bonus term is refreshed. Pass newScorePP = 0 to force
// the full pass.
func (a *Aggregator) RecalcPerformance(ctx context.Context, st *domain.Stats, newScorePP float64) error {
	if newScorePP > 0 && st.RecalcThreshold > 0 && newScorePP < st.RecalcThreshold {
		bonus, err := a.bonusPerformance(ctx, st)
		if err != nil {
			return err
		}
		st.PP = st.PP - st.LastBonusPP + bonus
		st.LastBonusPP = bonus
		a.logger.Debug().
			Int64("user_id", st.UserID).
			Float64("threshold", st.RecalcThreshold).
			Msg("performance recalc skipped, bonus refreshed")
		return nil
	}

	pairs, err := a.scores.TopBestValues(ctx, st.UserID, st.Mode, st.Variant, constants.PerformanceTopCount)
	if err != nil {
		return err
	}

	var weightedAcc, weightedPP float64
	for i, pair := range pairs {
		weight := math.Pow(constants.PerformanceWeightBase, float64(i))
		weightedAcc += pair[0] * weight
		weightedPP += pair[1] * weight
	}

	if n := len(pairs); n > 0 {
		// Divide by the sum of the weights so the result is a weighted
		// average regardless of how many scores the player has.
		st.Accuracy = weightedAcc / (20 * (1 - math.Pow(constants.PerformanceWeightBase, float64(n))))
	} else {
		st.Accuracy = 0
	}

	if len(pairs) == constants.PerformanceTopCount {
		st.RecalcThreshold = pairs[len(pairs)-1][1]
	} else {
		st.RecalcThreshold = 0
	}

	bonus, err := a.bonusPerformance(ctx, st)
	if err != nil {
		return err
	}
	st.LastBonusPP = bonus
	st.PP = weightedPP + bonus
	return nil
}

// bonusPerformance derives the bonus term from the number of qualifying best
// scores. The series is monotone in the count and saturates at the cap.
func (a *Aggregator) bonusPerformance(ctx context.Context, st *domain.Stats) (float64, error) {
	count, err := a.scores.CountQualifyingBests(ctx, st.UserID, st.Mode, st.Variant, constants.BonusPerformanceCap)
	if err != nil {
		return 0, err
	}
	return constants.BonusPerformanceMult * (1 - math.Pow(constants.BonusPerformanceBase, float64(count))), nil
}

// RefreshMaxCombo re-reads the player's highest combo across their bests.
func (a *Aggregator) RefreshMaxCombo(ctx context.Context, st *domain.Stats) error {
	combo, err := a.scores.MaxCombo(ctx, st.UserID, st.Mode, st.Variant)
	if err != nil {
		return err
	}
	st.MaxCombo = combo
	return nil
}

// UpdateRank refreshes the player's global rank position from the rank index.
func (a *Aggregator) UpdateRank(ctx context.Context, st *domain.Stats) error {
	rank, err := a.ranks.GlobalRank(ctx, st.UserID, st.Mode, st.Variant)
	if err != nil {
		return fmt.Errorf("failed to fetch global rank: %w", err)
	}
	st.Rank = rank
	return nil
}
