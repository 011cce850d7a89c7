package leaderboard

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"score-server/internal/cache"
	"score-server/internal/constants"
	"score-server/internal/domain"
	"score-server/internal/repository"
)

// Store builds leaderboards from the score store and caches the unfiltered
// global boards. Filtered boards (country, friends, mod-specific) are built
// per request and never cached.
type Store struct {
	cache  *cache.Cache[Key, *Leaderboard]
	scores *repository.ScoreRepository
	logger zerolog.Logger

	// One mutex per board so concurrent builds of the same board collapse
	// into a single database pass.
	locks sync.Map
}

func NewStore(scores *repository.ScoreRepository, logger zerolog.Logger) *Store {
	return &Store{
		cache:  cache.New[Key, *Leaderboard](constants.LeaderboardCacheTTL, constants.LeaderboardCacheLimit),
		scores: scores,
		logger: logger,
	}
}

func (st *Store) lock(key Key) *sync.Mutex {
	mu, _ := st.locks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// FromCache returns the cached global board without touching the database.
func (st *Store) FromCache(key Key) (*Leaderboard, bool) {
	return st.cache.Get(key)
}

// FromBeatmap returns the global board for the map, building and caching it
// on a miss.
func (st *Store) FromBeatmap(ctx context.Context, beatmap *domain.Beatmap, mode domain.Mode, variant domain.Variant) (*Leaderboard, domain.FetchOrigin, error) {
	key := Key{MD5: beatmap.MD5, Mode: mode, Variant: variant}

	mu := st.lock(key)
	mu.Lock()
	defer mu.Unlock()

	if lb, ok := st.cache.Get(key); ok {
		return lb, domain.FetchCache, nil
	}

	lb, err := st.build(ctx, key, beatmap, nil)
	if err != nil {
		return nil, domain.FetchNone, err
	}
	st.cache.Put(key, lb)
	st.logger.Debug().
		Str("beatmap_md5", key.MD5).
		Str("mode", mode.String()).
		Str("variant", variant.String()).
		Int("total", lb.Total()).
		Msg("built leaderboard")
	return lb, domain.FetchDatabase, nil
}

// Filtered builds a board restricted by the filter. The result is not cached.
func (st *Store) Filtered(ctx context.Context, beatmap *domain.Beatmap, mode domain.Mode, variant domain.Variant, filter *repository.LeaderboardFilter) (*Leaderboard, error) {
	key := Key{MD5: beatmap.MD5, Mode: mode, Variant: variant}
	return st.build(ctx, key, beatmap, filter)
}

func (st *Store) build(ctx context.Context, key Key, beatmap *domain.Beatmap, filter *repository.LeaderboardFilter) (*Leaderboard, error) {
	scores, total, err := st.scores.Bests(ctx, key.MD5, key.Mode, key.Variant, constants.LeaderboardSize, filter)
	if err != nil {
		return nil, err
	}
	for _, s := range scores {
		s.Beatmap = beatmap
	}
	return newLeaderboard(key, beatmap, scores, total), nil
}

// PersonalBest resolves the player's best on the board. Entries inside the
// cached window are answered without a database read; otherwise the best row
// and its placement are fetched directly.
func (st *Store) PersonalBest(ctx context.Context, lb *Leaderboard, userID int64) (*domain.Score, domain.FetchOrigin, error) {
	if s, ok := lb.PersonalBest(userID); ok {
		return s, domain.FetchDerived, nil
	}

	s, err := st.scores.UserBest(ctx, userID, lb.Key.MD5, lb.Key.Mode, lb.Key.Variant)
	if err != nil {
		return nil, domain.FetchNone, err
	}
	if s == nil {
		return nil, domain.FetchNone, nil
	}

	better, err := st.scores.CountBetterBests(ctx, lb.Key.MD5, lb.Key.Mode, lb.Key.Variant, s.RankingMetric(), s.ID)
	if err != nil {
		return nil, domain.FetchNone, err
	}
	s.Placement = better + 1
	s.Beatmap = lb.Beatmap
	return s, domain.FetchDatabase, nil
}

// InsertScore places a freshly classified best into the cached global board,
// if one exists. A missing board stays missing; the next read rebuilds it
// from the store, which already holds the new row.
func (st *Store) InsertScore(s *domain.Score) {
	if s.Beatmap == nil {
		return
	}
	key := Key{MD5: s.Beatmap.MD5, Mode: s.Mode, Variant: s.Variant}

	mu := st.lock(key)
	mu.Lock()
	defer mu.Unlock()

	if lb, ok := st.cache.Get(key); ok {
		lb.Insert(s)
	}
}

// Refresh rebuilds one cached board from the store, adopting the given
// beatmap metadata. A nil beatmap keeps the board's current metadata; a
// board that is not cached is left alone.
func (st *Store) Refresh(ctx context.Context, key Key, beatmap *domain.Beatmap) error {
	mu := st.lock(key)
	mu.Lock()
	defer mu.Unlock()

	lb, ok := st.cache.Get(key)
	if !ok {
		return nil
	}
	if beatmap == nil {
		beatmap = lb.Beatmap
	}
	fresh, err := st.build(ctx, key, beatmap, nil)
	if err != nil {
		return err
	}
	st.cache.Put(key, fresh)
	return nil
}

// RefreshBeatmap rebuilds every cached board of one beatmap.
func (st *Store) RefreshBeatmap(ctx context.Context, md5 string) error {
	for _, key := range st.cache.Keys() {
		if key.MD5 != md5 {
			continue
		}
		if err := st.Refresh(ctx, key, nil); err != nil {
			return err
		}
	}
	return nil
}

// DropBeatmap evicts every cached board of one beatmap and returns how many
// were dropped.
func (st *Store) DropBeatmap(md5 string) int {
	return st.cache.RemoveMatching(func(k Key) bool { return k.MD5 == md5 })
}

// RemoveUser drops the player's entries from every cached board. Used when a
// player is restricted.
func (st *Store) RemoveUser(userID int64) {
	for _, lb := range st.cache.Values() {
		lb.RemoveUser(userID)
	}
}

// RenameUser rewrites the player's display name on every cached board.
func (st *Store) RenameUser(userID int64, username string) {
	for _, lb := range st.cache.Values() {
		lb.RenameUser(userID, username)
	}
}
