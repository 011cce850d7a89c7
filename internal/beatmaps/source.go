// Package beatmaps resolves beatmap metadata through the layered sources:
// process-local cache, relational store, then the external metadata API.
package beatmaps

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"score-server/internal/cache"
	"score-server/internal/constants"
	"score-server/internal/domain"
	"score-server/internal/repository"
)

type Source struct {
	cache *cache.Cache[string, *domain.Beatmap]
	repo  *repository.BeatmapRepository
	api   *APIClient

	// Hashes the API has already said it does not know, with the status to
	// reply with. Saves an API round-trip per unknown-map lookup.
	noCheckMu sync.RWMutex
	noCheck   map[string]domain.RankedStatus

	logger zerolog.Logger
}

func NewSource(repo *repository.BeatmapRepository, api *APIClient, logger zerolog.Logger) *Source {
	return &Source{
		cache:   cache.New[string, *domain.Beatmap](constants.BeatmapCacheTTL, constants.BeatmapCacheLimit),
		repo:    repo,
		api:     api,
		noCheck: make(map[string]domain.RankedStatus),
		logger:  logger,
	}
}

// FromMD5 resolves a beatmap from the fastest source available. Maps fetched
// from the API are persisted to the store and cached.
func (s *Source) FromMD5(ctx context.Context, md5 string) (*domain.Beatmap, domain.FetchOrigin, error) {
	if b, ok := s.cache.Get(md5); ok {
		return b, domain.FetchCache, nil
	}

	b, err := s.repo.GetByMD5(ctx, md5)
	if err != nil {
		return nil, domain.FetchNone, err
	}
	if b != nil {
		s.cache.Put(md5, b)
		return b, domain.FetchDatabase, nil
	}

	b, err = s.api.FromMD5(ctx, md5)
	if err != nil {
		s.logger.Warn().Err(err).Str("beatmap_md5", md5).Msg("beatmap API lookup failed")
		return nil, domain.FetchNone, nil
	}
	if b == nil {
		return nil, domain.FetchNone, nil
	}

	if err := s.repo.Upsert(ctx, b); err != nil {
		return nil, domain.FetchNone, err
	}
	s.cache.Put(md5, b)
	return b, domain.FetchExternalAPI, nil
}

// Refresh re-reads the map's metadata from the store, bypassing the cache.
func (s *Source) Refresh(ctx context.Context, md5 string) (*domain.Beatmap, error) {
	b, err := s.repo.GetByMD5(ctx, md5)
	if err != nil {
		return nil, err
	}
	if b != nil {
		s.cache.Put(md5, b)
	}
	return b, nil
}

// Drop removes the map from the process-local cache. Already-built
// leaderboards keep their reference.
func (s *Source) Drop(md5 string) {
	s.cache.Remove(md5)
}

// MarkMissing records that lookups for the hash should answer with a
// status-only reply without consulting any source.
func (s *Source) MarkMissing(md5 string, status domain.RankedStatus) {
	s.noCheckMu.Lock()
	s.noCheck[md5] = status
	s.noCheckMu.Unlock()
}

func (s *Source) KnownMissing(md5 string) (domain.RankedStatus, bool) {
	s.noCheckMu.RLock()
	defer s.noCheckMu.RUnlock()
	st, ok := s.noCheck[md5]
	return st, ok
}

// IncrementPlaycount bumps the stored counters and the cached copy.
func (s *Source) IncrementPlaycount(ctx context.Context, b *domain.Beatmap, passed bool) error {
	if err := s.repo.IncrementPlaycount(ctx, b.MD5, passed); err != nil {
		return err
	}
	b.Playcount++
	if passed {
		b.Passcount++
	}
	return nil
}
