// Package identity holds the in-process caches for account identity data:
// usernames, privileges, credentials and clan tags. All four are
// read-through views over the users tables, bulk-preloaded at startup and
// point-refreshed by bus events.
package identity

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"score-server/internal/repository"
)

// Canonical derives the canonical lookup form of a username: trailing space
// stripped, lowercased, spaces as underscores.
func Canonical(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimRight(name, " ")), " ", "_")
}

// UsernameCache stores id<->username combinations in memory for quick access
// in both directions.
type UsernameCache struct {
	mu     sync.RWMutex
	idName map[int64]string
	safeID map[string]int64
	users  *repository.UserRepository
	logger zerolog.Logger
}

func NewUsernameCache(users *repository.UserRepository, logger zerolog.Logger) *UsernameCache {
	return &UsernameCache{
		idName: make(map[int64]string),
		safeID: make(map[string]int64),
		users:  users,
		logger: logger,
	}
}

// FullLoad bulk-populates both directions from the store.
func (c *UsernameCache) FullLoad(ctx context.Context) error {
	names, err := c.users.AllNames(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.idName = make(map[int64]string, len(names))
	c.safeID = make(map[string]int64, len(names))
	for _, n := range names {
		c.idName[n.ID] = n.Username
		c.safeID[n.SafeName] = n.ID
	}
	return nil
}

// NameFromID resolves a username, falling back to the store for users created
// after the preload.
func (c *UsernameCache) NameFromID(ctx context.Context, id int64) (string, bool) {
	c.mu.RLock()
	name, ok := c.idName[id]
	c.mu.RUnlock()
	if ok {
		return name, true
	}

	if err := c.LoadFromID(ctx, id); err != nil {
		c.logger.Error().Err(err).Int64("user_id", id).Msg("failed to load username")
		return "", false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok = c.idName[id]
	return name, ok
}

// IDFromCanonical resolves a user id from the canonical form of their name.
func (c *UsernameCache) IDFromCanonical(ctx context.Context, safeName string) (int64, bool) {
	c.mu.RLock()
	id, ok := c.safeID[safeName]
	c.mu.RUnlock()
	if ok {
		return id, true
	}

	row, err := c.users.NameBySafe(ctx, safeName)
	if err != nil {
		c.logger.Error().Err(err).Str("safe_name", safeName).Msg("failed to load user id")
		return 0, false
	}
	if row == nil {
		return 0, false
	}

	c.mu.Lock()
	c.idName[row.ID] = row.Username
	c.safeID[row.SafeName] = row.ID
	c.mu.Unlock()
	return row.ID, true
}

// LoadFromID re-fetches and overwrites a single entry. Invoked on rename
// events.
func (c *UsernameCache) LoadFromID(ctx context.Context, id int64) error {
	row, err := c.users.NameByID(ctx, id)
	if err != nil {
		return err
	}
	if row == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Drop any stale reverse mapping before overwriting.
	if old, ok := c.idName[row.ID]; ok {
		delete(c.safeID, Canonical(old))
	}
	c.idName[row.ID] = row.Username
	c.safeID[row.SafeName] = row.ID
	return nil
}

func (c *UsernameCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.idName)
}
