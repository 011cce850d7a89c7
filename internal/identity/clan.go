package identity

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"score-server/internal/repository"
)

// ClanCache keeps every user's clan tag in memory. Leaderboard serving would
// otherwise join clans per score per board.
type ClanCache struct {
	mu     sync.RWMutex
	tags   map[int64]string
	users  *repository.UserRepository
	logger zerolog.Logger
}

func NewClanCache(users *repository.UserRepository, logger zerolog.Logger) *ClanCache {
	return &ClanCache{
		tags:   make(map[int64]string),
		users:  users,
		logger: logger,
	}
}

// FullLoad wipes and repopulates the whole cache.
func (c *ClanCache) FullLoad(ctx context.Context) error {
	tags, err := c.users.AllClanTags(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.tags = tags
	c.mu.Unlock()
	return nil
}

// Get returns the clan tag for the user, if any. No read-through: a user
// without a cached tag has no clan.
func (c *ClanCache) Get(id int64) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tag, ok := c.tags[id]
	return tag, ok
}

// CacheIndividual refreshes one user's tag. Invoked on clan-update events;
// a user who left their clan gets their entry dropped.
func (c *ClanCache) CacheIndividual(ctx context.Context, id int64) error {
	tag, found, err := c.users.ClanTagByID(ctx, id)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !found {
		delete(c.tags, id)
		return nil
	}
	c.tags[id] = tag
	return nil
}

func (c *ClanCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tags)
}
