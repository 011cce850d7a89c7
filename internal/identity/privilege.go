package identity

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"score-server/internal/domain"
	"score-server/internal/repository"
)

// PrivilegeCache stores every user's privilege bitmask in memory. Privilege
// checks gate leaderboard visibility and first-place flows on every request,
// so they must not hit the store.
type PrivilegeCache struct {
	mu     sync.RWMutex
	privs  map[int64]domain.Privileges
	users  *repository.UserRepository
	logger zerolog.Logger
}

func NewPrivilegeCache(users *repository.UserRepository, logger zerolog.Logger) *PrivilegeCache {
	return &PrivilegeCache{
		privs:  make(map[int64]domain.Privileges),
		users:  users,
		logger: logger,
	}
}

func (c *PrivilegeCache) FullLoad(ctx context.Context) error {
	privs, err := c.users.AllPrivileges(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.privs = privs
	c.mu.Unlock()
	return nil
}

// Get returns the privilege bitmask, reading through to the store on a miss.
func (c *PrivilegeCache) Get(ctx context.Context, id int64) (domain.Privileges, bool) {
	c.mu.RLock()
	p, ok := c.privs[id]
	c.mu.RUnlock()
	if ok {
		return p, true
	}

	if err := c.LoadSingular(ctx, id); err != nil {
		c.logger.Error().Err(err).Int64("user_id", id).Msg("failed to load privileges")
		return 0, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok = c.privs[id]
	return p, ok
}

// LoadSingular re-fetches one user's bitmask. Doubles as the update path on
// privilege-refresh and ban events; unknown users are a no-op.
func (c *PrivilegeCache) LoadSingular(ctx context.Context, id int64) error {
	p, found, err := c.users.PrivilegesByID(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	c.mu.Lock()
	c.privs[id] = p
	c.mu.Unlock()
	return nil
}

func (c *PrivilegeCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.privs)
}
