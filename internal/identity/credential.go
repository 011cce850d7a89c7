package identity

import (
	"context"
	"crypto/subtle"
	"sync"

	"github.com/rs/zerolog"

	"score-server/internal/repository"
)

// CredentialCache caches password hashes so the per-request credential check
// avoids a store round-trip. Clients send a pre-hashed credential; checking
// is a constant-time comparison against the stored hash.
type CredentialCache struct {
	mu     sync.RWMutex
	hashes map[int64]string
	users  *repository.UserRepository
	logger zerolog.Logger
}

func NewCredentialCache(users *repository.UserRepository, logger zerolog.Logger) *CredentialCache {
	return &CredentialCache{
		hashes: make(map[int64]string),
		users:  users,
		logger: logger,
	}
}

// CheckPassword compares the candidate hash against the user's stored hash,
// fetching it lazily on first use.
func (c *CredentialCache) CheckPassword(ctx context.Context, id int64, candidateHash string) bool {
	if candidateHash == "" {
		return false
	}

	c.mu.RLock()
	stored, ok := c.hashes[id]
	c.mu.RUnlock()

	if !ok {
		var (
			found bool
			err   error
		)
		stored, found, err = c.users.PasswordHashByID(ctx, id)
		if err != nil {
			c.logger.Error().Err(err).Int64("user_id", id).Msg("failed to load password hash")
			return false
		}
		if !found {
			return false
		}

		c.mu.Lock()
		c.hashes[id] = stored
		c.mu.Unlock()
	}

	return subtle.ConstantTimeCompare([]byte(stored), []byte(candidateHash)) == 1
}

// DropCache invalidates the cached hash. Invoked on password-change events.
func (c *CredentialCache) DropCache(id int64) {
	c.mu.Lock()
	delete(c.hashes, id)
	c.mu.Unlock()
}

func (c *CredentialCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.hashes)
}
