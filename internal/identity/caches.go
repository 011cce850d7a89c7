package identity

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"score-server/internal/repository"
)

// Caches bundles the four identity caches. Preload must succeed before the
// service accepts traffic; a failed preload is fatal at startup.
type Caches struct {
	Names       *UsernameCache
	Privileges  *PrivilegeCache
	Credentials *CredentialCache
	Clans       *ClanCache

	logger zerolog.Logger
}

func NewCaches(users *repository.UserRepository, logger zerolog.Logger) *Caches {
	return &Caches{
		Names:       NewUsernameCache(users, logger),
		Privileges:  NewPrivilegeCache(users, logger),
		Credentials: NewCredentialCache(users, logger),
		Clans:       NewClanCache(users, logger),
		logger:      logger,
	}
}

func (c *Caches) Preload(ctx context.Context) error {
	if err := c.Names.FullLoad(ctx); err != nil {
		return fmt.Errorf("failed to preload usernames: %w", err)
	}
	c.logger.Info().Int("count", c.Names.Len()).Msg("usernames cached")

	if err := c.Privileges.FullLoad(ctx); err != nil {
		return fmt.Errorf("failed to preload privileges: %w", err)
	}
	c.logger.Info().Int("count", c.Privileges.Len()).Msg("privileges cached")

	if err := c.Clans.FullLoad(ctx); err != nil {
		return fmt.Errorf("failed to preload clans: %w", err)
	}
	c.logger.Info().Int("count", c.Clans.Len()).Msg("clan tags cached")

	return nil
}

// CheckAuth resolves a username and verifies the supplied credential hash.
func (c *Caches) CheckAuth(ctx context.Context, name, credentialHash string) (int64, bool) {
	id, ok := c.Names.IDFromCanonical(ctx, Canonical(name))
	if !ok {
		return 0, false
	}
	return id, c.Credentials.CheckPassword(ctx, id, credentialHash)
}
