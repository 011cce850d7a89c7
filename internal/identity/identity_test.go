package identity

import (
	"context"
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"score-server/internal/database"
	"score-server/internal/repository"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.NewMemory(zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedUser(t *testing.T, db *sql.DB, name, passwordHash string) int64 {
	t.Helper()
	res, err := db.Exec(
		`INSERT INTO users (username, username_safe, password_hash) VALUES (?, ?, ?)`,
		name, Canonical(name), passwordHash,
	)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func TestCanonical(t *testing.T) {
	require.Equal(t, "cool_player", Canonical("Cool Player"))
	require.Equal(t, "cool_player", Canonical("Cool Player   "))
	require.Equal(t, "name", Canonical("NAME"))
}

func TestUsernameCachePreloadAndLookup(t *testing.T) {
	db := newTestDB(t)
	id := seedUser(t, db, "Cool Player", "hash")

	c := NewUsernameCache(repository.NewUserRepository(db, zerolog.Nop()), zerolog.Nop())
	require.NoError(t, c.FullLoad(context.Background()))

	name, ok := c.NameFromID(context.Background(), id)
	require.True(t, ok)
	require.Equal(t, "Cool Player", name)

	got, ok := c.IDFromCanonical(context.Background(), "cool_player")
	require.True(t, ok)
	require.Equal(t, id, got)
}

func TestUsernameCacheReadThrough(t *testing.T) {
	db := newTestDB(t)
	c := NewUsernameCache(repository.NewUserRepository(db, zerolog.Nop()), zerolog.Nop())

	// Seeded after construction, so only reachable through the store.
	id := seedUser(t, db, "LateJoiner", "hash")

	name, ok := c.NameFromID(context.Background(), id)
	require.True(t, ok)
	require.Equal(t, "LateJoiner", name)

	_, ok = c.NameFromID(context.Background(), 99999)
	require.False(t, ok)
}

func TestUsernameCacheRenameInvalidation(t *testing.T) {
	db := newTestDB(t)
	id := seedUser(t, db, "OldName", "hash")

	c := NewUsernameCache(repository.NewUserRepository(db, zerolog.Nop()), zerolog.Nop())
	require.NoError(t, c.FullLoad(context.Background()))

	_, err := db.Exec(`UPDATE users SET username = ?, username_safe = ? WHERE id = ?`,
		"NewName", Canonical("NewName"), id)
	require.NoError(t, err)

	require.NoError(t, c.LoadFromID(context.Background(), id))

	name, ok := c.NameFromID(context.Background(), id)
	require.True(t, ok)
	require.Equal(t, "NewName", name)

	// The stale reverse mapping must be gone.
	_, ok = c.IDFromCanonical(context.Background(), "oldname")
	require.False(t, ok)

	got, ok := c.IDFromCanonical(context.Background(), "newname")
	require.True(t, ok)
	require.Equal(t, id, got)
}

func TestCredentialCacheCheckPassword(t *testing.T) {
	db := newTestDB(t)
	id := seedUser(t, db, "Player", "secret-hash")

	c := NewCredentialCache(repository.NewUserRepository(db, zerolog.Nop()), zerolog.Nop())

	require.True(t, c.CheckPassword(context.Background(), id, "secret-hash"))
	require.False(t, c.CheckPassword(context.Background(), id, "wrong"))
	require.False(t, c.CheckPassword(context.Background(), id, ""))
	require.False(t, c.CheckPassword(context.Background(), 99999, "secret-hash"))
}

func TestCredentialCacheDropOnPasswordChange(t *testing.T) {
	db := newTestDB(t)
	id := seedUser(t, db, "Player", "old-hash")

	c := NewCredentialCache(repository.NewUserRepository(db, zerolog.Nop()), zerolog.Nop())
	require.True(t, c.CheckPassword(context.Background(), id, "old-hash"))

	_, err := db.Exec(`UPDATE users SET password_hash = ? WHERE id = ?`, "new-hash", id)
	require.NoError(t, err)

	// Still cached until the invalidation arrives.
	require.True(t, c.CheckPassword(context.Background(), id, "old-hash"))

	c.DropCache(id)
	require.False(t, c.CheckPassword(context.Background(), id, "old-hash"))
	require.True(t, c.CheckPassword(context.Background(), id, "new-hash"))
}

func TestClanCacheNoReadThrough(t *testing.T) {
	db := newTestDB(t)
	id := seedUser(t, db, "Player", "hash")

	c := NewClanCache(repository.NewUserRepository(db, zerolog.Nop()), zerolog.Nop())
	require.NoError(t, c.FullLoad(context.Background()))

	// No clan membership: absent, and never consults the store on lookup.
	_, ok := c.Get(id)
	require.False(t, ok)

	res, err := db.Exec(`INSERT INTO clans (tag, name) VALUES ('TAG', 'Clan')`)
	require.NoError(t, err)
	clanID, err := res.LastInsertId()
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO user_clans (user_id, clan_id) VALUES (?, ?)`, id, clanID)
	require.NoError(t, err)

	// Still absent until a point refresh.
	_, ok = c.Get(id)
	require.False(t, ok)

	require.NoError(t, c.CacheIndividual(context.Background(), id))
	tag, ok := c.Get(id)
	require.True(t, ok)
	require.Equal(t, "TAG", tag)
}

func TestCachesCheckAuth(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "Cool Player", "hash")

	caches := NewCaches(repository.NewUserRepository(db, zerolog.Nop()), zerolog.Nop())
	require.NoError(t, caches.Preload(context.Background()))

	id, ok := caches.CheckAuth(context.Background(), "Cool Player", "hash")
	require.True(t, ok)
	require.NotZero(t, id)

	_, ok = caches.CheckAuth(context.Background(), "Cool Player", "bad")
	require.False(t, ok)

	_, ok = caches.CheckAuth(context.Background(), "Nobody", "hash")
	require.False(t, ok)
}
