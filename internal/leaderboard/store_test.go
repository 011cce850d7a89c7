package leaderboard

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"score-server/internal/database"
	"score-server/internal/domain"
	"score-server/internal/repository"
)

const testMD5 = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

func newTestStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()
	db, err := database.NewMemory(zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(
		`INSERT INTO beatmaps (beatmap_md5, beatmap_id, beatmapset_id, song_name, ranked_status)
		VALUES (?, 1, 1, 'Song', ?)`, testMD5, domain.StatusRanked)
	require.NoError(t, err)

	return NewStore(repository.NewScoreRepository(db, zerolog.Nop()), zerolog.Nop()), db
}

func seedPlayer(t *testing.T, db *sql.DB, name string) int64 {
	t.Helper()
	res, err := db.Exec(
		`INSERT INTO users (username, username_safe, password_hash) VALUES (?, ?, 'hash')`,
		name, name)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func seedBest(t *testing.T, db *sql.DB, userID, value int64) *domain.Score {
	t.Helper()
	s := &domain.Score{
		Beatmap:   &domain.Beatmap{MD5: testMD5},
		UserID:    userID,
		Score:     value,
		MaxCombo:  100,
		Mode:      domain.ModeStandard,
		Variant:   domain.VariantVanilla,
		Completed: domain.CompletedBest,
		Accuracy:  95,
		Timestamp: 1_700_000_000,
	}
	require.NoError(t,
		repository.NewScoreRepository(db, zerolog.Nop()).Insert(context.Background(), s))
	return s
}

func testBeatmap() *domain.Beatmap {
	return &domain.Beatmap{MD5: testMD5, ID: 1, SetID: 1, SongName: "Song", Status: domain.StatusRanked}
}

func TestFromBeatmapOrdersByMetric(t *testing.T) {
	store, db := newTestStore(t)

	low := seedPlayer(t, db, "low")
	high := seedPlayer(t, db, "high")
	mid := seedPlayer(t, db, "mid")
	seedBest(t, db, low, 100)
	seedBest(t, db, high, 300)
	seedBest(t, db, mid, 200)

	lb, origin, err := store.FromBeatmap(context.Background(), testBeatmap(), domain.ModeStandard, domain.VariantVanilla)
	require.NoError(t, err)
	require.Equal(t, domain.FetchDatabase, origin)

	scores := lb.Scores()
	require.Len(t, scores, 3)
	require.Equal(t, high, scores[0].UserID)
	require.Equal(t, mid, scores[1].UserID)
	require.Equal(t, low, scores[2].UserID)
	for i, s := range scores {
		require.Equal(t, i+1, s.Placement)
	}
	require.Equal(t, 3, lb.Total())

	// Second fetch is answered from cache.
	_, origin, err = store.FromBeatmap(context.Background(), testBeatmap(), domain.ModeStandard, domain.VariantVanilla)
	require.NoError(t, err)
	require.Equal(t, domain.FetchCache, origin)
}

func TestTieBreakEarlierSubmissionWins(t *testing.T) {
	store, db := newTestStore(t)

	first := seedPlayer(t, db, "first")
	second := seedPlayer(t, db, "second")
	seedBest(t, db, first, 200)
	seedBest(t, db, second, 200)

	lb, _, err := store.FromBeatmap(context.Background(), testBeatmap(), domain.ModeStandard, domain.VariantVanilla)
	require.NoError(t, err)

	scores := lb.Scores()
	require.Len(t, scores, 2)
	require.Equal(t, first, scores[0].UserID)
	require.Equal(t, second, scores[1].UserID)
}

func TestInsertKeepsOneEntryPerPlayer(t *testing.T) {
	store, db := newTestStore(t)

	a := seedPlayer(t, db, "a")
	b := seedPlayer(t, db, "b")
	seedBest(t, db, a, 100)
	seedBest(t, db, b, 300)

	lb, _, err := store.FromBeatmap(context.Background(), testBeatmap(), domain.ModeStandard, domain.VariantVanilla)
	require.NoError(t, err)
	require.Equal(t, 2, lb.Total())

	// Player a improves past b.
	improved := &domain.Score{
		ID:        99,
		Beatmap:   testBeatmap(),
		UserID:    a,
		Username:  "a",
		Score:     500,
		Mode:      domain.ModeStandard,
		Variant:   domain.VariantVanilla,
		Completed: domain.CompletedBest,
	}
	store.InsertScore(improved)

	scores := lb.Scores()
	require.Len(t, scores, 2)
	require.Equal(t, a, scores[0].UserID)
	require.Equal(t, int64(500), scores[0].Score)
	require.Equal(t, 1, scores[0].Placement)
	require.Equal(t, b, scores[1].UserID)
	require.Equal(t, 2, lb.Total())

	count := 0
	for _, s := range scores {
		if s.UserID == a {
			count++
		}
	}
	require.Equal(t, 1, count)
}

func TestPersonalBestOutsideWindow(t *testing.T) {
	store, db := newTestStore(t)

	// Fill the window past capacity so the weakest player falls outside it.
	var weakest int64
	for i := 0; i < 101; i++ {
		id := seedPlayer(t, db, fmt.Sprintf("p%d", i))
		seedBest(t, db, id, int64(1000+i))
		if i == 0 {
			weakest = id
		}
	}

	lb, _, err := store.FromBeatmap(context.Background(), testBeatmap(), domain.ModeStandard, domain.VariantVanilla)
	require.NoError(t, err)
	require.Equal(t, 101, lb.Total())
	require.Len(t, lb.Scores(), 100)
	require.False(t, lb.HasUser(weakest))

	s, origin, err := store.PersonalBest(context.Background(), lb, weakest)
	require.NoError(t, err)
	require.Equal(t, domain.FetchDatabase, origin)
	require.Equal(t, 101, s.Placement)

	// A player inside the window is answered without a store read.
	top := lb.Scores()[0]
	s, origin, err = store.PersonalBest(context.Background(), lb, top.UserID)
	require.NoError(t, err)
	require.Equal(t, domain.FetchDerived, origin)
	require.Equal(t, 1, s.Placement)
}

func TestPersonalBestTiePlacementMatchesBoardOrder(t *testing.T) {
	store, db := newTestStore(t)

	// Fill the window so the tied players both fall outside it and the
	// placement comes from the store, not the cached board.
	for i := 0; i < 100; i++ {
		id := seedPlayer(t, db, fmt.Sprintf("p%d", i))
		seedBest(t, db, id, int64(1000+i))
	}
	earlier := seedPlayer(t, db, "earlier")
	later := seedPlayer(t, db, "later")
	seedBest(t, db, earlier, 500)
	seedBest(t, db, later, 500)

	lb, _, err := store.FromBeatmap(context.Background(), testBeatmap(), domain.ModeStandard, domain.VariantVanilla)
	require.NoError(t, err)
	require.Equal(t, 102, lb.Total())

	// The earlier submission ranks first on equal metrics.
	s, origin, err := store.PersonalBest(context.Background(), lb, earlier)
	require.NoError(t, err)
	require.Equal(t, domain.FetchDatabase, origin)
	require.Equal(t, 101, s.Placement)

	s, _, err = store.PersonalBest(context.Background(), lb, later)
	require.NoError(t, err)
	require.Equal(t, 102, s.Placement)
}

func TestRefreshAdoptsNewBeatmapMetadata(t *testing.T) {
	store, db := newTestStore(t)
	a := seedPlayer(t, db, "a")
	seedBest(t, db, a, 100)

	key := Key{MD5: testMD5, Mode: domain.ModeStandard, Variant: domain.VariantVanilla}
	_, _, err := store.FromBeatmap(context.Background(), testBeatmap(), domain.ModeStandard, domain.VariantVanilla)
	require.NoError(t, err)

	renamed := testBeatmap()
	renamed.SongName = "Song (renamed)"
	require.NoError(t, store.Refresh(context.Background(), key, renamed))

	lb, ok := store.FromCache(key)
	require.True(t, ok)
	require.Equal(t, "Song (renamed)", lb.Beatmap.SongName)
	require.Equal(t, 1, lb.Total())

	// A nil beatmap keeps the current metadata.
	require.NoError(t, store.Refresh(context.Background(), key, nil))
	lb, ok = store.FromCache(key)
	require.True(t, ok)
	require.Equal(t, "Song (renamed)", lb.Beatmap.SongName)
}

func TestRemoveAndRenameUser(t *testing.T) {
	store, db := newTestStore(t)

	a := seedPlayer(t, db, "a")
	b := seedPlayer(t, db, "b")
	seedBest(t, db, a, 300)
	seedBest(t, db, b, 100)

	lb, _, err := store.FromBeatmap(context.Background(), testBeatmap(), domain.ModeStandard, domain.VariantVanilla)
	require.NoError(t, err)

	store.RenameUser(b, "brenamed")
	scores := lb.Scores()
	require.Equal(t, "brenamed", scores[1].Username)

	store.RemoveUser(a)
	scores = lb.Scores()
	require.Len(t, scores, 1)
	require.Equal(t, b, scores[0].UserID)
	require.Equal(t, 1, scores[0].Placement)
	require.Equal(t, 1, lb.Total())
}

func TestDropBeatmap(t *testing.T) {
	store, db := newTestStore(t)
	a := seedPlayer(t, db, "a")
	seedBest(t, db, a, 100)

	_, _, err := store.FromBeatmap(context.Background(), testBeatmap(), domain.ModeStandard, domain.VariantVanilla)
	require.NoError(t, err)

	require.Equal(t, 1, store.DropBeatmap(testMD5))
	_, ok := store.FromCache(Key{MD5: testMD5, Mode: domain.ModeStandard, Variant: domain.VariantVanilla})
	require.False(t, ok)
}
