package submission

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"score-server/internal/achievement"
	"score-server/internal/beatmaps"
	"score-server/internal/config"
	"score-server/internal/database"
	"score-server/internal/domain"
	"score-server/internal/identity"
	"score-server/internal/leaderboard"
	"score-server/internal/replay"
	"score-server/internal/repository"
	"score-server/internal/stats"
)

const testMD5 = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"

type stubNotifier struct {
	mu            sync.Mutex
	announcements []string
	newScores     []int64
	bans          []int64
	refreshes     []int64
}

func (n *stubNotifier) StatsRefresh(_ context.Context, id int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.refreshes = append(n.refreshes, id)
	return nil
}
func (n *stubNotifier) NotifyNewScore(_ context.Context, id int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.newScores = append(n.newScores, id)
	return nil
}
func (n *stubNotifier) NotifyBan(_ context.Context, id int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bans = append(n.bans, id)
	return nil
}
func (n *stubNotifier) Announce(_ context.Context, msg string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.announcements = append(n.announcements, msg)
	return nil
}

type stubRanks struct {
	mu      sync.Mutex
	updates int
	removed []int64
}

func (r *stubRanks) UpdateUser(context.Context, int64, domain.Mode, domain.Variant, string, float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
	return nil
}
func (r *stubRanks) RemoveUser(_ context.Context, id int64, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, id)
	return nil
}
func (r *stubRanks) GlobalRank(context.Context, int64, domain.Mode, domain.Variant) (int64, error) {
	return 1, nil
}

type stubPresence struct{ online bool }

func (p stubPresence) IsOnline(context.Context, int64) (bool, error) { return p.online, nil }

type stubCalculator struct {
	pp  float64
	err error
}

func (c stubCalculator) Calculate(context.Context, *domain.Score) (float64, float64, error) {
	return c.pp, 5.0, c.err
}

type testEnv struct {
	pipeline *Pipeline
	db       *sql.DB
	notifier *stubNotifier
	ranks    *stubRanks
	boards   *leaderboard.Store
	replays  *replay.Store
}

func newTestEnv(t *testing.T, calc stubCalculator, online bool) *testEnv {
	t.Helper()
	nop := zerolog.Nop()

	db, err := database.NewMemory(nop)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		DataDir:        t.TempDir(),
		ServerDomain:   "http://localhost",
		PPCapVanilla:   []float64{700, 800, 800, 1200},
		PPCapRelax:     []float64{1200, 1200, 1200, 1200},
		PPCapAutopilot: []float64{1200, 1200, 1200, 1200},
	}

	users := repository.NewUserRepository(db, nop)
	scores := repository.NewScoreRepository(db, nop)

	caches := identity.NewCaches(users, nop)
	boards := leaderboard.NewStore(scores, nop)
	ranks := &stubRanks{}
	aggregator := stats.NewAggregator(repository.NewStatsRepository(db, nop), scores, ranks, nop)
	replays, err := replay.NewStore(cfg, nop)
	require.NoError(t, err)
	notifier := &stubNotifier{}

	pipeline := NewPipeline(
		cfg,
		caches,
		beatmaps.NewSource(repository.NewBeatmapRepository(db, nop), beatmaps.NewAPIClient(cfg, nop), nop),
		boards,
		aggregator,
		scores,
		users,
		repository.NewFirstPlaceRepository(db, nop),
		calc,
		replays,
		achievement.NewEvaluator(repository.NewAchievementRepository(db, nop), nop),
		notifier,
		ranks,
		stubPresence{online: online},
		nop,
	)

	return &testEnv{
		pipeline: pipeline,
		db:       db,
		notifier: notifier,
		ranks:    ranks,
		boards:   boards,
		replays:  replays,
	}
}

func (e *testEnv) seedPlayer(t *testing.T, name string) int64 {
	t.Helper()
	res, err := e.db.Exec(
		`INSERT INTO users (username, username_safe, password_hash) VALUES (?, ?, 'hash')`,
		name, identity.Canonical(name))
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func (e *testEnv) seedBeatmap(t *testing.T, status domain.RankedStatus) {
	t.Helper()
	e.seedBeatmapMD5(t, testMD5, status)
}

func (e *testEnv) seedBeatmapMD5(t *testing.T, md5 string, status domain.RankedStatus) {
	t.Helper()
	_, err := e.db.Exec(
		`INSERT INTO beatmaps (beatmap_md5, beatmap_id, beatmapset_id, song_name, ranked_status)
		VALUES (?, 1, 1, 'Artist - Song [Hard]', ?)`, md5, status)
	require.NoError(t, err)
}

type payload struct {
	name   string
	md5    string
	score  int64
	combo  int
	mods   domain.Mods
	passed bool
}

func (p payload) encode() string {
	passed := "False"
	if p.passed {
		passed = "True"
	}
	md5 := p.md5
	if md5 == "" {
		md5 = testMD5
	}
	combo := p.combo
	if combo == 0 {
		combo = 700
	}
	fields := []string{
		md5, p.name, "replayhash",
		"0", "10", "490", "0", "50", "5", // n50 n100 n300 nMiss nGeki nKatu
		fmt.Sprint(p.score), fmt.Sprint(combo), "True", "S",
		fmt.Sprint(uint32(p.mods)), passed, "0", "0", "0",
	}
	return strings.Join(fields, ":")
}

func (e *testEnv) submit(t *testing.T, p payload, withReplay bool) (*Result, error) {
	t.Helper()
	req := &Request{
		ScoreData:    p.encode(),
		PasswordHash: "hash",
	}
	if withReplay {
		req.ReplayData = []byte("frames")
	}
	return e.pipeline.Submit(context.Background(), req)
}

func (e *testEnv) bestCount(t *testing.T, userID int64) int {
	t.Helper()
	var n int
	err := e.db.QueryRow(
		`SELECT COUNT(*) FROM scores WHERE user_id = ? AND completed = ?`,
		userID, domain.CompletedBest).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestSubmitFirstScore(t *testing.T) {
	env := newTestEnv(t, stubCalculator{pp: 250}, true)
	userID := env.seedPlayer(t, "Player")
	env.seedBeatmap(t, domain.StatusRanked)

	res, err := env.submit(t, payload{name: "Player", score: 100_000, passed: true}, true)
	require.NoError(t, err)

	require.Equal(t, domain.CompletedBest, res.Score.Completed)
	require.Equal(t, 1, res.Score.Placement)
	require.True(t, res.FirstPlace)
	require.Equal(t, userID, res.Score.UserID)
	require.InDelta(t, 250.0, res.Score.PP, 0.001)

	require.Equal(t, int64(1), res.NewStats.Playcount)
	require.Equal(t, int64(100_000), res.NewStats.RankedScore)
	require.Equal(t, int64(500), res.NewStats.TotalHits)
	require.Equal(t, 700, res.NewStats.MaxCombo)
	require.Greater(t, res.NewStats.PP, res.OldStats.PP)

	require.Len(t, env.notifier.announcements, 1)
	require.Equal(t,
		"[VN] Player achieved rank #1 on Artist - Song [Hard] +NM (250pp)",
		env.notifier.announcements[0])
	require.Equal(t, []int64{res.Score.ID}, env.notifier.newScores)
	require.Equal(t, 1, env.ranks.updates)

	data, err := env.replays.Load(res.Score.ID, domain.VariantVanilla)
	require.NoError(t, err)
	require.Equal(t, []byte("frames"), data)
}

func TestSubmitImprovementDemotesOldBest(t *testing.T) {
	env := newTestEnv(t, stubCalculator{pp: 250}, true)
	userID := env.seedPlayer(t, "Player")
	env.seedBeatmap(t, domain.StatusRanked)

	_, err := env.submit(t, payload{name: "Player", score: 100_000, passed: true}, true)
	require.NoError(t, err)

	res, err := env.submit(t, payload{name: "Player", score: 200_000, passed: true}, true)
	require.NoError(t, err)
	require.Equal(t, domain.CompletedBest, res.Score.Completed)

	// Exactly one BEST row per player/board, the improvement.
	require.Equal(t, 1, env.bestCount(t, userID))

	// Ranked score moves by the net gain, not the full value.
	require.Equal(t, int64(200_000), res.NewStats.RankedScore)
}

func TestSubmitLowerScoreKeepsOldBest(t *testing.T) {
	env := newTestEnv(t, stubCalculator{pp: 250}, true)
	userID := env.seedPlayer(t, "Player")
	env.seedBeatmap(t, domain.StatusRanked)

	first, err := env.submit(t, payload{name: "Player", score: 200_000, passed: true}, true)
	require.NoError(t, err)

	res, err := env.submit(t, payload{name: "Player", score: 100_000, passed: true}, true)
	require.NoError(t, err)
	require.Equal(t, domain.CompletedComplete, res.Score.Completed)
	require.Equal(t, 1, env.bestCount(t, userID))
	require.Equal(t, int64(200_000), first.NewStats.RankedScore)

	// A passed play on a ranked map still counts its full value toward
	// ranked score and carries its would-be rank.
	require.Equal(t, int64(300_000), res.NewStats.RankedScore)
	require.Equal(t, 2, res.Score.Placement)
}

func TestSubmitNonBestPassRaisesMaxCombo(t *testing.T) {
	env := newTestEnv(t, stubCalculator{pp: 250}, true)
	env.seedPlayer(t, "Player")
	env.seedBeatmap(t, domain.StatusRanked)

	_, err := env.submit(t, payload{name: "Player", score: 200_000, combo: 700, passed: true}, true)
	require.NoError(t, err)

	// A lower score with a longer combo stays COMPLETE but still raises the
	// player's best combo.
	res, err := env.submit(t, payload{name: "Player", score: 100_000, combo: 900, passed: true}, true)
	require.NoError(t, err)
	require.Equal(t, domain.CompletedComplete, res.Score.Completed)
	require.Equal(t, 900, res.NewStats.MaxCombo)
}

func TestSubmitConcurrentPlaysAccumulateStats(t *testing.T) {
	env := newTestEnv(t, stubCalculator{pp: 250}, true)
	userID := env.seedPlayer(t, "Player")

	const plays = 4
	md5s := make([]string, plays)
	for i := range md5s {
		md5s[i] = fmt.Sprintf("%032d", i+1)
		env.seedBeatmapMD5(t, md5s[i], domain.StatusRanked)
	}

	// Different beatmaps take different submission locks, so the fold-in
	// into the shared stats object is what serializes them.
	var wg sync.WaitGroup
	errs := make([]error, plays)
	for i, md5 := range md5s {
		wg.Add(1)
		go func(i int, md5 string) {
			defer wg.Done()
			_, errs[i] = env.submit(t, payload{name: "Player", md5: md5, score: 100_000, passed: true}, true)
		}(i, md5)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	st, err := env.pipeline.stats.Get(context.Background(), userID, domain.ModeStandard, domain.VariantVanilla)
	require.NoError(t, err)
	require.Equal(t, int64(plays), st.Playcount)
	require.Equal(t, int64(plays*100_000), st.TotalScore)
	require.Equal(t, int64(plays*100_000), st.RankedScore)
}

func TestSubmitSecondPlayerTakesFirstPlace(t *testing.T) {
	env := newTestEnv(t, stubCalculator{pp: 250}, true)
	env.seedPlayer(t, "Player")
	rivalID := env.seedPlayer(t, "Rival")
	env.seedBeatmap(t, domain.StatusRanked)

	_, err := env.submit(t, payload{name: "Player", score: 100_000, passed: true}, true)
	require.NoError(t, err)

	res, err := env.submit(t, payload{name: "Rival", score: 300_000, passed: true}, true)
	require.NoError(t, err)
	require.Equal(t, 1, res.Score.Placement)
	require.True(t, res.FirstPlace)
	require.Equal(t, rivalID, res.Score.UserID)
	require.Len(t, env.notifier.announcements, 2)
}

func TestSubmitDuplicateRejected(t *testing.T) {
	env := newTestEnv(t, stubCalculator{pp: 250}, true)
	env.seedPlayer(t, "Player")
	env.seedBeatmap(t, domain.StatusRanked)

	p := payload{name: "Player", score: 100_000, passed: true}
	_, err := env.submit(t, p, true)
	require.NoError(t, err)

	_, err = env.submit(t, p, true)
	require.ErrorIs(t, err, ErrRejected)
}

func TestSubmitFailedScore(t *testing.T) {
	env := newTestEnv(t, stubCalculator{pp: 250}, true)
	userID := env.seedPlayer(t, "Player")
	env.seedBeatmap(t, domain.StatusRanked)

	res, err := env.submit(t, payload{name: "Player", score: 50_000, passed: false}, false)
	require.NoError(t, err)
	require.Equal(t, domain.CompletedFailed, res.Score.Completed)
	require.Zero(t, res.Score.Placement)
	require.Zero(t, env.bestCount(t, userID))

	// Fails still count as plays and judged hits.
	require.Equal(t, int64(1), res.NewStats.Playcount)
	require.Equal(t, int64(500), res.NewStats.TotalHits)
	require.Zero(t, res.NewStats.RankedScore)
	require.Zero(t, res.NewStats.MaxCombo)
}

func TestSubmitUnrankedMapStaysComplete(t *testing.T) {
	env := newTestEnv(t, stubCalculator{pp: 250}, true)
	userID := env.seedPlayer(t, "Player")
	env.seedBeatmap(t, domain.StatusPending)

	res, err := env.submit(t, payload{name: "Player", score: 100_000, passed: true}, true)
	require.NoError(t, err)
	require.Equal(t, domain.CompletedComplete, res.Score.Completed)
	require.Zero(t, res.Score.Placement)
	require.Zero(t, env.bestCount(t, userID))
	require.Empty(t, env.notifier.announcements)
}

func TestSubmitReplaylessPassRestricts(t *testing.T) {
	env := newTestEnv(t, stubCalculator{pp: 250}, true)
	userID := env.seedPlayer(t, "Player")
	env.seedBeatmap(t, domain.StatusRanked)

	res, err := env.submit(t, payload{name: "Player", score: 100_000, passed: true}, false)
	require.NoError(t, err)
	require.True(t, res.Restricted)
	require.Equal(t, []int64{userID}, env.notifier.bans)
	require.Equal(t, []int64{userID}, env.ranks.removed)

	var privs domain.Privileges
	require.NoError(t, env.db.QueryRow(
		`SELECT privileges FROM users WHERE id = ?`, userID).Scan(&privs))
	require.True(t, privs.IsRestricted())
}

func TestSubmitPerformanceCapRestricts(t *testing.T) {
	env := newTestEnv(t, stubCalculator{pp: 5000}, true)
	userID := env.seedPlayer(t, "Player")
	env.seedBeatmap(t, domain.StatusRanked)

	res, err := env.submit(t, payload{name: "Player", score: 100_000, passed: true}, true)
	require.NoError(t, err)
	require.True(t, res.Restricted)
	require.Equal(t, []int64{userID}, env.notifier.bans)
}

func TestSubmitCalculatorFailureDegradesToZero(t *testing.T) {
	env := newTestEnv(t, stubCalculator{err: fmt.Errorf("calculator offline")}, true)
	env.seedPlayer(t, "Player")
	env.seedBeatmap(t, domain.StatusRanked)

	res, err := env.submit(t, payload{name: "Player", score: 100_000, passed: true}, true)
	require.NoError(t, err)
	require.Zero(t, res.Score.PP)
	require.Equal(t, domain.CompletedBest, res.Score.Completed)

	// A zero-pp best never triggers the weighted recalculation.
	require.Zero(t, res.NewStats.PP)
}

func TestSubmitOfflinePlayerDropped(t *testing.T) {
	env := newTestEnv(t, stubCalculator{pp: 250}, false)
	env.seedPlayer(t, "Player")
	env.seedBeatmap(t, domain.StatusRanked)

	_, err := env.submit(t, payload{name: "Player", score: 100_000, passed: true}, true)
	require.ErrorIs(t, err, ErrRejected)
}

func TestSubmitBadCredentials(t *testing.T) {
	env := newTestEnv(t, stubCalculator{pp: 250}, true)
	env.seedPlayer(t, "Player")
	env.seedBeatmap(t, domain.StatusRanked)

	req := &Request{
		ScoreData:    payload{name: "Player", score: 100_000, passed: true}.encode(),
		PasswordHash: "wrong",
	}
	_, err := env.pipeline.Submit(context.Background(), req)
	require.ErrorIs(t, err, ErrBadCredentials)
}

func TestSubmitUnrankableModsRejected(t *testing.T) {
	env := newTestEnv(t, stubCalculator{pp: 250}, true)
	env.seedPlayer(t, "Player")
	env.seedBeatmap(t, domain.StatusRanked)

	_, err := env.submit(t, payload{name: "Player", score: 100_000, mods: domain.ModAutoplay, passed: true}, true)
	require.ErrorIs(t, err, ErrRejected)
}

func TestSubmitUnknownBeatmap(t *testing.T) {
	env := newTestEnv(t, stubCalculator{pp: 250}, true)
	env.seedPlayer(t, "Player")

	_, err := env.submit(t, payload{name: "Player", score: 100_000, passed: true}, true)
	require.ErrorIs(t, err, ErrNoBeatmap)
}

func TestParseScoreData(t *testing.T) {
	s, err := ParseScoreData(payload{name: "Player", score: 123_456, mods: domain.ModHidden, passed: true}.encode())
	require.NoError(t, err)
	require.Equal(t, testMD5, s.Beatmap.MD5)
	require.Equal(t, "Player", s.Username)
	require.Equal(t, int64(123_456), s.Score)
	require.Equal(t, 490, s.Count300)
	require.Equal(t, 10, s.Count100)
	require.Equal(t, 0, s.CountMiss)
	require.True(t, s.Passed)
	require.True(t, s.FullCombo)
	require.Equal(t, domain.ModHidden, s.Mods)
	require.Equal(t, domain.ModeStandard, s.Mode)
	require.Equal(t, domain.VariantVanilla, s.Variant)
	require.NotZero(t, s.Accuracy)
}

func TestParseScoreDataWrongFieldCount(t *testing.T) {
	_, err := ParseScoreData("a:b:c")
	require.ErrorIs(t, err, ErrRejected)
}

func TestParseScoreDataRelaxVariant(t *testing.T) {
	s, err := ParseScoreData(payload{name: "Player", score: 1, mods: domain.ModRelax, passed: true}.encode())
	require.NoError(t, err)
	require.Equal(t, domain.VariantRelax, s.Variant)
}
