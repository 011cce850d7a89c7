package submission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"score-server/internal/achievement"
	"score-server/internal/beatmaps"
	"score-server/internal/config"
	"score-server/internal/domain"
	"score-server/internal/identity"
	"score-server/internal/leaderboard"
	"score-server/internal/performance"
	"score-server/internal/replay"
	"score-server/internal/repository"
	"score-server/internal/stats"
)

// Notifier fans submission side effects out to the other services.
type Notifier interface {
	StatsRefresh(ctx context.Context, userID int64) error
	NotifyNewScore(ctx context.Context, scoreID int64) error
	NotifyBan(ctx context.Context, userID int64) error
	Announce(ctx context.Context, message string) error
}

// RankIndex is the persistent rank store the pipeline writes to.
type RankIndex interface {
	UpdateUser(ctx context.Context, userID int64, mode domain.Mode, variant domain.Variant, country string, metric float64) error
	RemoveUser(ctx context.Context, userID int64, country string) error
}

// Presence answers whether a player holds an active gateway session.
type Presence interface {
	IsOnline(ctx context.Context, userID int64) (bool, error)
}

// Request is one decoded submission from the client.
type Request struct {
	ScoreData    string
	PasswordHash string
	ReplayData   []byte
	FailTime     int
	Quit         bool
}

// Result feeds the response panels: the persisted score, the previous best it
// displaced, and the player's statistics before and after.
type Result struct {
	Score        *domain.Score
	PrevBest     *domain.Score
	OldStats     domain.Stats
	NewStats     domain.Stats
	Beatmap      *domain.Beatmap
	Achievements []repository.AchievementRow
	FirstPlace   bool
	Restricted   bool
}

type submitKey struct {
	UserID  int64
	MD5     string
	Mode    domain.Mode
	Variant domain.Variant
}

// Pipeline runs submissions end to end. Submissions of the same player on
// the same board are serialized so best-score classification never races.
type Pipeline struct {
	cfg          *config.Config
	caches       *identity.Caches
	beatmaps     *beatmaps.Source
	boards       *leaderboard.Store
	stats        *stats.Aggregator
	scores       *repository.ScoreRepository
	users        *repository.UserRepository
	firstPlaces  *repository.FirstPlaceRepository
	perf         performance.Calculator
	replays      *replay.Store
	achievements *achievement.Evaluator
	publisher    Notifier
	ranks        RankIndex
	sessions     Presence
	logger       zerolog.Logger

	locks sync.Map
}

func NewPipeline(
	cfg *config.Config,
	caches *identity.Caches,
	beatmapSource *beatmaps.Source,
	boards *leaderboard.Store,
	aggregator *stats.Aggregator,
	scores *repository.ScoreRepository,
	users *repository.UserRepository,
	firstPlaces *repository.FirstPlaceRepository,
	perf performance.Calculator,
	replays *replay.Store,
	achievements *achievement.Evaluator,
	publisher Notifier,
	ranks RankIndex,
	sessions Presence,
	logger zerolog.Logger,
) *Pipeline {
	return &Pipeline{
		cfg:          cfg,
		caches:       caches,
		beatmaps:     beatmapSource,
		boards:       boards,
		stats:        aggregator,
		scores:       scores,
		users:        users,
		firstPlaces:  firstPlaces,
		perf:         perf,
		replays:      replays,
		achievements: achievements,
		publisher:    publisher,
		ranks:        ranks,
		sessions:     sessions,
		logger:       logger,
	}
}

func (p *Pipeline) lock(key submitKey) *sync.Mutex {
	mu, _ := p.locks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Submit runs one submission through the full pipeline.
func (p *Pipeline) Submit(ctx context.Context, req *Request) (*Result, error) {
	s, err := ParseScoreData(req.ScoreData)
	if err != nil {
		return nil, err
	}
	s.Quit = req.Quit
	s.Timestamp = time.Now().Unix()
	if !s.Passed {
		s.PlayTime = req.FailTime / 1000
	}

	userID, ok := p.caches.CheckAuth(ctx, s.Username, req.PasswordHash)
	if !ok {
		return nil, ErrBadCredentials
	}
	s.UserID = userID

	privs, found := p.caches.Privileges.Get(ctx, userID)
	if !found || privs.IsBanned() {
		return nil, ErrBadCredentials
	}
	restricted := privs.IsRestricted()

	online, err := p.sessions.IsOnline(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !online {
		p.logger.Warn().Int64("user_id", userID).Msg("submission without gateway session")
		return nil, ErrRejected
	}

	if !s.Mods.Rankable() {
		return nil, ErrRejected
	}
	if s.Mods.Conflict() {
		if err := p.restrict(ctx, userID, "impossible mod combination submitted"); err != nil {
			return nil, err
		}
		return nil, ErrRejected
	}

	beatmap, origin, err := p.beatmaps.FromMD5(ctx, s.Beatmap.MD5)
	if err != nil {
		return nil, err
	}
	if !origin.Found() {
		return nil, ErrNoBeatmap
	}
	s.Beatmap = beatmap
	s.SR = beatmap.Difficulty()

	dup, err := p.scores.DuplicateExists(ctx, userID, beatmap.MD5, s.Score, s.Mode, s.Mods)
	if err != nil {
		return nil, err
	}
	if dup {
		p.logger.Warn().
			Int64("user_id", userID).
			Str("beatmap_md5", beatmap.MD5).
			Msg("duplicate submission dropped")
		return nil, ErrRejected
	}

	if pp, sr, err := p.perf.Calculate(ctx, s); err != nil {
		// A score without a performance value is still a score.
		p.logger.Error().Err(err).Int64("user_id", userID).Msg("performance calculation failed")
		s.PP = 0
	} else {
		s.PP = pp
		if sr > 0 {
			s.SR = sr
		}
	}

	key := submitKey{UserID: userID, MD5: beatmap.MD5, Mode: s.Mode, Variant: s.Variant}
	mu := p.lock(key)
	mu.Lock()
	defer mu.Unlock()

	prevBest, err := p.scores.UserBest(ctx, userID, beatmap.MD5, s.Mode, s.Variant)
	if err != nil {
		return nil, err
	}
	if prevBest != nil && s.Passed && beatmap.HasLeaderboard() {
		// Snapshot the displaced best's placement before this submission
		// shifts the board; the response panels show it as the before value.
		better, err := p.scores.CountBetterBests(ctx, beatmap.MD5, s.Mode, s.Variant, prevBest.RankingMetric(), prevBest.ID)
		if err != nil {
			return nil, err
		}
		prevBest.Placement = better + 1
	}
	p.classify(s, prevBest)

	if s.Completed == domain.CompletedBest {
		if err := p.scores.DemoteLowerBest(ctx, userID, beatmap.MD5, s.Mode, s.Variant, s.RankingMetric()); err != nil {
			return nil, err
		}
	}

	if err := p.scores.Insert(ctx, s); err != nil {
		return nil, err
	}

	if s.Passed && beatmap.HasLeaderboard() {
		better, err := p.scores.CountBetterBests(ctx, beatmap.MD5, s.Mode, s.Variant, s.RankingMetric(), s.ID)
		if err != nil {
			return nil, err
		}
		s.Placement = better + 1
	}

	if err := p.beatmaps.IncrementPlaycount(ctx, beatmap, s.Passed); err != nil {
		return nil, err
	}

	res := &Result{Score: s, PrevBest: prevBest, Beatmap: beatmap}

	if err := p.applyStats(ctx, s, prevBest, res); err != nil {
		return nil, err
	}

	if s.Passed {
		if len(req.ReplayData) == 0 && !restricted {
			if err := p.restrict(ctx, userID, "passed score submitted without replay"); err != nil {
				return nil, err
			}
			res.Restricted = true
			return res, nil
		}
		if len(req.ReplayData) > 0 {
			if err := p.replays.Save(s.ID, s.Variant, req.ReplayData); err != nil {
				return nil, err
			}
		}
	}

	if !restricted {
		if err := p.afterSubmit(ctx, s, res); err != nil {
			return nil, err
		}
	}

	if s.Passed {
		earned, err := p.achievements.Check(ctx, s, &res.NewStats)
		if err != nil {
			return nil, err
		}
		res.Achievements = earned
	}

	if capExceeded, err := p.exceedsCap(ctx, s, privs); err != nil {
		return nil, err
	} else if capExceeded {
		if err := p.restrict(ctx, userID, fmt.Sprintf("performance cap exceeded: %.0fpp on %s %s", s.PP, s.Mode, s.Variant)); err != nil {
			return nil, err
		}
		res.Restricted = true
	}

	p.logger.Info().
		Int64("score_id", s.ID).
		Int64("user_id", userID).
		Str("beatmap_md5", beatmap.MD5).
		Str("mode", s.Mode.String()).
		Str("variant", s.Variant.String()).
		Float64("pp", s.PP).
		Int("placement", s.Placement).
		Int("completed", int(s.Completed)).
		Msg("score submitted")
	return res, nil
}

// classify assigns the terminal state. Quits and fails keep their own
// states, a pass on an unranked board is merely complete, and a pass
// strictly above the previous best by the board's ranking metric becomes
// the new best.
func (p *Pipeline) classify(s *domain.Score, prevBest *domain.Score) {
	switch {
	case s.Placement == 1:
		s.Completed = domain.CompletedBest
	case s.Quit:
		s.Completed = domain.CompletedQuit
	case !s.Passed:
		s.Completed = domain.CompletedFailed
	case !s.Beatmap.HasLeaderboard():
		s.Completed = domain.CompletedComplete
	case prevBest == nil || s.RankingMetric() > prevBest.RankingMetric():
		s.Completed = domain.CompletedBest
	default:
		s.Completed = domain.CompletedComplete
	}
}

// applyStats folds the score into the player's statistics. Every passed play
// on a ranked map counts toward ranked score; replacing a best adds only the
// net gain over the displaced value so it is never counted twice.
func (p *Pipeline) applyStats(ctx context.Context, s *domain.Score, prevBest *domain.Score, res *Result) error {
	// The cached Stats object is shared across boards, so the whole
	// read-modify-write holds the player's stats lock.
	mu := p.stats.LockFor(s.UserID, s.Mode, s.Variant)
	mu.Lock()
	defer mu.Unlock()

	st, err := p.stats.Get(ctx, s.UserID, s.Mode, s.Variant)
	if err != nil {
		return err
	}
	res.OldStats = *st

	st.Playcount++
	st.TotalScore += s.Score
	st.TotalHits += int64(s.TotalHits())

	if s.Passed && s.Beatmap.HasLeaderboard() {
		if s.Beatmap.Status == domain.StatusRanked {
			gain := s.Score
			if s.Completed == domain.CompletedBest && prevBest != nil {
				gain -= prevBest.Score
			}
			st.RankedScore += gain
		}
		if s.MaxCombo > st.MaxCombo {
			st.MaxCombo = s.MaxCombo
		}
		if s.Completed == domain.CompletedBest && s.PP > 0 {
			if err := p.stats.RecalcPerformance(ctx, st, s.PP); err != nil {
				return err
			}
		}
	}

	if err := p.stats.Save(ctx, st); err != nil {
		return err
	}
	res.NewStats = *st
	return nil
}

// afterSubmit is the publicly visible fan-out: the cached board, the rank
// index, first place bookkeeping and bus notifications.
func (p *Pipeline) afterSubmit(ctx context.Context, s *domain.Score, res *Result) error {
	if s.Completed == domain.CompletedBest && s.Beatmap.HasLeaderboard() {
		p.boards.InsertScore(s)

		if s.Placement == 1 {
			if err := p.claimFirstPlace(ctx, s); err != nil {
				return err
			}
			res.FirstPlace = true
		}
	}

	country, err := p.users.CountryByID(ctx, s.UserID)
	if err != nil {
		return err
	}
	if err := p.ranks.UpdateUser(ctx, s.UserID, s.Mode, s.Variant, country, res.NewStats.PP); err != nil {
		return err
	}
	if err := p.stats.UpdateRank(ctx, &res.NewStats); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.publisher.NotifyNewScore(gctx, s.ID) })
	g.Go(func() error { return p.publisher.StatsRefresh(gctx, s.UserID) })
	return g.Wait()
}

func (p *Pipeline) claimFirstPlace(ctx context.Context, s *domain.Score) error {
	if err := p.firstPlaces.Replace(ctx, s); err != nil {
		return err
	}

	msg := fmt.Sprintf("[%s] %s achieved rank #1 on %s +%s (%.0fpp)",
		s.Variant.Acronym(), s.Username, s.Beatmap.SongName, s.Mods.Readable(), s.PP)
	return p.publisher.Announce(ctx, msg)
}

// exceedsCap checks the per-mode performance ceiling. Verified players and
// whitelisted players are exempt.
func (p *Pipeline) exceedsCap(ctx context.Context, s *domain.Score, privs domain.Privileges) (bool, error) {
	if s.PP == 0 || !s.Passed {
		return false, nil
	}
	if privs&domain.PrivVerified != 0 {
		return false, nil
	}

	var caps []float64
	switch s.Variant {
	case domain.VariantRelax:
		caps = p.cfg.PPCapRelax
	case domain.VariantAutopilot:
		caps = p.cfg.PPCapAutopilot
	default:
		caps = p.cfg.PPCapVanilla
	}
	if int(s.Mode) >= len(caps) || s.PP <= caps[s.Mode] {
		return false, nil
	}

	whitelisted, err := p.users.HasBadge(ctx, s.UserID, "whitelisted")
	if err != nil {
		return false, err
	}
	return !whitelisted, nil
}

// Restrict strips the player's public bit and scrubs them from every
// ranking surface. Exposed for the transport layer's own anticheat signals.
func (p *Pipeline) Restrict(ctx context.Context, userID int64, reason string) error {
	return p.restrict(ctx, userID, reason)
}

func (p *Pipeline) restrict(ctx context.Context, userID int64, reason string) error {
	p.logger.Warn().Int64("user_id", userID).Str("reason", reason).Msg("restricting user")

	if err := p.users.Restrict(ctx, userID, reason); err != nil {
		return err
	}
	if err := p.caches.Privileges.LoadSingular(ctx, userID); err != nil {
		return err
	}

	country, err := p.users.CountryByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := p.ranks.RemoveUser(ctx, userID, country); err != nil {
		return err
	}
	p.boards.RemoveUser(userID)

	return p.publisher.NotifyBan(ctx, userID)
}
