// Package server exposes the plain-text client endpoints: leaderboard reads
// and score submission. Handlers stay thin; all decisions live in the core
// packages.
package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"score-server/internal/achievement"
	"score-server/internal/beatmaps"
	"score-server/internal/config"
	"score-server/internal/constants"
	"score-server/internal/domain"
	"score-server/internal/identity"
	"score-server/internal/leaderboard"
	"score-server/internal/repository"
	"score-server/internal/submission"
)

const (
	replyBadCredentials = "error: pass"
	replyRejected       = "error: no"
	replyBeatmap        = "error: beatmap"
	replyBanned         = "error: ban"
)

type ScoreServer struct {
	cfg      *config.Config
	caches   *identity.Caches
	beatmaps *beatmaps.Source
	boards   *leaderboard.Store
	users    *repository.UserRepository
	pipeline *submission.Pipeline
	logger   zerolog.Logger
}

func NewScoreServer(
	cfg *config.Config,
	caches *identity.Caches,
	beatmapSource *beatmaps.Source,
	boards *leaderboard.Store,
	users *repository.UserRepository,
	pipeline *submission.Pipeline,
	logger zerolog.Logger,
) *ScoreServer {
	return &ScoreServer{
		cfg:      cfg,
		caches:   caches,
		beatmaps: beatmapSource,
		boards:   boards,
		users:    users,
		pipeline: pipeline,
		logger:   logger,
	}
}

// Register binds the client endpoints onto the mux.
func (s *ScoreServer) Register(mux *http.ServeMux) {
	mux.HandleFunc("/web/osu-osz2-getscores.php", s.HandleLeaderboard)
	mux.HandleFunc("/web/osu-submit-modular.php", s.HandleSubmit)
}

// HandleLeaderboard serves the in-game leaderboard view.
//
// A map with no ranked status answers with a status-only header; that is not
// an error, the client renders it as "unranked".
func (s *ScoreServer) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	userID, ok := s.caches.CheckAuth(ctx, q.Get("us"), q.Get("ha"))
	if !ok {
		fmt.Fprint(w, replyBadCredentials)
		return
	}

	if v, err := strconv.Atoi(q.Get("vv")); err != nil || v != constants.ClientProtocolVersion {
		s.logger.Warn().
			Int64("user_id", userID).
			Str("vv", q.Get("vv")).
			Msg("leaderboard request from tampered client")
		if err := s.pipeline.Restrict(ctx, userID, "tampered client protocol version"); err != nil {
			s.logger.Error().Err(err).Int64("user_id", userID).Msg("restriction failed")
		}
		fmt.Fprint(w, replyBadCredentials)
		return
	}

	md5 := q.Get("c")
	if len(md5) != 32 {
		fmt.Fprint(w, replyRejected)
		return
	}

	mode := domain.Mode(atoi(q.Get("m")))
	if !mode.Valid() {
		mode = domain.ModeStandard
	}
	mods := domain.Mods(atoi(q.Get("mods")))
	variant := domain.VariantFromMods(mods, mode)
	lbType := domain.LeaderboardType(atoi(q.Get("v")))

	if status, known := s.beatmaps.KnownMissing(md5); known {
		fmt.Fprintf(w, "%d|false", status)
		return
	}

	beatmap, origin, err := s.beatmaps.FromMD5(ctx, md5)
	if err != nil {
		s.logger.Error().Err(err).Str("beatmap_md5", md5).Msg("beatmap lookup failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !origin.Found() {
		s.beatmaps.MarkMissing(md5, domain.StatusNotSubmitted)
		fmt.Fprintf(w, "%d|false", domain.StatusNotSubmitted)
		return
	}
	if !beatmap.HasLeaderboard() {
		fmt.Fprintf(w, "%d|false", beatmap.Status)
		return
	}

	lb, lbOrigin, err := s.fetchBoard(r, beatmap, mode, variant, lbType, userID, mods)
	if err != nil {
		s.logger.Error().Err(err).Str("beatmap_md5", md5).Msg("leaderboard build failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.logger.Debug().
		Int64("user_id", userID).
		Str("beatmap_md5", md5).
		Str("origin", lbOrigin.String()).
		Int("type", int(lbType)).
		Msg("leaderboard served")

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d|false|%d|%d|%d\n", beatmap.Status, beatmap.ID, beatmap.SetID, lb.Total())
	sb.WriteString("0\n")
	sb.WriteString(beatmap.SongName + "\n")
	fmt.Fprintf(&sb, "%.1f\n", beatmap.Rating)

	personal, _, err := s.boards.PersonalBest(ctx, lb, userID)
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", userID).Msg("personal best lookup failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if personal != nil {
		sb.WriteString(s.scoreLine(personal) + "\n")
	} else {
		sb.WriteString("\n")
	}

	for _, entry := range lb.Scores() {
		sb.WriteString(s.scoreLine(entry) + "\n")
	}
	io.WriteString(w, sb.String())
}

func (s *ScoreServer) fetchBoard(r *http.Request, beatmap *domain.Beatmap, mode domain.Mode, variant domain.Variant, lbType domain.LeaderboardType, userID int64, mods domain.Mods) (*leaderboard.Leaderboard, domain.FetchOrigin, error) {
	ctx := r.Context()

	switch lbType {
	case domain.LeaderboardCountry:
		country, err := s.users.CountryByID(ctx, userID)
		if err != nil {
			return nil, domain.FetchNone, err
		}
		lb, err := s.boards.Filtered(ctx, beatmap, mode, variant, &repository.LeaderboardFilter{Country: country})
		return lb, domain.FetchDatabase, err
	case domain.LeaderboardFriends:
		friends, err := s.users.FriendIDs(ctx, userID)
		if err != nil {
			return nil, domain.FetchNone, err
		}
		lb, err := s.boards.Filtered(ctx, beatmap, mode, variant, &repository.LeaderboardFilter{FriendIDs: friends})
		return lb, domain.FetchDatabase, err
	case domain.LeaderboardMod:
		lb, err := s.boards.Filtered(ctx, beatmap, mode, variant, &repository.LeaderboardFilter{Mods: &mods})
		return lb, domain.FetchDatabase, err
	default:
		return s.boards.FromBeatmap(ctx, beatmap, mode, variant)
	}
}

// scoreLine renders one board row. Clan members show their tag in front of
// the display name.
func (s *ScoreServer) scoreLine(e *domain.Score) string {
	name := e.Username
	if tag, ok := s.caches.Clans.Get(e.UserID); ok {
		name = fmt.Sprintf("[%s] %s", tag, name)
	}

	fullCombo := 0
	if e.FullCombo {
		fullCombo = 1
	}

	return fmt.Sprintf("%d|%s|%d|%d|%d|%d|%d|%d|%d|%d|%d|%d|%d|%d|%d|1",
		e.ID, name, e.Score, e.MaxCombo, e.Count50, e.Count100, e.Count300,
		e.CountMiss, e.CountKatu, e.CountGeki, fullCombo, e.Mode, e.UserID,
		e.Placement, e.Timestamp)
}

// HandleSubmit runs a submission through the pipeline and renders the
// ranking panels.
func (s *ScoreServer) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !s.cfg.CustomClients && r.UserAgent() != "osu!" {
		s.logger.Warn().Str("user_agent", r.UserAgent()).Msg("submission from non-stock client")
		fmt.Fprint(w, replyRejected)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		if err := r.ParseForm(); err != nil {
			fmt.Fprint(w, replyRejected)
			return
		}
	}

	req := &submission.Request{
		ScoreData:    r.FormValue("score"),
		PasswordHash: r.FormValue("pass"),
		FailTime:     atoi(r.FormValue("ft")),
		Quit:         r.FormValue("x") == "1",
	}
	if file, _, err := r.FormFile("replay"); err == nil {
		data, err := io.ReadAll(file)
		file.Close()
		if err == nil {
			req.ReplayData = data
		}
	}

	res, err := s.pipeline.Submit(r.Context(), req)
	if err != nil {
		fmt.Fprint(w, submitReply(err))
		return
	}
	if res.Restricted {
		fmt.Fprint(w, replyBanned)
		return
	}
	if !res.Score.Passed {
		// Processed and persisted, but the client has no charts to show.
		fmt.Fprint(w, replyRejected)
		return
	}

	io.WriteString(w, s.renderPanels(res))
}

func submitReply(err error) string {
	switch {
	case errors.Is(err, submission.ErrBadCredentials):
		return replyBadCredentials
	case errors.Is(err, submission.ErrNoBeatmap):
		return replyBeatmap
	default:
		return replyRejected
	}
}

// renderPanels builds the post-submission chart response: the beatmap info
// line, the beatmap ranking chart on leaderboard maps, and the overall chart
// with before/after value pairs.
func (s *ScoreServer) renderPanels(res *submission.Result) string {
	b := res.Beatmap

	panels := []string{
		fmt.Sprintf("beatmapId:%d|beatmapSetId:%d|beatmapPlaycount:%d|beatmapPasscount:%d|approvedDate:",
			b.ID, b.SetID, b.Playcount, b.Passcount),
	}

	if b.HasLeaderboard() {
		panels = append(panels, s.beatmapChart(res))
	}

	panels = append(panels,
		strings.Join([]string{
			"chartId:overall",
			fmt.Sprintf("chartUrl:%s/u/%d", s.cfg.ServerDomain, res.Score.UserID),
			"chartName:Overall Ranking",
			pairPanel("rank", res.OldStats.Rank, res.NewStats.Rank),
			pairPanel("rankedScore", res.OldStats.RankedScore, res.NewStats.RankedScore),
			pairPanel("totalScore", res.OldStats.TotalScore, res.NewStats.TotalScore),
			pairPanel("maxCombo", res.OldStats.MaxCombo, res.NewStats.MaxCombo),
			pairPanel("accuracy", fmt.Sprintf("%.2f", res.OldStats.Accuracy), fmt.Sprintf("%.2f", res.NewStats.Accuracy)),
			pairPanel("pp", fmt.Sprintf("%.2f", res.OldStats.PP), fmt.Sprintf("%.2f", res.NewStats.PP)),
			fmt.Sprintf("achievements-new:%s", achievement.PanelString(res.Achievements)),
			fmt.Sprintf("onlineScoreId:%d", res.Score.ID),
		}, "|"))
	return strings.Join(panels, "\n")
}

// beatmapChart renders the per-map ranking chart. The before column comes
// from the best this submission displaced, blank on a first play.
func (s *ScoreServer) beatmapChart(res *submission.Result) string {
	score := res.Score

	var pairs []string
	if pb := res.PrevBest; pb != nil {
		pairs = []string{
			pairPanel("rank", pb.Placement, score.Placement),
			pairPanel("maxCombo", pb.MaxCombo, score.MaxCombo),
			pairPanel("accuracy", fmt.Sprintf("%.2f", pb.Accuracy), fmt.Sprintf("%.2f", score.Accuracy)),
			pairPanel("rankedScore", pb.Score, score.Score),
			pairPanel("pp", fmt.Sprintf("%.0f", pb.PP), fmt.Sprintf("%.0f", score.PP)),
		}
	} else {
		pairs = []string{
			pairPanel("rank", "0", score.Placement),
			pairPanel("maxCombo", "", score.MaxCombo),
			pairPanel("accuracy", "", fmt.Sprintf("%.2f", score.Accuracy)),
			pairPanel("rankedScore", "", score.Score),
			pairPanel("pp", "", fmt.Sprintf("%.0f", score.PP)),
		}
	}

	parts := []string{
		"chartId:beatmap",
		fmt.Sprintf("chartUrl:%s/b/%d", s.cfg.ServerDomain, res.Beatmap.ID),
		"chartName:Beatmap Ranking",
	}
	parts = append(parts, pairs...)
	parts = append(parts, fmt.Sprintf("onlineScoreId:%d", score.ID))
	return strings.Join(parts, "|")
}

func pairPanel(name string, before, after any) string {
	return fmt.Sprintf("%sBefore:%v|%sAfter:%v", name, before, name, after)
}

func atoi(v string) int {
	n, _ := strconv.Atoi(v)
	return n
}
