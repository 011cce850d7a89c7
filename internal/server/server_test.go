package server

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"score-server/internal/config"
	"score-server/internal/domain"
	"score-server/internal/submission"
)

func panelResult(status domain.RankedStatus) *submission.Result {
	return &submission.Result{
		Score: &domain.Score{
			ID: 42, UserID: 9, Score: 200_000, MaxCombo: 900,
			Accuracy: 98.5, PP: 250, Placement: 1, Passed: true,
		},
		Beatmap: &domain.Beatmap{
			ID: 7, SetID: 3, SongName: "Artist - Song [Hard]",
			Status: status, Playcount: 10, Passcount: 5,
		},
		OldStats: domain.Stats{Rank: 20, RankedScore: 1_000_000, MaxCombo: 700},
		NewStats: domain.Stats{Rank: 15, RankedScore: 1_200_000, MaxCombo: 900},
	}
}

func TestRenderPanelsWithPreviousBest(t *testing.T) {
	s := &ScoreServer{cfg: &config.Config{ServerDomain: "http://localhost"}}
	res := panelResult(domain.StatusRanked)
	res.PrevBest = &domain.Score{
		ID: 41, Score: 100_000, MaxCombo: 700, Accuracy: 95.25, PP: 200, Placement: 3,
	}

	lines := strings.Split(s.renderPanels(res), "\n")
	require.Len(t, lines, 3)

	require.True(t, strings.HasPrefix(lines[0], "beatmapId:7|beatmapSetId:3|"))

	require.Contains(t, lines[1], "chartId:beatmap")
	require.Contains(t, lines[1], "chartUrl:http://localhost/b/7")
	require.Contains(t, lines[1], "rankBefore:3|rankAfter:1")
	require.Contains(t, lines[1], "maxComboBefore:700|maxComboAfter:900")
	require.Contains(t, lines[1], "accuracyBefore:95.25|accuracyAfter:98.50")
	require.Contains(t, lines[1], "rankedScoreBefore:100000|rankedScoreAfter:200000")
	require.Contains(t, lines[1], "ppBefore:200|ppAfter:250")
	require.Contains(t, lines[1], "onlineScoreId:42")

	require.Contains(t, lines[2], "chartId:overall")
	require.Contains(t, lines[2], "rankBefore:20|rankAfter:15")
	require.Contains(t, lines[2], "onlineScoreId:42")
}

func TestRenderPanelsFirstPlayHasBlankBefores(t *testing.T) {
	s := &ScoreServer{cfg: &config.Config{ServerDomain: "http://localhost"}}
	res := panelResult(domain.StatusRanked)

	lines := strings.Split(s.renderPanels(res), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[1], "rankBefore:0|rankAfter:1")
	require.Contains(t, lines[1], "maxComboBefore:|maxComboAfter:900")
	require.Contains(t, lines[1], "accuracyBefore:|accuracyAfter:98.50")
	require.Contains(t, lines[1], "ppBefore:|ppAfter:250")
}

func TestRenderPanelsUnrankedMapSkipsBeatmapChart(t *testing.T) {
	s := &ScoreServer{cfg: &config.Config{ServerDomain: "http://localhost"}}
	res := panelResult(domain.StatusPending)

	lines := strings.Split(s.renderPanels(res), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[1], "chartId:overall")
}
