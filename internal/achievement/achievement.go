// Package achievement evaluates unlock conditions against freshly submitted
// scores.
package achievement

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"score-server/internal/domain"
	"score-server/internal/repository"
)

// Predicate decides whether one submitted score unlocks an achievement.
type Predicate func(s *domain.Score, st *domain.Stats) bool

// predicates is the compiled condition table. Rows reference conditions by
// name; an unknown name disables the row rather than failing submissions.
var predicates = map[string]Predicate{
	"pass": func(s *domain.Score, _ *domain.Stats) bool {
		return s.Passed
	},
	"pass-ranked": func(s *domain.Score, _ *domain.Stats) bool {
		return s.Passed && s.Beatmap != nil && s.Beatmap.Status.AwardsPerformance()
	},
	"full-combo": func(s *domain.Score, _ *domain.Stats) bool {
		return s.Passed && s.FullCombo
	},
	"perfect": func(s *domain.Score, _ *domain.Stats) bool {
		return s.Passed && s.CountMiss == 0 && s.Count50 == 0 && s.Count100 == 0
	},
	"combo-500":  comboAtLeast(500),
	"combo-750":  comboAtLeast(750),
	"combo-1000": comboAtLeast(1000),
	"combo-2000": comboAtLeast(2000),

	"stars-1": starsPassed(1),
	"stars-2": starsPassed(2),
	"stars-3": starsPassed(3),
	"stars-4": starsPassed(4),
	"stars-5": starsPassed(5),
	"stars-6": starsPassed(6),
	"stars-7": starsPassed(7),
	"stars-8": starsPassed(8),

	"plays-100":   playcountAtLeast(100),
	"plays-1000":  playcountAtLeast(1000),
	"plays-10000": playcountAtLeast(10000),

	"mod-hidden":     modUsed(domain.ModHidden),
	"mod-hardrock":   modUsed(domain.ModHardRock),
	"mod-doubletime": modUsed(domain.ModDoubleTime),
}

func comboAtLeast(n int) Predicate {
	return func(s *domain.Score, _ *domain.Stats) bool {
		return s.Passed && s.MaxCombo >= n
	}
}

func starsPassed(n int) Predicate {
	return func(s *domain.Score, _ *domain.Stats) bool {
		if !s.Passed || s.Beatmap == nil {
			return false
		}
		sr := s.Beatmap.Difficulty()
		return sr >= float64(n) && sr < float64(n+1)
	}
}

func playcountAtLeast(n int64) Predicate {
	return func(_ *domain.Score, st *domain.Stats) bool {
		return st != nil && st.Playcount >= n
	}
}

func modUsed(mod domain.Mods) Predicate {
	return func(s *domain.Score, _ *domain.Stats) bool {
		return s.Passed && s.Mods&mod != 0
	}
}

// Evaluator binds the stored achievement rows to their compiled conditions.
type Evaluator struct {
	repo   *repository.AchievementRepository
	rows   []repository.AchievementRow
	logger zerolog.Logger
}

func NewEvaluator(repo *repository.AchievementRepository, logger zerolog.Logger) *Evaluator {
	return &Evaluator{repo: repo, logger: logger}
}

// Load reads the achievement rows once at startup. Rows whose condition name
// is unknown are logged and skipped.
func (e *Evaluator) Load(ctx context.Context) error {
	rows, err := e.repo.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to load achievements: %w", err)
	}

	e.rows = e.rows[:0]
	for _, row := range rows {
		if _, ok := predicates[row.Predicate]; !ok {
			e.logger.Warn().
				Int64("achievement_id", row.ID).
				Str("predicate", row.Predicate).
				Msg("unknown achievement condition, row disabled")
			continue
		}
		e.rows = append(e.rows, row)
	}

	e.logger.Info().Int("count", len(e.rows)).Msg("achievements loaded")
	return nil
}

// Check evaluates every condition against the score and unlocks the ones the
// player does not hold yet. Returns the newly unlocked rows.
func (e *Evaluator) Check(ctx context.Context, s *domain.Score, st *domain.Stats) ([]repository.AchievementRow, error) {
	if len(e.rows) == 0 {
		return nil, nil
	}

	unlocked, err := e.repo.UnlockedIDs(ctx, s.UserID)
	if err != nil {
		return nil, err
	}

	var earned []repository.AchievementRow
	for _, row := range e.rows {
		if unlocked[row.ID] {
			continue
		}
		if !predicates[row.Predicate](s, st) {
			continue
		}
		if err := e.repo.Unlock(ctx, s.UserID, row.ID); err != nil {
			return nil, err
		}
		earned = append(earned, row)
	}
	return earned, nil
}

// PanelString renders newly earned achievements the way submission response
// panels expect them, slash-separated.
func PanelString(rows []repository.AchievementRow) string {
	parts := make([]string, len(rows))
	for i, row := range rows {
		parts[i] = row.FullName()
	}
	return strings.Join(parts, "/")
}
