package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"score-server/internal/domain"
)

type StatsRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewStatsRepository(db *sql.DB, logger zerolog.Logger) *StatsRepository {
	return &StatsRepository{db: db, logger: logger}
}

// Get fetches the player's stats row for one mode/variant, creating a zeroed
// row on first play.
func (r *StatsRepository) Get(ctx context.Context, userID int64, mode domain.Mode, variant domain.Variant) (*domain.Stats, error) {
	st := &domain.Stats{UserID: userID, Mode: mode, Variant: variant}

	err := r.db.QueryRowContext(ctx,
		`SELECT ranked_score, total_score, pp, accuracy, playcount, max_combo,
			total_hits
		FROM user_stats WHERE user_id = ? AND mode = ? AND variant = ? LIMIT 1`,
		userID, mode, variant,
	).Scan(
		&st.RankedScore, &st.TotalScore, &st.PP, &st.Accuracy, &st.Playcount,
		&st.MaxCombo, &st.TotalHits,
	)
	if err == sql.ErrNoRows {
		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO user_stats (user_id, mode, variant) VALUES (?, ?, ?)`,
			userID, mode, variant,
		); err != nil {
			return nil, fmt.Errorf("failed to create stats row: %w", err)
		}
		r.logger.Debug().Int64("user_id", userID).Msg("created empty stats row")
		return st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stats: %w", err)
	}
	return st, nil
}

func (r *StatsRepository) Save(ctx context.Context, st *domain.Stats) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE user_stats SET ranked_score = ?, total_score = ?, pp = ?,
			accuracy = ?, playcount = ?, max_combo = ?, total_hits = ?
		WHERE user_id = ? AND mode = ? AND variant = ?`,
		st.RankedScore, st.TotalScore, st.PP, st.Accuracy, st.Playcount,
		st.MaxCombo, st.TotalHits, st.UserID, st.Mode, st.Variant,
	)
	if err != nil {
		return fmt.Errorf("failed to save stats: %w", err)
	}
	return nil
}
