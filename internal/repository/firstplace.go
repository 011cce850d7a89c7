package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"score-server/internal/domain"
)

type FirstPlaceRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewFirstPlaceRepository(db *sql.DB, logger zerolog.Logger) *FirstPlaceRepository {
	return &FirstPlaceRepository{db: db, logger: logger}
}

// Replace swaps the recorded first place for the score's beatmap variant.
func (r *FirstPlaceRepository) Replace(ctx context.Context, s *domain.Score) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO first_places (beatmap_md5, mode, variant, score_id,
			user_id, pp, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (beatmap_md5, mode, variant) DO UPDATE SET
			score_id = excluded.score_id,
			user_id = excluded.user_id,
			pp = excluded.pp,
			timestamp = excluded.timestamp`,
		s.Beatmap.MD5, s.Mode, s.Variant, s.ID, s.UserID, s.PP, s.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to replace first place: %w", err)
	}

	r.logger.Debug().
		Int64("score_id", s.ID).
		Str("beatmap_md5", s.Beatmap.MD5).
		Msg("first place replaced")
	return nil
}
