package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"score-server/internal/domain"
)

type BeatmapRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewBeatmapRepository(db *sql.DB, logger zerolog.Logger) *BeatmapRepository {
	return &BeatmapRepository{db: db, logger: logger}
}

func (r *BeatmapRepository) GetByMD5(ctx context.Context, md5 string) (*domain.Beatmap, error) {
	var (
		b      domain.Beatmap
		frozen int
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT beatmap_id, beatmapset_id, beatmap_md5, song_name, ar, od,
			mode, max_combo, hit_length, bpm, rating, playcount, passcount,
			ranked_status, status_frozen, last_update, difficulty_std,
			difficulty_taiko, difficulty_ctb, difficulty_mania
		FROM beatmaps WHERE beatmap_md5 = ? LIMIT 1`, md5,
	).Scan(
		&b.ID, &b.SetID, &b.MD5, &b.SongName, &b.AR, &b.OD,
		&b.Mode, &b.MaxCombo, &b.HitLength, &b.BPM, &b.Rating, &b.Playcount,
		&b.Passcount, &b.Status, &frozen, &b.LastUpdate, &b.DifficultySTD,
		&b.DifficultyTaiko, &b.DifficultyCatch, &b.DifficultyMania,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch beatmap: %w", err)
	}

	b.StatusFrozen = frozen != 0
	return &b, nil
}

func (r *BeatmapRepository) Upsert(ctx context.Context, b *domain.Beatmap) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO beatmaps (beatmap_md5, beatmap_id, beatmapset_id,
			song_name, ar, od, mode, max_combo, hit_length, bpm, rating,
			playcount, passcount, ranked_status, status_frozen, last_update,
			difficulty_std, difficulty_taiko, difficulty_ctb, difficulty_mania)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (beatmap_md5) DO UPDATE SET
			song_name = excluded.song_name,
			ranked_status = excluded.ranked_status,
			last_update = excluded.last_update,
			rating = excluded.rating`,
		b.MD5, b.ID, b.SetID, b.SongName, b.AR, b.OD, b.Mode, b.MaxCombo,
		b.HitLength, b.BPM, b.Rating, b.Playcount, b.Passcount, b.Status,
		b.StatusFrozen, b.LastUpdate, b.DifficultySTD, b.DifficultyTaiko,
		b.DifficultyCatch, b.DifficultyMania,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert beatmap: %w", err)
	}
	return nil
}

// IncrementPlaycount bumps the play counter, and the pass counter when the
// play passed.
func (r *BeatmapRepository) IncrementPlaycount(ctx context.Context, md5 string, passed bool) error {
	pass := 0
	if passed {
		pass = 1
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE beatmaps SET playcount = playcount + 1, passcount = passcount + ?
		WHERE beatmap_md5 = ?`, pass, md5)
	if err != nil {
		return fmt.Errorf("failed to increment playcount: %w", err)
	}
	return nil
}
