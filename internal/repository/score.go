package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"score-server/internal/domain"
)

// scoreColumns is every column scanScore expects, in order, with the
// submitter's username joined in.
const scoreColumns = `
	s.id, s.beatmap_md5, s.user_id, s.score, s.max_combo, s.full_combo,
	s.mods, s.count_300, s.count_100, s.count_50, s.count_katu, s.count_geki,
	s.count_miss, s.timestamp, s.mode, s.variant, s.completed, s.accuracy,
	s.pp, s.playtime, u.username`

type ScoreRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewScoreRepository(db *sql.DB, logger zerolog.Logger) *ScoreRepository {
	return &ScoreRepository{db: db, logger: logger}
}

// metricColumn is the column leaderboards rank by for the variant.
func metricColumn(variant domain.Variant) string {
	if variant.UsesPerformanceRanking() {
		return "pp"
	}
	return "score"
}

func scanScore(row interface{ Scan(...any) error }) (*domain.Score, error) {
	var (
		s         domain.Score
		md5       string
		fullCombo int
	)
	err := row.Scan(
		&s.ID, &md5, &s.UserID, &s.Score, &s.MaxCombo, &fullCombo,
		&s.Mods, &s.Count300, &s.Count100, &s.Count50, &s.CountKatu,
		&s.CountGeki, &s.CountMiss, &s.Timestamp, &s.Mode, &s.Variant,
		&s.Completed, &s.Accuracy, &s.PP, &s.PlayTime, &s.Username,
	)
	if err != nil {
		return nil, err
	}

	s.Beatmap = &domain.Beatmap{MD5: md5}
	s.FullCombo = fullCombo != 0
	s.Passed = s.Completed.Finished()
	s.Quit = s.Completed == domain.CompletedQuit
	s.Grade = "X"
	return &s, nil
}

// Insert persists the score row and assigns its surrogate id.
func (r *ScoreRepository) Insert(ctx context.Context, s *domain.Score) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO scores (beatmap_md5, user_id, score, max_combo, full_combo,
			mods, count_300, count_100, count_50, count_katu, count_geki,
			count_miss, timestamp, mode, variant, completed, accuracy, pp, playtime)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Beatmap.MD5, s.UserID, s.Score, s.MaxCombo, s.FullCombo,
		s.Mods, s.Count300, s.Count100, s.Count50, s.CountKatu, s.CountGeki,
		s.CountMiss, s.Timestamp, s.Mode, s.Variant, s.Completed, s.Accuracy,
		s.PP, s.PlayTime,
	)
	if err != nil {
		return fmt.Errorf("failed to insert score: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read score id: %w", err)
	}
	s.ID = id

	r.logger.Debug().Int64("score_id", id).Int64("user_id", s.UserID).Msg("score inserted")
	return nil
}

func (r *ScoreRepository) GetByID(ctx context.Context, id int64) (*domain.Score, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT`+scoreColumns+`
		FROM scores s INNER JOIN users u ON s.user_id = u.id
		WHERE s.id = ? LIMIT 1`, id)

	s, err := scanScore(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch score %d: %w", id, err)
	}
	return s, nil
}

// DuplicateExists reports whether an identical submission is already
// persisted.
func (r *ScoreRepository) DuplicateExists(ctx context.Context, userID int64, md5 string, score int64, mode domain.Mode, mods domain.Mods) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM scores WHERE user_id = ? AND beatmap_md5 = ? AND
			score = ? AND mode = ? AND mods = ? LIMIT 1`,
		userID, md5, score, mode, mods,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check duplicate score: %w", err)
	}
	return true, nil
}

// UserBest returns the player's current BEST-classified score on the beatmap
// variant, or nil.
func (r *ScoreRepository) UserBest(ctx context.Context, userID int64, md5 string, mode domain.Mode, variant domain.Variant) (*domain.Score, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT`+scoreColumns+`
		FROM scores s INNER JOIN users u ON s.user_id = u.id
		WHERE s.user_id = ? AND s.beatmap_md5 = ? AND s.mode = ? AND
			s.variant = ? AND s.completed = ? LIMIT 1`,
		userID, md5, mode, variant, domain.CompletedBest)

	s, err := scanScore(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user best: %w", err)
	}
	return s, nil
}

// DemoteLowerBest demotes the player's existing BEST row on the beatmap
// variant to COMPLETE if its ranking metric is below value.
func (r *ScoreRepository) DemoteLowerBest(ctx context.Context, userID int64, md5 string, mode domain.Mode, variant domain.Variant, value float64) error {
	_, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE scores SET completed = ? WHERE user_id = ? AND
			beatmap_md5 = ? AND mode = ? AND variant = ? AND completed = ? AND
			%s < ?`, metricColumn(variant)),
		domain.CompletedComplete, userID, md5, mode, variant, domain.CompletedBest, value,
	)
	if err != nil {
		return fmt.Errorf("failed to demote best score: %w", err)
	}
	return nil
}

// HasBest reports whether a BEST row survives for the player on the beatmap
// variant.
func (r *ScoreRepository) HasBest(ctx context.Context, userID int64, md5 string, mode domain.Mode, variant domain.Variant) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM scores WHERE user_id = ? AND beatmap_md5 = ? AND
			mode = ? AND variant = ? AND completed = ? LIMIT 1`,
		userID, md5, mode, variant, domain.CompletedBest,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check best score: %w", err)
	}
	return true, nil
}

// CountBetterBests counts eligible players' BEST rows ranking above the
// given score: a strictly greater metric, or an equal metric with an earlier
// id. Placement is this plus one.
func (r *ScoreRepository) CountBetterBests(ctx context.Context, md5 string, mode domain.Mode, variant domain.Variant, value float64, scoreID int64) (int, error) {
	metric := metricColumn(variant)
	var count int
	err := r.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM scores s
			INNER JOIN users u ON s.user_id = u.id
			WHERE u.privileges & ? AND s.beatmap_md5 = ? AND s.mode = ? AND
				s.variant = ? AND s.completed = ? AND
				(s.%s > ? OR (s.%s = ? AND s.id < ?))`,
			metric, metric),
		domain.PrivPublic, md5, mode, variant, domain.CompletedBest, value, value, scoreID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count better scores: %w", err)
	}
	return count, nil
}

// LeaderboardFilter narrows a leaderboard query beyond the global scope.
type LeaderboardFilter struct {
	Country   string
	FriendIDs []int64
	Mods      *domain.Mods
}

// Bests fetches the top eligible BEST rows for one beatmap variant, ordered
// by ranking metric descending. Equal metrics order by score id ascending so
// the earlier submission ranks first. Also returns the total eligible count.
func (r *ScoreRepository) Bests(ctx context.Context, md5 string, mode domain.Mode, variant domain.Variant, limit int, filter *LeaderboardFilter) ([]*domain.Score, int, error) {
	where := []string{
		"u.privileges & ?", "s.beatmap_md5 = ?", "s.mode = ?",
		"s.variant = ?", "s.completed = ?",
	}
	args := []any{domain.PrivPublic, md5, mode, variant, domain.CompletedBest}

	if filter != nil {
		if filter.Country != "" {
			where = append(where, "u.country = ?")
			args = append(args, filter.Country)
		}
		if filter.Mods != nil {
			where = append(where, "s.mods = ?")
			args = append(args, *filter.Mods)
		}
		if filter.FriendIDs != nil {
			placeholders := strings.TrimSuffix(strings.Repeat("?,", len(filter.FriendIDs)), ",")
			where = append(where, fmt.Sprintf("s.user_id IN (%s)", placeholders))
			for _, id := range filter.FriendIDs {
				args = append(args, id)
			}
		}
	}

	cond := strings.Join(where, " AND ")

	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scores s INNER JOIN users u ON s.user_id = u.id WHERE `+cond,
		args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count leaderboard scores: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT%s
			FROM scores s INNER JOIN users u ON s.user_id = u.id
			WHERE %s ORDER BY s.%s DESC, s.id ASC LIMIT ?`,
			scoreColumns, cond, metricColumn(variant)),
		append(args, limit)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch leaderboard scores: %w", err)
	}
	defer rows.Close()

	var scores []*domain.Score
	for rows.Next() {
		s, err := scanScore(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan leaderboard score: %w", err)
		}
		scores = append(scores, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate leaderboard scores: %w", err)
	}
	return scores, total, nil
}

// TopBestValues fetches up to limit (accuracy, pp) pairs of the player's BEST
// scores on ranked/approved maps, pp descending. Feeds the weighted
// statistics recalculation.
func (r *ScoreRepository) TopBestValues(ctx context.Context, userID int64, mode domain.Mode, variant domain.Variant, limit int) ([][2]float64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT s.accuracy, s.pp FROM scores s
			INNER JOIN beatmaps b ON s.beatmap_md5 = b.beatmap_md5
			WHERE s.user_id = ? AND s.mode = ? AND s.variant = ? AND
				s.completed = ? AND b.ranked_status IN (?, ?)
			ORDER BY s.pp DESC LIMIT ?`,
		userID, mode, variant, domain.CompletedBest,
		domain.StatusRanked, domain.StatusApproved, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch top scores: %w", err)
	}
	defer rows.Close()

	var out [][2]float64
	for rows.Next() {
		var pair [2]float64
		if err := rows.Scan(&pair[0], &pair[1]); err != nil {
			return nil, fmt.Errorf("failed to scan top score: %w", err)
		}
		out = append(out, pair)
	}
	return out, rows.Err()
}

// CountQualifyingBests counts the player's BEST scores on ranked/approved
// maps, capped so the bonus series stays bounded.
func (r *ScoreRepository) CountQualifyingBests(ctx context.Context, userID int64, mode domain.Mode, variant domain.Variant, cap int) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM (
			SELECT 1 FROM scores s
			INNER JOIN beatmaps b ON s.beatmap_md5 = b.beatmap_md5
			WHERE s.user_id = ? AND s.mode = ? AND s.variant = ? AND
				s.completed = ? AND b.ranked_status IN (?, ?)
			LIMIT ?
		)`,
		userID, mode, variant, domain.CompletedBest,
		domain.StatusRanked, domain.StatusApproved, cap,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count qualifying scores: %w", err)
	}
	return count, nil
}

// MaxCombo returns the highest combo across the player's completed scores on
// the mode/variant.
func (r *ScoreRepository) MaxCombo(ctx context.Context, userID int64, mode domain.Mode, variant domain.Variant) (int, error) {
	var combo int
	err := r.db.QueryRowContext(ctx,
		`SELECT max_combo FROM scores WHERE user_id = ? AND mode = ? AND
			variant = ? AND completed = ? ORDER BY max_combo DESC LIMIT 1`,
		userID, mode, variant, domain.CompletedBest,
	).Scan(&combo)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to fetch max combo: %w", err)
	}
	return combo, nil
}

// UpdatePP persists a recomputed performance value for one score.
func (r *ScoreRepository) UpdatePP(ctx context.Context, scoreID int64, pp float64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE scores SET pp = ? WHERE id = ?`, pp, scoreID)
	if err != nil {
		return fmt.Errorf("failed to update score pp: %w", err)
	}
	return nil
}
