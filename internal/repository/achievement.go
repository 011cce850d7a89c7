package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// AchievementRow binds an achievement to a named predicate from the compiled
// predicate table.
type AchievementRow struct {
	ID          int64
	File        string
	Name        string
	Description string
	Predicate   string
}

func (a AchievementRow) FullName() string {
	return fmt.Sprintf("%s+%s+%s", a.File, a.Name, a.Description)
}

type AchievementRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewAchievementRepository(db *sql.DB, logger zerolog.Logger) *AchievementRepository {
	return &AchievementRepository{db: db, logger: logger}
}

func (r *AchievementRepository) All(ctx context.Context) ([]AchievementRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, file, name, description, predicate FROM achievements`)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch achievements: %w", err)
	}
	defer rows.Close()

	var out []AchievementRow
	for rows.Next() {
		var a AchievementRow
		if err := rows.Scan(&a.ID, &a.File, &a.Name, &a.Description, &a.Predicate); err != nil {
			return nil, fmt.Errorf("failed to scan achievement row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AchievementRepository) UnlockedIDs(ctx context.Context, userID int64) (map[int64]bool, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT achievement_id FROM user_achievements WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unlocked achievements: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan unlocked achievement: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

func (r *AchievementRepository) Unlock(ctx context.Context, userID, achievementID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_achievements (user_id, achievement_id, unlocked_at)
		VALUES (?, ?, ?)`,
		userID, achievementID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to unlock achievement: %w", err)
	}
	return nil
}
