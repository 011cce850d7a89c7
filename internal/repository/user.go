package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"score-server/internal/domain"
)

type UserRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewUserRepository(db *sql.DB, logger zerolog.Logger) *UserRepository {
	return &UserRepository{db: db, logger: logger}
}

// NameRow is one users row as the identity caches consume it.
type NameRow struct {
	ID       int64
	Username string
	SafeName string
}

func (r *UserRepository) AllNames(ctx context.Context) ([]NameRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, username, username_safe FROM users`)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch usernames: %w", err)
	}
	defer rows.Close()

	var out []NameRow
	for rows.Next() {
		var n NameRow
		if err := rows.Scan(&n.ID, &n.Username, &n.SafeName); err != nil {
			return nil, fmt.Errorf("failed to scan username row: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *UserRepository) NameByID(ctx context.Context, id int64) (*NameRow, error) {
	var n NameRow
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, username_safe FROM users WHERE id = ? LIMIT 1`, id,
	).Scan(&n.ID, &n.Username, &n.SafeName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch username: %w", err)
	}
	return &n, nil
}

func (r *UserRepository) NameBySafe(ctx context.Context, safeName string) (*NameRow, error) {
	var n NameRow
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, username_safe FROM users WHERE username_safe = ? LIMIT 1`,
		safeName,
	).Scan(&n.ID, &n.Username, &n.SafeName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch username: %w", err)
	}
	return &n, nil
}

func (r *UserRepository) AllPrivileges(ctx context.Context) (map[int64]domain.Privileges, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, privileges FROM users`)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch privileges: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]domain.Privileges)
	for rows.Next() {
		var (
			id    int64
			privs domain.Privileges
		)
		if err := rows.Scan(&id, &privs); err != nil {
			return nil, fmt.Errorf("failed to scan privilege row: %w", err)
		}
		out[id] = privs
	}
	return out, rows.Err()
}

func (r *UserRepository) PrivilegesByID(ctx context.Context, id int64) (domain.Privileges, bool, error) {
	var privs domain.Privileges
	err := r.db.QueryRowContext(ctx,
		`SELECT privileges FROM users WHERE id = ? LIMIT 1`, id,
	).Scan(&privs)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to fetch privileges: %w", err)
	}
	return privs, true, nil
}

func (r *UserRepository) PasswordHashByID(ctx context.Context, id int64) (string, bool, error) {
	var hash string
	err := r.db.QueryRowContext(ctx,
		`SELECT password_hash FROM users WHERE id = ? LIMIT 1`, id,
	).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to fetch password hash: %w", err)
	}
	return hash, true, nil
}

func (r *UserRepository) AllClanTags(ctx context.Context) (map[int64]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT uc.user_id, c.tag FROM user_clans uc
		INNER JOIN clans c ON uc.clan_id = c.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch clan tags: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]string)
	for rows.Next() {
		var (
			id  int64
			tag string
		)
		if err := rows.Scan(&id, &tag); err != nil {
			return nil, fmt.Errorf("failed to scan clan row: %w", err)
		}
		out[id] = tag
	}
	return out, rows.Err()
}

func (r *UserRepository) ClanTagByID(ctx context.Context, id int64) (string, bool, error) {
	var tag string
	err := r.db.QueryRowContext(ctx,
		`SELECT c.tag FROM clans c
		INNER JOIN user_clans uc ON c.id = uc.clan_id
		WHERE uc.user_id = ? LIMIT 1`, id,
	).Scan(&tag)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to fetch clan tag: %w", err)
	}
	return tag, true, nil
}

func (r *UserRepository) FriendIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT friend_id FROM friends WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch friends: %w", err)
	}
	defer rows.Close()

	ids := []int64{userID} // the requester always sees their own score
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan friend row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *UserRepository) CountryByID(ctx context.Context, id int64) (string, error) {
	var country string
	err := r.db.QueryRowContext(ctx,
		`SELECT country FROM users WHERE id = ? LIMIT 1`, id,
	).Scan(&country)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to fetch country: %w", err)
	}
	return country, nil
}

// Restrict strips public visibility from the account and records the reason.
func (r *UserRepository) Restrict(ctx context.Context, id int64, reason string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET privileges = privileges & ?, ban_datetime = ?,
			ban_reason = ? WHERE id = ?`,
		^int64(domain.PrivPublic), time.Now().Unix(), reason, id,
	)
	if err != nil {
		return fmt.Errorf("failed to restrict user: %w", err)
	}

	r.logger.Warn().Int64("user_id", id).Str("reason", reason).Msg("user restricted")
	return nil
}

// HasBadge reports whether the account carries the named badge (e.g. the
// verified badge exempting it from performance caps).
func (r *UserRepository) HasBadge(ctx context.Context, id int64, badge string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM user_badges WHERE user_id = ? AND badge = ? LIMIT 1`,
		id, badge,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check badge: %w", err)
	}
	return true, nil
}
