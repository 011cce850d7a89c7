package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// DeadLetterRepository records bus messages whose handler failed permanently,
// so operators can replay or alert on them instead of losing them silently.
type DeadLetterRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewDeadLetterRepository(db *sql.DB, logger zerolog.Logger) *DeadLetterRepository {
	return &DeadLetterRepository{db: db, logger: logger}
}

func (r *DeadLetterRepository) Record(ctx context.Context, channel string, payload []byte, handlerErr error) error {
	id, err := gonanoid.New()
	if err != nil {
		return fmt.Errorf("failed to generate nanoid: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO bus_dead_letters (id, channel, payload, error, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		id, channel, payload, handlerErr.Error(), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to record dead letter: %w", err)
	}

	r.logger.Error().
		Str("dead_letter_id", id).
		Str("channel", channel).
		Err(handlerErr).
		Msg("bus handler failed, message dead-lettered")
	return nil
}
