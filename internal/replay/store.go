// Package replay persists raw replay files on the local filesystem, one
// directory per scoring variant.
package replay

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"score-server/internal/config"
	"score-server/internal/domain"
)

type Store struct {
	dataDir string
	logger  zerolog.Logger
}

func NewStore(cfg *config.Config, logger zerolog.Logger) (*Store, error) {
	st := &Store{dataDir: cfg.DataDir, logger: logger}

	for _, variant := range domain.Variants() {
		dir := filepath.Join(st.dataDir, "replays"+variant.ReplaySuffix())
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create replay directory %s: %w", dir, err)
		}
	}
	return st, nil
}

func (s *Store) path(scoreID int64, variant domain.Variant) string {
	return filepath.Join(
		s.dataDir,
		"replays"+variant.ReplaySuffix(),
		fmt.Sprintf("replay_%d.osr", scoreID),
	)
}

// Save writes the raw replay frames for a persisted score.
func (s *Store) Save(scoreID int64, variant domain.Variant, data []byte) error {
	path := s.path(scoreID, variant)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write replay %s: %w", path, err)
	}
	s.logger.Debug().
		Int64("score_id", scoreID).
		Int("bytes", len(data)).
		Msg("replay saved")
	return nil
}

// Load reads the raw replay frames back, nil when none was stored.
func (s *Store) Load(scoreID int64, variant domain.Variant) ([]byte, error) {
	data, err := os.ReadFile(s.path(scoreID, variant))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read replay for score %d: %w", scoreID, err)
	}
	return data, nil
}
