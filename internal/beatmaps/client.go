package beatmaps

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"

	"score-server/internal/config"
	"score-server/internal/constants"
	"score-server/internal/domain"
)

// APIClient fetches beatmap metadata from the upstream metadata provider.
// Requests are rate limited; the provider imposes its own quota.
type APIClient struct {
	url     string
	key     string
	client  *fasthttp.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

func NewAPIClient(cfg *config.Config, logger zerolog.Logger) *APIClient {
	return &APIClient{
		url: cfg.BeatmapAPIURL,
		key: cfg.BeatmapAPIKey,
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		limiter: rate.NewLimiter(rate.Limit(constants.BeatmapAPIRequestsPerS), constants.BeatmapAPIRequestsPerS),
		logger:  logger,
	}
}

type apiBeatmap struct {
	BeatmapID  int64   `json:"beatmap_id"`
	SetID      int64   `json:"beatmapset_id"`
	MD5        string  `json:"file_md5"`
	SongName   string  `json:"song_name"`
	AR         float64 `json:"diff_approach"`
	OD         float64 `json:"diff_overall"`
	Mode       int     `json:"mode"`
	MaxCombo   int     `json:"max_combo"`
	HitLength  int     `json:"hit_length"`
	BPM        int     `json:"bpm"`
	Ranked     int     `json:"ranked"`
	LastUpdate int64   `json:"last_update"`
	Difficulty float64 `json:"difficultyrating"`
}

// FromMD5 fetches metadata for one beatmap hash. A nil result with nil error
// means the provider does not know the map.
func (c *APIClient) FromMD5(ctx context.Context, md5 string) (*domain.Beatmap, error) {
	if c.url == "" {
		return nil, fmt.Errorf("beatmap API URL not configured")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("failed to wait for rate limiter: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(fmt.Sprintf("%s/get_beatmaps?k=%s&h=%s", c.url, c.key, md5))
	req.Header.SetMethod(fasthttp.MethodGet)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(constants.ExternalAPITimeout)
	}
	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("failed to fetch beatmap metadata: %w", err)
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("beatmap API returned status %d", resp.StatusCode())
	}

	var found []apiBeatmap
	if err := json.Unmarshal(resp.Body(), &found); err != nil {
		return nil, fmt.Errorf("failed to decode beatmap metadata: %w", err)
	}
	if len(found) == 0 {
		return nil, nil
	}

	ab := found[0]
	b := &domain.Beatmap{
		ID:         ab.BeatmapID,
		SetID:      ab.SetID,
		MD5:        ab.MD5,
		SongName:   ab.SongName,
		AR:         ab.AR,
		OD:         ab.OD,
		Mode:       domain.Mode(ab.Mode),
		MaxCombo:   ab.MaxCombo,
		HitLength:  ab.HitLength,
		BPM:        ab.BPM,
		Rating:     10,
		Status:     domain.RankedStatus(ab.Ranked),
		LastUpdate: ab.LastUpdate,
	}
	switch b.Mode {
	case domain.ModeTaiko:
		b.DifficultyTaiko = ab.Difficulty
	case domain.ModeCatch:
		b.DifficultyCatch = ab.Difficulty
	case domain.ModeMania:
		b.DifficultyMania = ab.Difficulty
	default:
		b.DifficultySTD = ab.Difficulty
	}

	c.logger.Debug().Str("beatmap_md5", md5).Int64("beatmap_id", b.ID).Msg("beatmap fetched from API")
	return b, nil
}
