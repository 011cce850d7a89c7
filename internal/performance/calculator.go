// Package performance wraps the external performance-point calculator. The
// calculator is best-effort: callers degrade a failed calculation to zero
// rather than aborting a submission.
package performance

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"score-server/internal/config"
	"score-server/internal/domain"
)

// Calculator produces the scalar ranking metric for a play from its gameplay
// counters and map difficulty.
type Calculator interface {
	Calculate(ctx context.Context, s *domain.Score) (pp float64, sr float64, err error)
}

type request struct {
	BeatmapMD5 string  `json:"beatmap_md5"`
	Mode       int     `json:"mode"`
	Variant    int     `json:"variant"`
	Mods       uint32  `json:"mods"`
	MaxCombo   int     `json:"max_combo"`
	Count300   int     `json:"count_300"`
	Count100   int     `json:"count_100"`
	Count50    int     `json:"count_50"`
	CountGeki  int     `json:"count_geki"`
	CountKatu  int     `json:"count_katu"`
	CountMiss  int     `json:"count_miss"`
	Accuracy   float64 `json:"accuracy"`
	Score      int64   `json:"score"`
}

type response struct {
	PP    float64 `json:"pp"`
	Stars float64 `json:"stars"`
}

// HTTPCalculator calls the calculator service over HTTP.
type HTTPCalculator struct {
	url    string
	client *fasthttp.Client
	logger zerolog.Logger
}

func NewHTTPCalculator(cfg *config.Config, logger zerolog.Logger) *HTTPCalculator {
	return &HTTPCalculator{
		url: cfg.PerformanceURL,
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		logger: logger,
	}
}

func (c *HTTPCalculator) Calculate(ctx context.Context, s *domain.Score) (float64, float64, error) {
	if c.url == "" {
		return 0, 0, fmt.Errorf("performance calculator URL not configured")
	}

	body, err := json.Marshal(request{
		BeatmapMD5: s.Beatmap.MD5,
		Mode:       int(s.Mode),
		Variant:    int(s.Variant),
		Mods:       uint32(s.Mods),
		MaxCombo:   s.MaxCombo,
		Count300:   s.Count300,
		Count100:   s.Count100,
		Count50:    s.Count50,
		CountGeki:  s.CountGeki,
		CountKatu:  s.CountKatu,
		CountMiss:  s.CountMiss,
		Accuracy:   s.Accuracy,
		Score:      s.Score,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to marshal calculator request: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(10 * time.Second)
	}
	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return 0, 0, fmt.Errorf("failed to call performance calculator: %w", err)
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		return 0, 0, fmt.Errorf("performance calculator returned status %d", resp.StatusCode())
	}

	var out response
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return 0, 0, fmt.Errorf("failed to decode calculator response: %w", err)
	}

	c.logger.Debug().
		Int64("user_id", s.UserID).
		Float64("pp", out.PP).
		Float64("stars", out.Stars).
		Msg("performance calculated")
	return out.PP, out.Stars, nil
}
