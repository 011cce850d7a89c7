package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	DBPath     string
	RedisAddr  string
	ServerPort string
	LogLevel   string

	ServerName   string
	ServerDomain string
	DataDir      string

	PerformanceURL string
	BeatmapAPIURL  string
	BeatmapAPIKey  string

	// Whether third-party clients are allowed to submit without the stock
	// client signature header.
	CustomClients bool

	// Performance caps per scoring variant, indexed by mode. A submission
	// above the cap by an unverified player flags the account.
	PPCapVanilla   []float64
	PPCapRelax     []float64
	PPCapAutopilot []float64
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		DBPath:         getEnv("DB_PATH", "scores.db"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		ServerName:     getEnv("SERVER_NAME", "score-server"),
		ServerDomain:   getEnv("SERVER_DOMAIN", "http://localhost"),
		DataDir:        getEnv("DATA_DIR", ".data"),
		PerformanceURL: getEnv("PERFORMANCE_URL", ""),
		BeatmapAPIURL:  getEnv("BEATMAP_API_URL", ""),
		BeatmapAPIKey:  getEnv("BEATMAP_API_KEY", ""),
		CustomClients:  getEnv("CUSTOM_CLIENTS", "false") == "true",
		PPCapVanilla:   getFloats("PP_CAP_VANILLA", []float64{700, 800, 800, 1200}),
		PPCapRelax:     getFloats("PP_CAP_RELAX", []float64{1200, 1200, 1200, 1200}),
		PPCapAutopilot: getFloats("PP_CAP_AUTOPILOT", []float64{1200, 1200, 1200, 1200}),
	}

	if len(cfg.PPCapVanilla) != 4 {
		return nil, fmt.Errorf("PP_CAP_VANILLA expects 4 values, got %d", len(cfg.PPCapVanilla))
	}

	logger.Info().
		Str("db_path", cfg.DBPath).
		Str("redis_addr", cfg.RedisAddr).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Str("data_dir", cfg.DataDir).
		Msg("configuration loaded")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getFloats(key string, fallback []float64) []float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	parts := strings.Split(v, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return fallback
		}
		out = append(out, f)
	}
	return out
}

var Module = fx.Provide(Load)
