package constants

import "time"

const (
	BeatmapCacheTTL       = 120 * time.Minute
	BeatmapCacheLimit     = 1000
	LeaderboardCacheTTL   = 240 * time.Minute
	LeaderboardCacheLimit = 100_000
	StatsCacheTTL         = 240 * time.Minute
	StatsCacheLimit       = 300
)

const (
	ExternalAPITimeout = 10 * time.Second
	DatabaseTimeout    = 5 * time.Second
	RequestTimeout     = 30 * time.Second
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	LeaderboardSize = 100

	// Client protocol version accepted by the leaderboard endpoint. Anything
	// else is an outdated or tampered client.
	ClientProtocolVersion = 4
)

// Performance aggregation. The bonus constants bound a monotone series and
// must be kept bit-exact; do not re-derive them.
const (
	PerformanceWeightBase = 0.95
	PerformanceTopCount   = 100

	BonusPerformanceMult = 416.6667
	BonusPerformanceBase = 0.9994
	BonusPerformanceCap  = 25_397
)

const (
	RedisConnectTimeout    = 5 * time.Second
	BusReconnectBaseDelay  = 500 * time.Millisecond
	BusReconnectMaxDelay   = 30 * time.Second
	BeatmapAPIRequestsPerS = 10
)
