package fx

import (
	"go.uber.org/fx"

	"score-server/internal/achievement"
	"score-server/internal/beatmaps"
	"score-server/internal/bus"
	"score-server/internal/config"
	"score-server/internal/database"
	"score-server/internal/identity"
	"score-server/internal/leaderboard"
	"score-server/internal/logger"
	"score-server/internal/performance"
	"score-server/internal/replay"
	"score-server/internal/repository"
	"score-server/internal/server"
	"score-server/internal/stats"
	"score-server/internal/submission"
)

// ProvideCalculator binds the HTTP calculator to the interface the pipeline
// depends on.
func ProvideCalculator(c *performance.HTTPCalculator) performance.Calculator {
	return c
}

// ProvideRankSource binds the redis rank store to the aggregator's view of it.
func ProvideRankSource(r *bus.RankStore) stats.RankSource {
	return r
}

// The pipeline depends on narrow views of the bus types.
func ProvideNotifier(p *bus.Publisher) submission.Notifier   { return p }
func ProvideRankIndex(r *bus.RankStore) submission.RankIndex { return r }
func ProvidePresence(s *bus.Sessions) submission.Presence    { return s }

var Module = fx.Options(
	logger.Module,
	config.Module,
	fx.Provide(database.New),
	fx.Provide(bus.NewClient),
	// repos
	fx.Provide(repository.NewScoreRepository),
	fx.Provide(repository.NewBeatmapRepository),
	fx.Provide(repository.NewStatsRepository),
	fx.Provide(repository.NewUserRepository),
	fx.Provide(repository.NewFirstPlaceRepository),
	fx.Provide(repository.NewAchievementRepository),
	fx.Provide(repository.NewDeadLetterRepository),
	// external collaborators
	fx.Provide(performance.NewHTTPCalculator),
	fx.Provide(ProvideCalculator),
	fx.Provide(beatmaps.NewAPIClient),
	// bus
	fx.Provide(bus.NewPublisher),
	fx.Provide(bus.NewRankStore),
	fx.Provide(ProvideRankSource),
	fx.Provide(ProvideNotifier),
	fx.Provide(ProvideRankIndex),
	fx.Provide(ProvidePresence),
	fx.Provide(bus.NewSessions),
	fx.Provide(bus.NewListener),
	// core
	fx.Provide(identity.NewCaches),
	fx.Provide(beatmaps.NewSource),
	fx.Provide(leaderboard.NewStore),
	fx.Provide(stats.NewAggregator),
	fx.Provide(replay.NewStore),
	fx.Provide(achievement.NewEvaluator),
	fx.Provide(submission.NewPipeline),
	// server
	fx.Provide(server.NewScoreServer),
)
