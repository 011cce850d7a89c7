package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"score-server/internal/achievement"
	"score-server/internal/bus"
	"score-server/internal/config"
	"score-server/internal/constants"
	fxmodules "score-server/internal/fx"
	"score-server/internal/identity"
	"score-server/internal/middleware"
	"score-server/internal/server"
)

func main() {
	fx.New(
		fxmodules.Module,
		fx.Invoke(runServer),
	).Run()
}

func runServer(
	lc fx.Lifecycle,
	scoreServer *server.ScoreServer,
	caches *identity.Caches,
	achievements *achievement.Evaluator,
	listener *bus.Listener,
	cfg *config.Config,
	db *sql.DB,
	redisClient *redis.Client,
	logger zerolog.Logger,
) {
	mux := http.NewServeMux()
	scoreServer.Register(mux)

	requestIDMiddleware := middleware.RequestID(logger)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: requestIDMiddleware(mux),
	}

	listenerCtx, stopListener := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// Identity caches must be warm before the first request; a failed
			// preload is fatal.
			if err := caches.Preload(ctx); err != nil {
				return err
			}
			if err := achievements.Load(ctx); err != nil {
				return err
			}

			go func() {
				if err := listener.Run(listenerCtx); err != nil && listenerCtx.Err() == nil {
					logger.Fatal().Err(err).Msg("bus listener failed")
				}
			}()

			go func() {
				logger.Info().Str("addr", srv.Addr).Msg("server starting")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal().Err(err).Msg("server failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()

			stopListener()

			if err := redisClient.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing redis connection")
			}
			if err := db.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing database connection")
			}

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("server shutdown failed")
				return err
			}
			logger.Info().Msg("server stopped gracefully")
			return nil
		},
	})
}
