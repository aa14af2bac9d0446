package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	redis "github.com/redis/go-redis/v9"

	"medeasy/pos/internal/api"
	"medeasy/pos/internal/config"
	"medeasy/pos/internal/database"
	"medeasy/pos/internal/logging"
	"medeasy/pos/internal/migrations"
	"medeasy/pos/internal/seed"
)

func main() {
	cfg, err := config.Load()
	logger := logging.New(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer db.Close()

	if err := migrations.Run(db); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}
	if cfg.SeedCatalog != "" {
		seed.LoadMedicines(ctx, db, cfg.SeedCatalog, logger)
	}
	created, err := seed.EnsureAdmin(ctx, db, cfg.AdminUsername, cfg.AdminPassword)
	if err != nil {
		logger.Fatal().Err(err).Msg("bootstrap admin user")
	}
	if created {
		logger.Info().Str("username", cfg.AdminUsername).Msg("created initial admin user")
	}

	opts := []api.Option{api.WithLogger(logger)}
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse redis url")
		}
		redisClient := redis.NewClient(redisOpts)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("ping redis")
		}
		opts = append(opts, api.WithRedis(redisClient))
	} else {
		logger.Warn().Msg("REDIS_URL not set, idempotency keys are not enforced")
	}

	handler := api.New(db, cfg, opts...)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown failed")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("MedEasy POS server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}
