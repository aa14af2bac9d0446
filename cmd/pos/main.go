package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"

	"medeasy/pos/internal/config"
	"medeasy/pos/internal/logging"
	"medeasy/pos/internal/posclient"
	"medeasy/pos/internal/resilience"
	"medeasy/pos/internal/salecart"
	"medeasy/pos/internal/session"
)

func main() {
	cfg, err := config.LoadClient()
	logger := logging.NewWithWriter(os.Stderr, cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if cfg.MetricsAddr != "" {
		srv := metricsServer(cfg.MetricsAddr)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("metrics server stopped")
			}
		}()
		defer srv.Close()
	}

	breaker := resilience.NewBreaker("medeasy-api", 5, 0).WithLogger(logger)
	client := posclient.New(cfg.APIURL, session.NewFileStore(cfg.SessionFile),
		posclient.WithBreaker(breaker),
		posclient.WithTimeout(cfg.HTTPTimeout),
		posclient.WithLogger(logger),
	)
	sh := &shell{
		client:  client,
		cart:    salecart.New(client, client, salecart.WithLogger(logger), salecart.WithResetGrace(cfg.ResetGrace)),
		out:     os.Stdout,
		timeout: cfg.HTTPTimeout,
		logger:  logger,
	}
	if err := sh.run(ctx, os.Stdin); err != nil && ctx.Err() == nil {
		logger.Fatal().Err(err).Msg("till stopped")
	}
}
