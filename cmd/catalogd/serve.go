package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/ranmori/anidb-catalog-client/internal/config"
	"github.com/ranmori/anidb-catalog-client/internal/server"
	"github.com/ranmori/anidb-catalog-client/pkg/anidb"
	"github.com/ranmori/anidb-catalog-client/pkg/catalog"
	"github.com/ranmori/anidb-catalog-client/pkg/logging"
	"github.com/ranmori/anidb-catalog-client/pkg/titles"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the catalog HTTP daemon",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.Setup(logging.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		return errors.Wrapf(err, "failed to connect to Redis at %s", cfg.RedisAddr)
	}
	logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")

	// Search degrades to an empty index when the dataset is missing;
	// direct lookups stay fully functional.
	var index *titles.Index
	if cfg.TitlesPath != "" {
		index, err = titles.Load(cfg.TitlesPath, logger)
		if err != nil {
			logger.Warn().Err(err).Str("path", cfg.TitlesPath).
				Msg("title dataset unavailable, search disabled")
			index = titles.Empty(logger)
		}
	} else {
		logger.Warn().Msg("no title dataset configured, search disabled")
		index = titles.Empty(logger)
	}

	source := anidb.NewSource(cfg.ClientName, cfg.ClientVersion)

	client, err := catalog.New(catalog.Config{
		Redis:          redisClient,
		Source:         source,
		MinInterval:    cfg.MinInterval,
		OrderingDelay:  cfg.OrderingDelay,
		RequestTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create catalog client")
	}

	srv := server.New(client, index, logger)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("starting catalog daemon")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "server failed")
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown failed")
	}

	return redisClient.Close()
}
