package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tyrowin/gohub/internal/logging"
	"github.com/Tyrowin/gohub/internal/server"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := server.NewConfigFromEnv()

	rootCmd := &cobra.Command{
		Use:           "gohub",
		Short:         "Real-time channel broadcasting over WebSockets",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), *cfg)
		},
	}
	cfg.BindFlags(rootCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("GoHub exited with error")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg server.Config) error {
	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return err
	}
	defer func() {
		if err := logger.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing log file")
		}
	}()

	logger.Info().
		Str("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Int("outbox_size", cfg.Hub.OutboxSize).
		Bool("echo_to_sender", cfg.Hub.EchoToSender).
		Msg("Starting GoHub server...")

	srv := server.NewServer(cfg, server.WithLogger(logger.Logger))
	httpServer := server.CreateServer(cfg.Port, srv.Routes())

	if err := serve(ctx, srv, httpServer, cfg.DrainTimeout, logger.Logger); err != nil {
		return err
	}
	logger.Info().Msg("GoHub stopped")
	return nil
}

// serve runs httpServer until ctx is done or the listener fails, then stops
// the listener and shuts srv down exactly once, each bounded by drainTimeout.
func serve(ctx context.Context, srv *server.Server, httpServer *http.Server, drainTimeout time.Duration, logger zerolog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.StartServer(httpServer)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutdown signal received")

		httpErr := server.ShutdownServer(httpServer, drainTimeout)

		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		return errors.Join(httpErr, srv.Shutdown(drainCtx))
	})
	return g.Wait()
}
