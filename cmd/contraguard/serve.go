package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	httpapi "contraguard/internal/interfaces/http"
	"contraguard/internal/stream"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the long-lived decision core service",
		Long:  "Starts the operational HTTP server, the mark price stream and the safety guard, and serves until interrupted.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.restorePositions(ctx); err != nil {
		return err
	}

	server := httpapi.NewServer(cfg.Server, httpapi.Deps{
		Metrics: a.metrics,
		Safety:  a.safety,
		Manager: a.manager,
		Tracker: a.tracker,
	})
	a.engine.AttachDecisionLog(server)

	streamCfg := cfg.Stream
	streamCfg.Assets = cfg.Assets
	ticker := stream.NewTicker(streamCfg, func(mark stream.MarkPrice) {
		a.engine.ObserveMark(mark.Asset, mark.Price)
		a.metrics.RecordMark(mark.Asset, mark.Price)
	})

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()
	go func() {
		if err := ticker.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("mark price feed stopped")
		}
	}()

	log.Info().
		Str("version", version).
		Strs("assets", cfg.Assets).
		Str("safety", a.safety.State().String()).
		Msg("decision core serving")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err = <-errCh:
		log.Error().Err(err).Msg("http server failed")
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Error().Err(shutdownErr).Msg("http shutdown failed")
	}

	a.persistPositions(shutdownCtx)
	return err
}
