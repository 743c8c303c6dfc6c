// Copyright 2025 SubSync Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/LeeDigitalWorks/subsync/pkg/config"
	"github.com/LeeDigitalWorks/subsync/pkg/debug"
	"github.com/LeeDigitalWorks/subsync/pkg/logger"
	"github.com/LeeDigitalWorks/subsync/pkg/subscription"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the subscription-link endpoint",
	Long: `Serve the subscriber-facing subscription endpoint on /link/{token}.

The endpoint fetches the upstream panel subscription, rewrites it for display
(expiry countdown, per-server hysteria2 links) and returns the re-encoded
blob. A debug listener exposes /metrics, /healthz and /readyz.`,
	Run: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configDir, "config")
	if err != nil {
		logger.Fatal().Err(err).Msg("load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler := subscription.NewHandler(subscription.Config{
		UpstreamURL:  cfg.Subscription.UpstreamURL,
		Names:        cfg.Subscription.Names,
		DefaultVmess: cfg.Subscription.DefaultVmess,
	}, linkServers(cfg))

	mux := http.NewServeMux()
	handler.Register(mux)

	srv := &http.Server{
		Addr:              cfg.Subscription.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := debug.Serve(ctx, cfg.Debug.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("debug listener stopped")
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Subscription.Listen).Msg("subscription endpoint listening")
		errCh <- srv.ListenAndServe()
	}()
	debug.SetReady()

	select {
	case <-ctx.Done():
		debug.SetNotReady()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown subscription endpoint")
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("subscription endpoint failed")
		}
	}
}
