package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/utkarsh5026/httpsfront/pkg/conf"
	"github.com/utkarsh5026/httpsfront/pkg/credential"
	"github.com/utkarsh5026/httpsfront/pkg/router"
	"github.com/utkarsh5026/httpsfront/pkg/security"
	"github.com/utkarsh5026/httpsfront/pkg/server"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the front end",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := conf.Load(configPath, true)
		if err != nil {
			return err
		}

		logger, err := newLogger(cfg.Log)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		logger.Info("Configuration loaded successfully", "path", configPath)

		return serve(cmd.Context(), cfg, logger)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to configuration file")
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg *conf.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	negotiation, err := cfg.TLS.NegotiationConfig(credential.NewStore(logger))
	if err != nil {
		return err
	}

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithMaxHandshakes(cfg.MaxHandshakes),
		server.WithTimeouts(cfg.Timeouts),
	}
	if sec := cfg.Security; sec != nil {
		ac := security.AdmissionConfig{
			FailureThreshold: sec.FailureThreshold,
			BlockDuration:    sec.BlockDuration,
			FailureWindow:    sec.FailureWindow,
			Deny:             sec.Deny,
		}
		if rl := sec.RateLimit; rl != nil {
			ac.RequestsPerSecond = rl.ConnectionsPerSecond
			ac.Burst = rl.BurstSize
		}
		opts = append(opts, server.WithAdmission(security.NewAdmission(ctx, ac, logger)))
	}

	srv, err := server.New(negotiation, router.New(logger), opts...)
	if err != nil {
		return err
	}
	if err := srv.Start(cfg.Listen); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- srv.Wait() }()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received, gracefully shutting down...")
	case serveErr = <-done:
		logger.Error("server stopped unexpectedly", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Shutdown)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", "error", err)
		serveErr = errors.Join(serveErr, err)
	}

	logger.Info("Server stopped")
	return serveErr
}

func newLogger(lc conf.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", lc.Level, err)
	}

	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(lc.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	}
}
