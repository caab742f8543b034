package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"threadchat/internal/advisor"
	"threadchat/internal/config"
	"threadchat/internal/logging"
	"threadchat/internal/server"

	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "path to config.toml (default ~/.threadchat/config.toml)")
	flag.Parse()

	logger := logging.New(config.Default().Log, os.Stderr)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	if err := cfg.ValidateServer(); err != nil {
		logger.Fatal().Err(err).Msg("invalid server config")
	}
	logger = logging.New(cfg.Log, os.Stderr)

	handler := server.New(advisor.New(cfg.Server), logger, server.WithAllowedOrigins(cfg.Server.AllowedOrigins))
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Str("model", cfg.Server.Model).Msg("completion server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
	logger.Info().Msg("server stopped")
}
