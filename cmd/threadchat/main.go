package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"threadchat/internal/auth"
	"threadchat/internal/chat"
	"threadchat/internal/completion"
	"threadchat/internal/config"
	"threadchat/internal/logging"
	"threadchat/internal/storage"
	"threadchat/internal/store"
	"threadchat/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "path to config.toml (default ~/.threadchat/config.toml)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "threadchat:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logFile, err := logging.OpenFile(cfg.Log)
	if err != nil {
		return err
	}
	defer logFile.Close()
	logger := logging.New(cfg.Log, logFile)
	logger.Info().Str("backend", cfg.Store.Backend).Msg("starting threadchat")

	threads, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := os.MkdirAll(filepath.Dir(cfg.Auth.DatabasePath), 0o755); err != nil {
		return fmt.Errorf("create user database directory: %w", err)
	}
	users, err := auth.Open(cfg.Auth.DatabasePath, cfg.Auth.Secret, auth.WithLifetime(cfg.Auth.SessionLifetime.Duration))
	if err != nil {
		return err
	}
	defer users.Close()

	keeper := auth.NewKeeper()
	defer keeper.Stop()

	client := completion.NewClient(cfg.Completion.BaseURL, completion.WithTimeout(cfg.Completion.Timeout.Duration))
	state := chat.NewState()
	syncer := chat.NewSynchronizer(threads, state, logger)
	dispatcher := chat.NewDispatcher(threads, client, state, logger, chat.WithTitleCap(cfg.Chat.TitleCap))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	model := ui.NewModel(ctx, ui.Deps{
		Auth:       users,
		Keeper:     keeper,
		State:      state,
		Syncer:     syncer,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	g.Go(func() error {
		defer close(done)
		_, err := p.Run()
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			p.Quit()
		case <-done:
		}
		return nil
	})

	err = g.Wait()
	logger.Info().Err(err).Msg("threadchat stopped")
	return err
}

// openStore opens the configured thread store and returns its closer.
func openStore(cfg *config.Config, logger zerolog.Logger) (store.Store, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendRedis:
		client, err := storage.DialRedis(cfg.Store.Redis)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewRedisStore(client, logger), func() { client.Close() }, nil
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Store.SQLitePath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create database directory: %w", err)
		}
		db, err := storage.NewDatabase(cfg.Store.SQLitePath, storage.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return db, func() { db.Close() }, nil
	}
}
