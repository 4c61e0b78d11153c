package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/zzdxppq/shop-video-scout/internal/app"
	"github.com/zzdxppq/shop-video-scout/internal/config"
	"github.com/zzdxppq/shop-video-scout/internal/gitrepo"
	"github.com/zzdxppq/shop-video-scout/internal/logging"
	"github.com/zzdxppq/shop-video-scout/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	ctx := context.Background()

	opts := []app.Option{app.WithLogger(logging.NewComponentLogger(logger, "service"))}
	if strings.TrimSpace(cfg.ReposDir) != "" {
		if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
			return fmt.Errorf("failed to create repos dir: %w", err)
		}
		opts = append(opts, app.WithGit(gitrepo.New(cfg.ReposDir)))
		logger.Info("recording script history", "repos_dir", cfg.ReposDir)
	}

	var service *app.Service
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		db, err := store.Open(ctx, cfg.DatabaseURL, store.PoolConfig{MaxOpenConns: cfg.DBMaxOpenConns})
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer db.Close()
		applied, err := store.ApplyMigrations(ctx, db, store.Migrations(cfg.MigrationsDir))
		if err != nil {
			return fmt.Errorf("migrations failed: %w", err)
		}
		if len(applied) > 0 {
			logger.Info("applied migrations", "versions", applied)
		}
		if err := store.VerifySchema(ctx, db); err != nil {
			return err
		}
		service = app.New(cfg, store.NewPostgresStore(db), opts...)
	} else {
		logger.Warn("DATABASE_URL not set, scripts are kept in memory")
		service = app.New(cfg, store.NewMemoryStore(), opts...)
	}
	if !service.AuthEnabled() {
		logger.Warn("SCRIPT_JWT_SECRET not set, every caller is treated as admin")
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logging.NewComponentLogger(logger, "http"))
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("script API listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
