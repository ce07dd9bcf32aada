package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nodefold/nodefold/internal/engine"
	"github.com/nodefold/nodefold/internal/history"
	"github.com/nodefold/nodefold/internal/layout"
	"github.com/nodefold/nodefold/internal/logging"
	"github.com/nodefold/nodefold/internal/panel"
	"github.com/nodefold/nodefold/internal/query"
	"github.com/nodefold/nodefold/internal/scheduler"
	"github.com/nodefold/nodefold/internal/store"
	"github.com/nodefold/nodefold/internal/validation"
	"github.com/nodefold/nodefold/pkg/mcp"
)

func main() {
	mode := "serve"
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}

	switch mode {
	case "serve":
		run(false)
	case "mcp":
		run(true)
	case "version":
		printVersion()
	default:
		fmt.Fprintf(os.Stderr, "usage: nodefold [serve|mcp|version]\n")
		os.Exit(2)
	}
}

// run wires the full stack and blocks until shutdown. In MCP mode the server
// speaks MCP over stdio instead of listening for HTTP, so logs go to stderr
// either way.
func run(mcpMode bool) {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Persistence is optional: an empty db_path runs fully in-memory.
	var st store.Store
	if cfg.DBPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			logger.Error("create data dir", "error", err)
			os.Exit(1)
		}
		s, err := store.NewLibSQLStore("file:" + cfg.DBPath)
		if err != nil {
			logger.Error("open store", "error", err)
			os.Exit(1)
		}
		defer s.Close()
		if err := s.Migrate(ctx); err != nil {
			logger.Error("migrate store", "error", err)
			os.Exit(1)
		}
		st = s
	}

	eng := engine.New(engine.Config{
		Stagger:      cfg.Stagger(),
		AnimDuration: cfg.AnimDuration(),
		Layout: layout.Config{
			Width:  cfg.ViewportWidth,
			Height: cfg.ViewportHeight,
		},
	}, engine.Deps{
		Journal: historySink(st),
		Logger:  logger,
	})

	if st != nil {
		journal := store.NewJournal(st, logger)
		if err := journal.Start(ctx, eng.Hub()); err != nil {
			logger.Error("start journal", "error", err)
			os.Exit(1)
		}
		defer journal.Stop()
	}

	if cfg.IdleTimeout() > 0 || cfg.CollapseCron != "" || cfg.CollapseCondition != "" {
		sched, err := scheduler.New(eng, scheduler.Config{
			IdleTimeout:    cfg.IdleTimeout(),
			CronExpression: cfg.CollapseCron,
			Condition:      cfg.CollapseCondition,
		}, nil, logger)
		if err != nil {
			logger.Error("configure auto-collapse", "error", err)
			os.Exit(1)
		}
		if err := sched.Start(ctx); err != nil {
			logger.Error("start auto-collapse", "error", err)
			os.Exit(1)
		}
		defer sched.Stop()
	}

	validator, err := validation.NewSceneValidator()
	if err != nil {
		logger.Error("compile scene schema", "error", err)
		os.Exit(1)
	}

	if mcpMode {
		runMCP(ctx, eng, validator, logger)
		return
	}
	runHTTP(ctx, cfg, eng, validator, st, logger)
}

func runMCP(ctx context.Context, eng *engine.Engine, validator *validation.SceneValidator, logger *slog.Logger) {
	srv := mcp.NewFoldServer(mcp.FoldServerDeps{
		Engine:    eng,
		Validator: validator,
		Logger:    logger,
	})

	notifier := mcp.NewNotifier(srv, logger)
	if err := notifier.Start(ctx); err != nil {
		logger.Error("start notifier", "error", err)
		os.Exit(1)
	}
	defer notifier.Stop()

	logger.Info("mcp server listening on stdio", "version", version)
	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("mcp server failed", "error", err)
		os.Exit(1)
	}
}

func runHTTP(ctx context.Context, cfg Config, eng *engine.Engine, validator *validation.SceneValidator, st store.Store, logger *slog.Logger) {
	srv := panel.NewServer(panel.Deps{
		Engine:    eng,
		Query:     query.NewRunner(),
		Validator: validator,
		Store:     st,
		Logger:    logger,
	})

	httpSrv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.ListenAddr, "version", version)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", "error", err)
		}
		logger.Info("shut down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}
}

// historySink adapts the optional store to the engine's archive sink,
// keeping the nil interface nil.
func historySink(st store.Store) history.Sink {
	if st == nil {
		return nil
	}
	return st
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(handler))
}
