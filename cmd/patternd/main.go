package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/quaylabs/patternd/internal/capability"
	"github.com/quaylabs/patternd/internal/engine"
	"github.com/quaylabs/patternd/internal/logging"
	"github.com/quaylabs/patternd/internal/providers"
	"github.com/quaylabs/patternd/internal/scheduler"
	"github.com/quaylabs/patternd/internal/service"
	"github.com/quaylabs/patternd/internal/store"
	"github.com/quaylabs/patternd/internal/validation"
	"github.com/quaylabs/patternd/pkg/mcp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "patternd:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	registry := capability.NewRegistry(logger)
	validator, err := validation.NewPatternValidator(registry)
	if err != nil {
		return fmt.Errorf("build validator: %w", err)
	}
	if err := providers.RegisterBuiltins(registry, validator); err != nil {
		return fmt.Errorf("register builtin providers: %w", err)
	}

	orchestrator := engine.NewOrchestrator(registry, validator, logger)
	svc := service.New(st, orchestrator, validator, logger)

	if cfg.Scheduler {
		sched := scheduler.New(st, svc, logger)
		if err := sched.RecoverMissed(ctx); err != nil {
			logger.Warn("missed schedule recovery failed", slog.String("error", err.Error()))
		}
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer func() { _ = sched.Stop() }()
	}

	srv := mcp.NewPatternServer(mcp.PatternServerDeps{
		Service:  svc,
		Registry: registry,
		Logger:   logger,
	})

	logger.Info("patternd ready",
		slog.String("db", cfg.DBPath),
		slog.Int("capabilities", registry.Count()),
	)
	return srv.Serve(ctx)
}

// newLogger builds the process logger: JSON on stderr (stdout carries the MCP
// transport) with correlation IDs injected from context.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(handler))
}
