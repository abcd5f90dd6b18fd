// Command kbmon runs one monitoring pass over the knowledge-base admin
// console and exits with a code reflecting the outcome: 0 clean or all
// failures retried, 1 unretried failures remain, 2 the run itself
// failed, 130 interrupted.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/Tina0529/chatbot-kb-monitor/monitor"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", env("CONFIG_PATH", ""), "path to YAML config file")
	flag.Parse()

	// Logging.
	var lvl slog.Level
	switch env("LOG_LEVEL", "info") {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Configuration.
	var cfg *monitor.Config
	if *configPath != "" {
		c, err := monitor.LoadConfigFile(*configPath)
		if err != nil {
			logger.Error("load config", "path", *configPath, "error", err)
			return 2
		}
		cfg = c
	} else {
		cfg = monitor.DefaultConfig()
	}

	// Optional ops database overrides.
	if dbPath := cfg.Monitoring.OpsDB; dbPath != "" {
		db, err := sql.Open("sqlite", dbPath)
		if err != nil {
			logger.Error("open ops db", "path", dbPath, "error", err)
			return 2
		}
		if err := cfg.ApplyDB(ctx, db); err != nil {
			db.Close()
			logger.Error("apply ops db overrides", "error", err)
			return 2
		}
		db.Close()
	}

	secrets := monitor.SecretsFromEnv()

	sink, err := monitor.BuildSinks(cfg, secrets, logger)
	if err != nil {
		logger.Error("build sinks", "error", err)
		return 2
	}
	defer sink.Close()

	m, err := monitor.New(cfg, secrets, sink, logger)
	if err != nil {
		logger.Error("init monitor", "error", err)
		return 2
	}

	rep := m.Run(ctx)

	if errors.Is(ctx.Err(), context.Canceled) {
		logger.Warn("interrupted")
		return 130
	}
	return rep.Overall.ExitCode()
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
