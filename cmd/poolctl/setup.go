package main

import (
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/vnykmshr/threadpool/internal/config"
	"github.com/vnykmshr/threadpool/internal/logging"
)

// loadConfig reads --config, or the defaults when it is unset, and applies
// the global log overrides.
func loadConfig(cmd *cli.Command) (config.Config, error) {
	cfg := config.Default()
	if path := cmd.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	if level := cmd.String("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if format := cmd.String("log-format"); format != "" {
		cfg.Log.Format = format
	}
	return cfg, cfg.Validate()
}

// buildLogger writes to the command's error writer unless a log file is
// configured. The returned level can be changed while the logger is in use.
func buildLogger(cmd *cli.Command, cfg config.LogConfig) (*slog.Logger, *slog.LevelVar, func() error, error) {
	logger, level, closeFn, err := logging.New().
		SetOutput(cmd.Root().ErrWriter).
		SetLevel(cfg.Level).
		SetFormat(cfg.Format).
		SetRotation(cfg.File.Path, logging.Rotation{
			MaxSizeMB:  cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAgeDays: cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		}).
		Build()
	if err != nil {
		return nil, nil, nil, err
	}
	return logger, level, closeFn, nil
}
