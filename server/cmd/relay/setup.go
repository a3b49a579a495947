package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"

	"github.com/drafftink/relay/server/internal/config"
)

// loadEnv reads path into the environment. A missing file is not an error.
// Variables already set in the environment win.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file %q: %w", path, err)
	}
	return nil
}

// loadConfig loads the file named by opts.Config, or the defaults when none
// is given, then applies command-line overrides and validates the result.
func loadConfig(opts *Options) (*config.Config, error) {
	cfg := config.Default()
	if opts.Config != "" {
		var err error
		if cfg, err = config.Load(opts.Config); err != nil {
			return nil, err
		}
	}

	if opts.Address != "" {
		cfg.Server.Address = opts.Address
	}
	if opts.Port != 0 {
		cfg.Server.Port = opts.Port
	}
	if opts.CORS {
		cfg.Server.CORS = true
	}
	if opts.UIDir != "" {
		cfg.Server.UIDir = opts.UIDir
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger. The returned LevelVar lets config
// reloads change the level of the installed handler.
func newLogger(w io.Writer, lc config.LogConfig) (*slog.Logger, *slog.LevelVar) {
	level := new(slog.LevelVar)
	level.Set(parseLevel(lc.Level))

	hopts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if lc.Format == "text" {
		h = slog.NewTextHandler(w, hopts)
	} else {
		h = slog.NewJSONHandler(w, hopts)
	}
	return slog.New(h), level
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
