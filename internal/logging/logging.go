// Package logging builds the logrus logger used by the docconv CLI.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/nicholasgasior/docconv-go/internal/config"
)

// New builds a logger from cfg. The returned cleanup closes the log file
// when output is "file" and is always safe to call.
func New(cfg *config.Logger) (*logrus.Logger, func(), error) {
	l := logrus.New()
	cleanup := func() {}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, cleanup, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	l.SetLevel(level)

	switch cfg.Format {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	switch cfg.Output {
	case "stdout":
		l.SetOutput(os.Stdout)
	case "", "stderr":
		l.SetOutput(os.Stderr)
	case "discard":
		l.SetOutput(io.Discard)
	case "file":
		if cfg.OutputFile == "" {
			return nil, cleanup, fmt.Errorf("logger.output_file is required when logger.output is file")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.OutputFile), 0o755); err != nil {
			return nil, cleanup, err
		}
		f, err := os.OpenFile(cfg.OutputFile, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
		if err != nil {
			return nil, cleanup, err
		}
		l.SetOutput(f)
		cleanup = func() { _ = f.Close() }
	default:
		return nil, cleanup, fmt.Errorf("unknown log output %q", cfg.Output)
	}
	return l, cleanup, nil
}
