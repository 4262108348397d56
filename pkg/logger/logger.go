package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultLogFile keeps log output away from the interactive terminal.
const DefaultLogFile = "logs/chaincart.log"

// Config describes how the application logger should behave.
type Config struct {
	Level       string
	Format      string
	OutputPaths []string
	Rotation    RotationConfig
}

// RotationConfig controls rotation of file outputs.
type RotationConfig struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

var (
	mu            sync.Mutex
	defaultLogger *slog.Logger
	closers       []io.Closer
)

// Init configures the global logger. Calling it again replaces the previous
// configuration and closes the files it opened.
func Init(cfg Config) error {
	handler, opened, err := buildHandler(cfg)
	if err != nil {
		return err
	}

	mu.Lock()
	previous := closers
	closers = opened
	defaultLogger = slog.New(handler)
	mu.Unlock()

	var closeErr error
	for _, closer := range previous {
		closeErr = errors.Join(closeErr, closer.Close())
	}
	return closeErr
}

func buildHandler(cfg Config) (slog.Handler, []io.Closer, error) {
	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{DefaultLogFile}
	}

	var (
		writers []io.Writer
		opened  []io.Closer
	)
	for _, out := range outputs {
		writer, closer, err := openWriter(out, cfg.Rotation)
		if err != nil {
			for _, c := range opened {
				_ = c.Close()
			}
			return nil, nil, err
		}
		if closer != nil {
			opened = append(opened, closer)
		}
		writers = append(writers, writer)
	}

	writer := writers[0]
	if len(writers) > 1 {
		writer = io.MultiWriter(writers...)
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.NewTextHandler(writer, opts), opened, nil
	}
	return slog.NewJSONHandler(writer, opts), opened, nil
}

func openWriter(path string, rotation RotationConfig) (io.Writer, io.Closer, error) {
	switch strings.ToLower(strings.TrimSpace(path)) {
	case "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	case "discard", "none":
		return io.Discard, nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	writer := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    positiveOr(rotation.MaxSizeMB, 10),
		MaxBackups: positiveOr(rotation.MaxBackups, 5),
		MaxAge:     positiveOr(rotation.MaxAgeDays, 14),
		Compress:   rotation.Compress,
	}
	return writer, writer, nil
}

func positiveOr(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// L returns the structured logger instance. Before Init it discards output.
func L() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return defaultLogger
}

// Sync closes file outputs opened by Init.
func Sync() error {
	mu.Lock()
	opened := closers
	closers = nil
	mu.Unlock()

	var err error
	for _, closer := range opened {
		err = errors.Join(err, closer.Close())
	}
	return err
}

// Named returns a child logger tagged with the component name.
func Named(name string) *slog.Logger {
	return L().With(slog.String("component", name))
}
