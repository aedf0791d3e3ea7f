package logging

import (
	"log/slog"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Supported output formats.
const (
	FormatJSON = "json"
	FormatText = "text"
	FormatZap  = "zap"
)

func parseSlogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// New builds a Logger for the given format and level. Unknown levels fall
// back to info, unknown formats to JSON via slog.
func New(format, level string) (Logger, error) {
	switch format {
	case FormatZap:
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			lvl = zapcore.InfoLevel
		}
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(lvl)
		l, err := cfg.Build()
		if err != nil {
			return nil, err
		}
		return NewZapLogger(l), nil
	case FormatText:
		h := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseSlogLevel(level)})
		return NewSlogLogger(slog.New(h)), nil
	default:
		h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseSlogLevel(level)})
		return NewSlogLogger(slog.New(h)), nil
	}
}
