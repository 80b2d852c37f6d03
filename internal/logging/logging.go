// Package logging provides zap logger construction for quizd.
package logging

import (
	"errors"
	"fmt"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum enabled level: debug, info, warn, error.
	Level string `koanf:"level"`

	// Format selects the encoder: "json" or "console".
	Format string `koanf:"format"`

	// Fields are constant fields attached to every entry.
	Fields map[string]string `koanf:"fields"`
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(levelOrDefault(c.Level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	switch c.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("invalid log format %q (expected json or console)", c.Format)
	}
	return nil
}

func levelOrDefault(level string) string {
	if level == "" {
		return "info"
	}
	return level
}

// NewLogger creates a zap logger from config.
func NewLogger(cfg *Config) (*zap.Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	level, _ := zapcore.ParseLevel(levelOrDefault(cfg.Level))

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.Encoding = "json"
	if cfg.Format == "console" {
		zapCfg.Encoding = "console"
	}
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	if len(cfg.Fields) > 0 {
		fields := make([]zap.Field, 0, len(cfg.Fields))
		for k, v := range cfg.Fields {
			fields = append(fields, zap.String(k, v))
		}
		logger = logger.With(fields...)
	}

	return logger, nil
}

// Sync flushes buffered entries, ignoring the harmless EINVAL/ENOTTY that
// syncing stdout/stderr returns on Linux.
func Sync(logger *zap.Logger) error {
	err := logger.Sync()
	if err == nil {
		return nil
	}
	var errno syscall.Errno
	if errors.As(err, &errno) && (errno == syscall.EINVAL || errno == syscall.ENOTTY) {
		return nil
	}
	return err
}
