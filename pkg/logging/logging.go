// Package logging builds the zap loggers used across stockbot.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects level, encoding and sinks.
type Config struct {
	Level      string   `json:"level" yaml:"level"`     // debug, info, warn, error
	Format     string   `json:"format" yaml:"format"`   // json or console
	Outputs    []string `json:"outputs" yaml:"outputs"` // stdout, file
	File       string   `json:"file,omitempty" yaml:"file,omitempty"`
	MaxSizeMB  int      `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int      `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int      `json:"max_age_days" yaml:"max_age_days"`
}

func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "console",
		Outputs:    []string{"stdout"},
		MaxSizeMB:  100,
		MaxBackups: 3,
		MaxAgeDays: 7,
	}
}

// New returns a logger writing to every configured output. File output is
// rotated by lumberjack.
func New(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var cores []zapcore.Core
	for _, out := range cfg.Outputs {
		switch out {
		case "stdout":
			var enc zapcore.Encoder
			if cfg.Format == "console" {
				consoleCfg := zap.NewDevelopmentEncoderConfig()
				consoleCfg.EncodeTime = zapcore.ISO8601TimeEncoder
				enc = zapcore.NewConsoleEncoder(consoleCfg)
			} else {
				enc = zapcore.NewJSONEncoder(encCfg)
			}
			cores = append(cores, zapcore.NewCore(enc, zapcore.Lock(os.Stdout), level))
		case "file":
			if cfg.File == "" {
				return nil, fmt.Errorf("log output \"file\" requires log.file")
			}
			w := &lumberjack.Logger{
				Filename:   cfg.File,
				MaxSize:    cfg.MaxSizeMB,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAgeDays,
			}
			cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(w), level))
		default:
			return nil, fmt.Errorf("unknown log output %q", out)
		}
	}
	if len(cores) == 0 {
		return zap.NewNop(), nil
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
