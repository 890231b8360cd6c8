package config

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hustlerlabs/hustler/types"
)

// NewLogger builds a zap logger from a LogConfig. Format json uses the
// production encoder, console the development encoder.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, types.NewConfigurationError("log level %q is invalid", cfg.Level)
		}
	}

	var zapCfg zap.Config
	switch cfg.Format {
	case "", "console":
		zapCfg = zap.NewDevelopmentConfig()
	case "json":
		zapCfg = zap.NewProductionConfig()
	default:
		return nil, types.NewConfigurationError("log format %q is not one of json/console", cfg.Format)
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
