package logging

import (
	"context"

	"github.com/denzelpenzel/mcbridge/internal/common"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type logKey struct{}

// LoggerKey ... Context key under which a request scoped logger is stored
var LoggerKey = logKey{}

var logger = zap.NewNop()

// New ... Builds the global logger for the given environment
func New(env common.Env) {
	var cfg zap.Config

	switch env {
	case common.Production:
		cfg = zap.NewProductionConfig()
	case common.Development:
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	cfg.DisableStacktrace = env == common.Production

	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}

	logger = l
}

// Inject ... Stores the logger in the context
func Inject(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, l)
}

// WithContext ... Returns the logger stored in the context, or the global one
func WithContext(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return logger
	}

	if l, ok := ctx.Value(LoggerKey).(*zap.Logger); ok {
		return l
	}

	return logger
}

// NoContext ... Returns the global logger
func NoContext() *zap.Logger {
	return logger
}
