package logger

import (
	"github.com/joeydtaylor/steeze-lua/pkg/manifest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func ProvideLoggerMiddleware(cfg manifest.Config) *Middleware {
	return NewMiddleware(newLog(cfg.Log, "http-access.log", zapcore.OmitKey))
}

func ProvideLogger(cfg manifest.Config) *zap.Logger { return NewLog(cfg.Log, "system.log") }
