package logger

import (
	"os"
	"path/filepath"

	"github.com/joeydtaylor/steeze-lua/pkg/manifest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

func ensureLogDir(dir string) string {
	if dir == "" {
		dir = "log"
	}
	_ = os.MkdirAll(dir, 0o755)
	return dir
}

// NewLog tees JSON output to a rotating file under cfg.Dir and, when
// cfg.Console is set, to stdout.
func NewLog(cfg manifest.Log, n string) *zap.Logger {
	return newLog(cfg, n, "msg")
}

func newLog(cfg manifest.Log, n, messageKey string) *zap.Logger {
	dir := ensureLogDir(cfg.Dir)

	enc := zap.NewProductionEncoderConfig()
	enc.MessageKey = messageKey
	enc.EncodeTime = zapcore.ISO8601TimeEncoder

	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}

	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(dir, n),
		MaxSize:    cfg.MaxSizeMB, // MB
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays, // days
	})

	cores := []zapcore.Core{zapcore.NewCore(zapcore.NewJSONEncoder(enc), w, level)}
	if cfg.Console {
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.Lock(os.Stdout), level))
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}
