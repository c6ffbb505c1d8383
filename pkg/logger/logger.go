package logger

import (
	"log"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Log struct {
	Level zapcore.Level `envconfig:"LOG_LEVEL"`
	JSON  bool          `envconfig:"LOG_JSON" default:"false"`
}

// NewLogger builds the service logger. name becomes the root logger name.
func NewLogger(cfg Log, name string) *zap.Logger {
	zapCfg := zap.NewProductionConfig()
	if !cfg.JSON {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.Level)
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := zapCfg.Build(zap.AddCaller())
	if err != nil {
		log.Fatal("logger build: ", err)
	}
	return l.Named(name)
}
