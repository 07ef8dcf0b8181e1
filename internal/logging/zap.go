// Package logging builds the zap logger shared by the server.
package logging

import (
	"log"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a console logger at the named level. Unknown levels fall
// back to info.
func New(level string) (*zap.Logger, error) {
	developmentConfig := zap.NewDevelopmentConfig()

	developmentConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	developmentConfig.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	developmentConfig.EncoderConfig.CallerKey = "caller"
	developmentConfig.DisableStacktrace = true
	developmentConfig.Level = zap.NewAtomicLevelAt(ParseLevel(level))

	logger, err := developmentConfig.Build(zap.AddCaller())
	if err != nil {
		return nil, err
	}
	return logger, nil
}

// ParseLevel converts "debug", "info", "warn", "error" and friends to a
// zap level.
func ParseLevel(s string) zapcore.Level {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		log.Printf("WARN: unknown log level %q, using INFO", s)
		return zapcore.InfoLevel
	}
	return level
}
