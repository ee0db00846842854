package logger

import (
	"github.com/cozy-creator/cattleid/internal/config"

	"go.uber.org/zap"
)

var logger *zap.Logger

func NewLogger(environment string) (*zap.Logger, error) {
	var (
		l   *zap.Logger
		err error
	)
	switch environment {
	case config.EnvironmentProd:
		l, err = zap.NewProduction()
	case config.EnvironmentTest:
		l = zap.NewExample()
	default:
		l, err = zap.NewDevelopment()
	}

	return l, err
}

func MustNewLogger(environment string) *zap.Logger {
	return zap.Must(NewLogger(environment))
}

func InitLogger(cfg *config.Config) (*zap.Logger, error) {
	var err error
	logger, err = NewLogger(cfg.Environment)
	if err != nil {
		return nil, err
	}

	return logger, nil
}

// GetLogger returns the process logger, falling back to a no-op logger
// when InitLogger has not run (e.g. in package tests).
func GetLogger() *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}

	return logger
}
