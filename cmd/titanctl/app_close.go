package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/titanscrape/titan/internal/logging"
)

// closer is satisfied by both captcha.PostgresStore and captcha.SQLiteStore.
type closer interface {
	Close() error
}

// close releases every collaborator newApp opened. Safe to call once.
func (a *app) close() {
	if c, ok := a.captchaStore.(closer); ok {
		if err := c.Close(); err != nil {
			logging.Warn(logging.HTTPAPI, "close captcha store failed", zap.Error(err))
		}
	}
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(context.Background()); err != nil {
			logging.Warn(logging.HTTPAPI, "telemetry shutdown failed", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logging.Warn(logging.HTTPAPI, "close redis client failed", zap.Error(err))
		}
	}
}
