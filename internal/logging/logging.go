// Package logging provides the process-wide structured logger shared by
// every subsystem of the scrape orchestrator.
package logging

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Component names the subsystem emitting a log line, attached as a field
// so operators can filter by it without parsing messages.
type Component string

const (
	Orchestrator Component = "orchestrator"
	Tier         Component = "tier"
	Captcha      Component = "captcha"
	HITL         Component = "hitl"
	JobQueue     Component = "job_queue"
	TicketStore  Component = "ticket_store"
	EventBus     Component = "event_bus"
	HTTPAPI      Component = "http_api"
)

var (
	global     *zap.Logger
	globalOnce sync.Once
)

// Get returns the global zap logger, building it on first use.
func Get() *zap.Logger {
	globalOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

		built, err := cfg.Build()
		if err != nil {
			fmt.Printf("logging: failed to build zap config: %v\n", err)
			built = zap.NewExample()
		}
		global = built
	})
	return global
}

// Action logs a component-scoped action at info level.
func Action(c Component, msg string, fields ...zap.Field) {
	Get().Info(msg, append([]zap.Field{zap.String("component", string(c))}, fields...)...)
}

// Warn logs a component-scoped action at warn level.
func Warn(c Component, msg string, fields ...zap.Field) {
	Get().Warn(msg, append([]zap.Field{zap.String("component", string(c))}, fields...)...)
}

// ErrorLog logs a component-scoped failure at error level.
func ErrorLog(c Component, msg string, fields ...zap.Field) {
	Get().Error(msg, append([]zap.Field{zap.String("component", string(c))}, fields...)...)
}

// Sync flushes any buffered log entries. Call during graceful shutdown.
func Sync() error {
	if global != nil {
		return global.Sync()
	}
	return nil
}
