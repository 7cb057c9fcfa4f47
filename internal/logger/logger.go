// Package logger provides the gateway's process-wide structured logger:
// a single Laisky/zap logger created once at init(), level gated by
// config.DebugEnabled.
package logger

import (
	"sync"

	"github.com/Laisky/zap"

	"github.com/onehub/llmgate/internal/config"
)

var (
	// L is the process-wide logger. Call sites add structured fields
	// (request_id, channel_id, model) rather than formatting strings.
	L    *zap.Logger
	once sync.Once
)

func init() {
	initLogger()
}

func initLogger() {
	once.Do(func() {
		var err error
		if config.DebugEnabled {
			L, err = zap.NewDevelopment()
		} else {
			L, err = zap.NewProduction()
		}
		if err != nil {
			// A logger that fails to construct is a boot-time fault;
			// fall back to a no-op logger rather than panicking so a
			// misconfigured environment doesn't crash before main() can
			// report anything.
			L = zap.NewNop()
		}
	})
}

// With returns a child logger carrying the given fields, the idiom used
// throughout the hot path to attach request_id/channel_id/model once.
func With(fields ...zap.Field) *zap.Logger {
	return L.With(fields...)
}
