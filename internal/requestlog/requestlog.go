// Package requestlog defines the audit log sink contract and a best-
// effort asynchronous in-process implementation. The log
// sink is unordered across requests by design: two requests that
// complete in time order need not be logged in that order.
package requestlog

import (
	"context"

	"github.com/Laisky/zap"

	"github.com/onehub/llmgate/internal/entity"
	"github.com/onehub/llmgate/internal/logger"
)

// Sink persists RequestLog entries. Implementations MUST NOT block the
// hot path on write failure; logging is best-effort.
type Sink interface {
	Write(entry entity.RequestLog)
	Close()
}

// AsyncSink buffers entries on a bounded channel drained by a background
// worker, so a slow or unavailable log backend never stalls a request.
type AsyncSink struct {
	entries chan entity.RequestLog
	persist func(context.Context, entity.RequestLog) error
	done    chan struct{}
}

// NewAsyncSink starts a worker that drains entries through persist.
// capacity bounds how many entries may be buffered before Write starts
// dropping (with a debug log) rather than blocking a request task.
func NewAsyncSink(capacity int, persist func(context.Context, entity.RequestLog) error) *AsyncSink {
	s := &AsyncSink{
		entries: make(chan entity.RequestLog, capacity),
		persist: persist,
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for entry := range s.entries {
		if err := s.persist(context.Background(), entry); err != nil {
			logger.L.Warn("failed to persist request log entry", zap.String("request_id", entry.RequestID), zap.Error(err))
		}
	}
}

// Write enqueues entry, dropping it with a debug log if the buffer is
// full rather than applying backpressure to the request path.
func (s *AsyncSink) Write(entry entity.RequestLog) {
	select {
	case s.entries <- entry:
	default:
		logger.L.Debug("dropping request log entry, sink buffer full", zap.String("request_id", entry.RequestID))
	}
}

// Close drains the buffer and stops the worker.
func (s *AsyncSink) Close() {
	close(s.entries)
	<-s.done
}
