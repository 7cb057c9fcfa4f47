package streamengine

import (
	"sync"
	"time"

	"github.com/onehub/llmgate/internal/entity"
)

// FinalLogFunc persists the terminal state of one request's RequestLog.
type FinalLogFunc func(status entity.RequestStatus, completionTS int64)

// ContextGuard owns the in-flight log context for one request. If the
// request's handler returns (or its goroutine unwinds, e.g. via panic
// recovery) without the guard having been disarmed, Release logs the
// request as Cancelled exactly once.
type ContextGuard struct {
	mu       sync.Mutex
	disarmed bool
	log      FinalLogFunc
}

// NewContextGuard arms a guard that will log via log unless Disarm is
// called first.
func NewContextGuard(log FinalLogFunc) *ContextGuard {
	return &ContextGuard{log: log}
}

// Disarm marks the stream as having reached an explicit terminal state
// (success, upstream error, or upstream-status-error); Release becomes a
// no-op afterward.
func (g *ContextGuard) Disarm() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.disarmed = true
}

// Release fires the Cancelled log exactly once if the guard was never
// disarmed. Call via defer at the top of the request handler.
func (g *ContextGuard) Release() {
	g.mu.Lock()
	alreadyDisarmed := g.disarmed
	g.disarmed = true
	g.mu.Unlock()

	if alreadyDisarmed || g.log == nil {
		return
	}
	g.log(entity.StatusCancelled, time.Now().Unix())
}
