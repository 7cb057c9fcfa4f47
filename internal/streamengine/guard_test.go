package streamengine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/onehub/llmgate/internal/entity"
	"github.com/onehub/llmgate/internal/streamengine"
)

func TestGuardLogsCancelledWhenNeverDisarmed(t *testing.T) {
	var loggedStatus entity.RequestStatus
	g := streamengine.NewContextGuard(func(status entity.RequestStatus, _ int64) { loggedStatus = status })
	g.Release()
	assert.Equal(t, entity.StatusCancelled, loggedStatus)
}

func TestGuardDoesNotLogWhenDisarmed(t *testing.T) {
	called := false
	g := streamengine.NewContextGuard(func(entity.RequestStatus, int64) { called = true })
	g.Disarm()
	g.Release()
	assert.False(t, called)
}

func TestGuardReleaseIsIdempotent(t *testing.T) {
	calls := 0
	g := streamengine.NewContextGuard(func(entity.RequestStatus, int64) { calls++ })
	g.Release()
	g.Release()
	assert.Equal(t, 1, calls)
}
