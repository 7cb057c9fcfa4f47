package cache

import (
	"context"

	"github.com/Laisky/zap"

	"github.com/onehub/llmgate/internal/logger"
)

// NewBackend picks the external-KV backend when url is non-empty and
// reachable, falling back to the in-process map and logging the
// degradation otherwise.
func NewBackend(ctx context.Context, url, prefix string) Backend {
	if url == "" {
		return NewMapBackend()
	}
	kv, err := NewKVBackend(ctx, url, prefix)
	if err != nil {
		logger.L.Warn("external kv cache backend unavailable, falling back to in-process map",
			zap.Error(err))
		return NewMapBackend()
	}
	return kv
}
