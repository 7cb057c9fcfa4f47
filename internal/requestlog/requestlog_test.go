package requestlog_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onehub/llmgate/internal/entity"
	"github.com/onehub/llmgate/internal/requestlog"
)

func TestAsyncSinkPersistsWrittenEntries(t *testing.T) {
	var mu sync.Mutex
	var got []entity.RequestLog

	sink := requestlog.NewAsyncSink(4, func(_ context.Context, e entity.RequestLog) error {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
		return nil
	})
	sink.Write(entity.RequestLog{RequestID: "r1", Status: entity.StatusSuccess})
	sink.Close()

	require.Len(t, got, 1)
	assert.Equal(t, "r1", got[0].RequestID)
}

func TestAsyncSinkDropsWhenBufferFull(t *testing.T) {
	block := make(chan struct{})
	sink := requestlog.NewAsyncSink(1, func(_ context.Context, _ entity.RequestLog) error {
		<-block
		return nil
	})
	sink.Write(entity.RequestLog{RequestID: "first"})
	time.Sleep(10 * time.Millisecond)
	for i := 0; i < 10; i++ {
		sink.Write(entity.RequestLog{RequestID: "extra"})
	}
	close(block)
	sink.Close()
}
