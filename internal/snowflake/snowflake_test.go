package snowflake_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/onehub/llmgate/internal/snowflake"
)

func TestNextIsStrictlyIncreasing(t *testing.T) {
	a := snowflake.Next()
	b := snowflake.Next()
	assert.Less(t, a, b)
}

func TestNextStringIsBase36OfNext(t *testing.T) {
	s := snowflake.NextString()
	assert.NotEmpty(t, s)
	for _, r := range s {
		assert.True(t, (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z'))
	}
}

func TestNextConcurrentCallsAreUnique(t *testing.T) {
	const n = 200
	ids := make([]uint64, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			ids[i] = snowflake.Next()
		}(i)
	}
	wg.Wait()

	seen := make(map[uint64]struct{}, n)
	for _, id := range ids {
		_, dup := seen[id]
		assert.False(t, dup, "id %d generated twice", id)
		seen[id] = struct{}{}
	}
}
