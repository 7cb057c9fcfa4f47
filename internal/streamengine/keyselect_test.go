package streamengine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/onehub/llmgate/internal/entity"
	"github.com/onehub/llmgate/internal/streamengine"
)

func TestQueueStrategyRoundRobins(t *testing.T) {
	keys := []entity.ProviderApiKey{{ID: 1}, {ID: 2}, {ID: 3}}
	s := streamengine.NewQueueStrategy()
	var picked []int64
	for i := 0; i < 6; i++ {
		picked = append(picked, s.Select(1, keys).ID)
	}
	assert.Equal(t, []int64{1, 2, 3, 1, 2, 3}, picked)
}

func TestQueueStrategyCountersAreIndependentPerProvider(t *testing.T) {
	s := streamengine.NewQueueStrategy()
	keysA := []entity.ProviderApiKey{{ID: 1}, {ID: 2}}
	keysB := []entity.ProviderApiKey{{ID: 10}}
	assert.Equal(t, int64(1), s.Select(1, keysA).ID)
	assert.Equal(t, int64(10), s.Select(2, keysB).ID)
	assert.Equal(t, int64(2), s.Select(1, keysA).ID)
}

func TestRandomStrategyPicksFromGroup(t *testing.T) {
	keys := []entity.ProviderApiKey{{ID: 1}, {ID: 2}}
	var s streamengine.RandomStrategy
	picked := s.Select(1, keys)
	assert.Contains(t, []int64{1, 2}, picked.ID)
}
