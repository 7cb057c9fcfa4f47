package streamengine

import (
	"math/rand"
	"sync"
	"time"

	"github.com/onehub/llmgate/internal/entity"
)

// SelectionStrategy picks one key out of an enabled-keys group.
// Disabled keys are invisible at selection time and a request does not
// re-select if its key becomes disabled mid-flight.
type SelectionStrategy interface {
	Select(providerID int64, keys []entity.ProviderApiKey) entity.ProviderApiKey
}

// QueueStrategy round-robins across the group, one counter per provider.
type QueueStrategy struct {
	mu       sync.Mutex
	counters map[int64]uint64
}

// NewQueueStrategy returns a QueueStrategy with a fresh counter set.
func NewQueueStrategy() *QueueStrategy {
	return &QueueStrategy{counters: make(map[int64]uint64)}
}

// Select implements SelectionStrategy.
func (s *QueueStrategy) Select(providerID int64, keys []entity.ProviderApiKey) entity.ProviderApiKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.counters[providerID]
	s.counters[providerID] = n + 1
	return keys[n%uint64(len(keys))]
}

// RandomStrategy picks uniformly at random across the group.
type RandomStrategy struct{}

// Select implements SelectionStrategy.
func (RandomStrategy) Select(_ int64, keys []entity.ProviderApiKey) entity.ProviderApiKey {
	return keys[rand.Intn(len(keys))]
}

// CooldownTracker deprioritizes a ProviderApiKey that just failed (429 or
// 5xx) for a short window, without making it formally unavailable — a
// key the evaluator still returns as "enabled" may still be filtered out
// of selection here. The no-starvation requirement means a cooldown
// must never remove every candidate: Filter returns the unfiltered group
// when cooling down all of them would leave none to pick from.
type CooldownTracker struct {
	mu    sync.Mutex
	until map[int64]time.Time
}

// NewCooldownTracker returns a tracker with no keys cooling down.
func NewCooldownTracker() *CooldownTracker {
	return &CooldownTracker{until: make(map[int64]time.Time)}
}

// MarkCooldown deprioritizes keyID for d starting now.
func (c *CooldownTracker) MarkCooldown(keyID int64, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.until[keyID] = time.Now().Add(d)
}

// Filter drops keys currently cooling down, unless doing so would leave
// the group empty.
func (c *CooldownTracker) Filter(keys []entity.ProviderApiKey) []entity.ProviderApiKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	out := make([]entity.ProviderApiKey, 0, len(keys))
	for _, k := range keys {
		if until, ok := c.until[k.ID]; ok && until.After(now) {
			continue
		}
		out = append(out, k)
	}
	if len(out) == 0 {
		return keys
	}
	return out
}
