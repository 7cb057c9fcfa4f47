// Package snowflake hands out process-global monotonically increasing
// 64-bit ids used as chat-completion id suffixes. There is no
// multi-process coordination requirement, so a single counter seeded from
// the wall clock is sufficient.
package snowflake

import (
	"strconv"
	"sync/atomic"
	"time"
)

var counter uint64

func init() {
	atomic.StoreUint64(&counter, uint64(time.Now().UnixNano()))
}

// Next returns a new, strictly increasing id.
func Next() uint64 {
	return atomic.AddUint64(&counter, 1)
}

// NextString returns Next formatted as base36, matching the short
// alphanumeric suffixes OpenAI-style chat ids use.
func NextString() string {
	return strconv.FormatUint(Next(), 36)
}
