// Package metrics provides the MetricsRecorder interface, a noop recorder
// and an in-memory counter.
package metrics

import (
	"sync"
	"time"
)

// MetricsRecorder receives per-table operational metrics from the store.
type MetricsRecorder interface {
	RecordHit(table, tier string)
	RecordMiss(table, tier string)
	RecordLatency(table, op string, d time.Duration)
	RecordError(table, op string)
}

// Noop discards everything.
type Noop struct{}

func (Noop) RecordHit(table, tier string)                    {}
func (Noop) RecordMiss(table, tier string)                   {}
func (Noop) RecordLatency(table, op string, d time.Duration) {}
func (Noop) RecordError(table, op string)                    {}

// Counter counts events in memory, keyed "table/tier" or "table/op".
type Counter struct {
	mu     sync.Mutex
	hits   map[string]int64
	misses map[string]int64
	errors map[string]int64
}

// NewCounter returns an empty Counter.
func NewCounter() *Counter {
	return &Counter{
		hits:   make(map[string]int64),
		misses: make(map[string]int64),
		errors: make(map[string]int64),
	}
}

func (c *Counter) RecordHit(table, tier string)  { c.inc(c.hits, table+"/"+tier) }
func (c *Counter) RecordMiss(table, tier string) { c.inc(c.misses, table+"/"+tier) }
func (c *Counter) RecordError(table, op string)  { c.inc(c.errors, table+"/"+op) }

// RecordLatency is ignored.
func (c *Counter) RecordLatency(table, op string, d time.Duration) {}

// Hits returns the hit count for table on tier.
func (c *Counter) Hits(table, tier string) int64 { return c.get(c.hits, table+"/"+tier) }

// Misses returns the miss count for table on tier.
func (c *Counter) Misses(table, tier string) int64 { return c.get(c.misses, table+"/"+tier) }

// Errors returns the error count for op on table.
func (c *Counter) Errors(table, op string) int64 { return c.get(c.errors, table+"/"+op) }

func (c *Counter) inc(m map[string]int64, k string) {
	c.mu.Lock()
	m[k]++
	c.mu.Unlock()
}

func (c *Counter) get(m map[string]int64, k string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return m[k]
}
