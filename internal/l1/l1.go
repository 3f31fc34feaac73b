// Package l1 provides a sharded in-memory cache of decoded entries with TTL
// expiry and bounded size.
package l1

import (
	"container/list"
	"hash/fnv"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AndrewDonelson/exadb/internal/clock"
)

const numShards = 64

// EvictionPolicy picks the entry dropped when a shard is full.
type EvictionPolicy int

const (
	LRU  EvictionPolicy = iota // least recently read or written
	FIFO                       // oldest insertion
)

// Options configures a Store.
type Options struct {
	TTL time.Duration
	// MaxEntries bounds the total entry count; it is split evenly across
	// shards. Zero means unbounded.
	MaxEntries    int
	Eviction      EvictionPolicy
	SweepInterval time.Duration
	Clock         clock.Clock
}

type item struct {
	key       string
	value     any
	expiresAt time.Time
	elem      *list.Element
}

type shard struct {
	mu    sync.Mutex
	items map[string]*item
	order *list.List // front = most recent
	limit int
}

// Store is the sharded cache. It is safe for concurrent use.
type Store struct {
	shards [numShards]*shard
	opts   Options
	hits   atomic.Int64
	misses atomic.Int64
	stopCh chan struct{}
	once   sync.Once
}

// Key builds the cache key for row id of table.
func Key(table string, id uint64) string {
	return table + ":" + strconv.FormatUint(id, 10)
}

// New creates a Store and starts its expiry sweeper.
func New(opts Options) *Store {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.SweepInterval == 0 {
		opts.SweepInterval = 30 * time.Second
	}
	limit := 0
	if opts.MaxEntries > 0 {
		limit = opts.MaxEntries / numShards
		if limit == 0 {
			limit = 1
		}
	}
	s := &Store{opts: opts, stopCh: make(chan struct{})}
	for i := range s.shards {
		s.shards[i] = &shard{items: make(map[string]*item), order: list.New(), limit: limit}
	}
	go s.sweepLoop()
	return s
}

func (s *Store) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%numShards]
}

// Set stores value under key. A zero ttl uses the store default; a
// negative ttl never expires.
func (s *Store) Set(key string, value any, ttl time.Duration) {
	if ttl == 0 {
		ttl = s.opts.TTL
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = s.opts.Clock.Now().Add(ttl)
	}

	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if it, ok := sh.items[key]; ok {
		it.value = value
		it.expiresAt = expiresAt
		if s.opts.Eviction == LRU {
			sh.order.MoveToFront(it.elem)
		}
		return
	}
	if sh.limit > 0 && len(sh.items) >= sh.limit {
		if back := sh.order.Back(); back != nil {
			sh.remove(back.Value.(*item))
		}
	}
	it := &item{key: key, value: value, expiresAt: expiresAt}
	it.elem = sh.order.PushFront(it)
	sh.items[key] = it
}

// Get returns the live value under key.
func (s *Store) Get(key string) (any, bool) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	it, ok := sh.items[key]
	if ok && !it.expiresAt.IsZero() && s.opts.Clock.Now().After(it.expiresAt) {
		sh.remove(it)
		ok = false
	}
	if !ok {
		s.misses.Add(1)
		return nil, false
	}
	if s.opts.Eviction == LRU {
		sh.order.MoveToFront(it.elem)
	}
	s.hits.Add(1)
	return it.value, true
}

// Delete removes key.
func (s *Store) Delete(key string) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	if it, ok := sh.items[key]; ok {
		sh.remove(it)
	}
	sh.mu.Unlock()
}

// Flush removes everything.
func (s *Store) Flush() {
	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.items = make(map[string]*item)
		sh.order.Init()
		sh.mu.Unlock()
	}
}

// FlushPrefix removes every key starting with prefix, e.g. "worlds:".
func (s *Store) FlushPrefix(prefix string) {
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, it := range sh.items {
			if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
				sh.remove(it)
			}
		}
		sh.mu.Unlock()
	}
}

// Stats holds hit/miss/entry counts.
type Stats struct {
	Hits    int64
	Misses  int64
	Entries int64
}

// Stats returns current counters.
func (s *Store) Stats() Stats {
	var n int64
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += int64(len(sh.items))
		sh.mu.Unlock()
	}
	return Stats{Hits: s.hits.Load(), Misses: s.misses.Load(), Entries: n}
}

// Close stops the sweeper. It is safe to call more than once.
func (s *Store) Close() {
	s.once.Do(func() { close(s.stopCh) })
}

func (s *Store) sweepLoop() {
	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Store) sweep() {
	now := s.opts.Clock.Now()
	for _, sh := range s.shards {
		sh.mu.Lock()
		for _, it := range sh.items {
			if !it.expiresAt.IsZero() && now.After(it.expiresAt) {
				sh.remove(it)
			}
		}
		sh.mu.Unlock()
	}
}

func (sh *shard) remove(it *item) {
	delete(sh.items, it.key)
	sh.order.Remove(it.elem)
}
