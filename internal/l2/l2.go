// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// l2.go: Redis-backed L2 tier: codec-encoded entry envelopes keyed by
// table and id, per-table id sequences, SCAN-based table invalidation, and
// the pub/sub primitives used for cross-node L1 invalidation.

// Package l2 provides the Redis tier adapter.
package l2

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/AndrewDonelson/exadb/internal/codec"
	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when the key does not exist in Redis.
var ErrMiss = errors.New("l2: miss")

// raiseSeq sets KEYS[1] to ARGV[1] unless it already holds a larger value.
var raiseSeq = redis.NewScript(`
local cur = tonumber(redis.call("GET", KEYS[1]) or "0")
local want = tonumber(ARGV[1])
if want > cur then
  redis.call("SET", KEYS[1], ARGV[1])
  return want
end
return cur
`)

// Store is the L2 Redis adapter.
type Store struct {
	client    redis.UniversalClient
	codec     codec.Codec
	keyPrefix string
	hits      atomic.Int64
	misses    atomic.Int64
}

// Options configures a new Store.
type Options struct {
	Client redis.UniversalClient
	Codec  codec.Codec
	// KeyPrefix namespaces every key, e.g. per deployment.
	KeyPrefix string
}

// New creates a Store. The codec defaults to MsgPack.
func New(opts Options) *Store {
	if opts.Codec == nil {
		opts.Codec = codec.MsgPack{}
	}
	return &Store{client: opts.Client, codec: opts.Codec, keyPrefix: opts.KeyPrefix}
}

func (s *Store) prefixed(k string) string {
	if s.keyPrefix != "" {
		return s.keyPrefix + ":" + k
	}
	return k
}

// Key returns the Redis key holding row id of table.
func (s *Store) Key(table string, id uint64) string {
	return s.prefixed("entry:" + table + ":" + strconv.FormatUint(id, 10))
}

func (s *Store) seqKey(table string) string {
	return s.prefixed("seq:" + table)
}

// Set encodes value and stores it with ttl (zero or negative persists).
func (s *Store) Set(ctx context.Context, table string, id uint64, value any, ttl time.Duration) error {
	b, err := s.codec.Marshal(value)
	if err != nil {
		return fmt.Errorf("l2 marshal: %w", err)
	}
	if ttl < 0 {
		ttl = 0
	}
	k := s.Key(table, id)
	if err := s.client.Set(ctx, k, b, ttl).Err(); err != nil {
		return fmt.Errorf("l2 set %s: %w", k, err)
	}
	return nil
}

// Get decodes the value stored for id into dest. It returns ErrMiss when
// the key is absent.
func (s *Store) Get(ctx context.Context, table string, id uint64, dest any) error {
	k := s.Key(table, id)
	b, err := s.client.Get(ctx, k).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			s.misses.Add(1)
			return ErrMiss
		}
		return fmt.Errorf("l2 get %s: %w", k, err)
	}
	s.hits.Add(1)
	if err := s.codec.Unmarshal(b, dest); err != nil {
		return fmt.Errorf("l2 unmarshal %s: %w", k, err)
	}
	return nil
}

// Exists reports whether id is cached.
func (s *Store) Exists(ctx context.Context, table string, id uint64) (bool, error) {
	k := s.Key(table, id)
	n, err := s.client.Exists(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("l2 exists %s: %w", k, err)
	}
	return n > 0, nil
}

// Delete removes id.
func (s *Store) Delete(ctx context.Context, table string, id uint64) error {
	k := s.Key(table, id)
	if err := s.client.Del(ctx, k).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("l2 delete %s: %w", k, err)
	}
	return nil
}

// InvalidateAll removes every cached row of table using SCAN+DEL. The id
// sequence is kept.
func (s *Store) InvalidateAll(ctx context.Context, table string) error {
	pattern := s.prefixed("entry:" + table + ":*")
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("l2 scan: %w", err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("l2 delete: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// NextID allocates the next row id for table (1, 2, ...).
func (s *Store) NextID(ctx context.Context, table string) (uint64, error) {
	n, err := s.client.Incr(ctx, s.seqKey(table)).Result()
	if err != nil {
		return 0, fmt.Errorf("l2 next id %s: %w", table, err)
	}
	return uint64(n), nil
}

// RaiseSequence makes sure NextID for table returns ids above id.
func (s *Store) RaiseSequence(ctx context.Context, table string, id uint64) error {
	if err := raiseSeq.Run(ctx, s.client, []string{s.seqKey(table)}, strconv.FormatUint(id, 10)).Err(); err != nil {
		return fmt.Errorf("l2 raise sequence %s: %w", table, err)
	}
	return nil
}

// Publish sends payload on channel.
func (s *Store) Publish(ctx context.Context, channel string, payload []byte) error {
	return s.client.Publish(ctx, channel, payload).Err()
}

// Subscribe opens a subscription on channel.
func (s *Store) Subscribe(ctx context.Context, channel string) *redis.PubSub {
	return s.client.Subscribe(ctx, channel)
}

// Ping checks that Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Stats holds hit and miss counts.
type Stats struct {
	Hits   int64
	Misses int64
}

// Stats returns current counters.
func (s *Store) Stats() Stats {
	return Stats{Hits: s.hits.Load(), Misses: s.misses.Load()}
}
