package exadb

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/AndrewDonelson/exadb/internal/clock"
	"github.com/AndrewDonelson/exadb/internal/codec"
	"github.com/AndrewDonelson/exadb/internal/l1"
	"github.com/AndrewDonelson/exadb/internal/l2"
	"github.com/AndrewDonelson/exadb/internal/l3"
	"github.com/AndrewDonelson/exadb/internal/metrics"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Re-export types so callers only import this package.
type (
	MetricsRecorder = metrics.MetricsRecorder
	Codec           = codec.Codec
	Clock           = clock.Clock
)

// CodecByName returns the cache codec named "json" or "msgpack".
func CodecByName(name string) (Codec, error) { return codec.ByName(name) }

// ────────────────────────────────────────────────────────────────────────────
// Config
// ────────────────────────────────────────────────────────────────────────────

// EvictionPolicy determines which L1 entry is dropped when L1 is full.
type EvictionPolicy int

const (
	EvictLRU EvictionPolicy = iota
	EvictFIFO
)

// L1PoolConfig configures the in-memory tier.
type L1PoolConfig struct {
	MaxEntries int
	Eviction   EvictionPolicy
}

// L2PoolConfig configures the Redis client.
type L2PoolConfig struct {
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// L3PoolConfig configures the PostgreSQL connection pool.
type L3PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Config contains all Store configuration. L1 is always enabled; L2 and
// L3 are enabled by RedisAddr and PostgresDSN.
type Config struct {
	PostgresDSN        string
	PostgresReplicaDSN string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RedisKeyPrefix     string

	L1Pool L1PoolConfig
	L2Pool L2PoolConfig
	L3Pool L3PoolConfig

	DefaultL1TTL time.Duration
	DefaultL2TTL time.Duration

	InvalidationChannel string

	Codec   codec.Codec
	Clock   clock.Clock
	Metrics metrics.MetricsRecorder
	Logger  Logger

	// EncryptionKey seals payloads in L2 and L3 with AES-256-GCM when set;
	// it must be 32 bytes.
	EncryptionKey []byte
}

func (c *Config) defaults() {
	if c.Codec == nil {
		c.Codec = codec.MsgPack{}
	}
	if c.Clock == nil {
		c.Clock = clock.Real{}
	}
	if c.Metrics == nil {
		c.Metrics = metrics.Noop{}
	}
	if c.Logger == nil {
		c.Logger = noopLogger{}
	}
	if c.DefaultL1TTL == 0 {
		c.DefaultL1TTL = 5 * time.Minute
	}
	if c.DefaultL2TTL == 0 {
		c.DefaultL2TTL = 30 * time.Minute
	}
	if c.L1Pool.MaxEntries == 0 {
		c.L1Pool.MaxEntries = 100_000
	}
	if c.InvalidationChannel == "" {
		c.InvalidationChannel = defaultInvalidationChannel
	}
	if c.L3Pool.MaxConns == 0 {
		c.L3Pool.MaxConns = 20
	}
	if c.L3Pool.MinConns == 0 {
		c.L3Pool.MinConns = 2
	}
	if c.L3Pool.MaxConnLifetime == 0 {
		c.L3Pool.MaxConnLifetime = 30 * time.Minute
	}
	if c.L3Pool.MaxConnIdleTime == 0 {
		c.L3Pool.MaxConnIdleTime = 10 * time.Minute
	}
}

func (c *Config) validate() error {
	switch {
	case c.L1Pool.MaxEntries < 0:
		return fmt.Errorf("%w: L1Pool.MaxEntries must not be negative", ErrInvalidConfig)
	case c.L1Pool.Eviction != EvictLRU && c.L1Pool.Eviction != EvictFIFO:
		return fmt.Errorf("%w: unknown eviction policy %d", ErrInvalidConfig, c.L1Pool.Eviction)
	case c.L3Pool.MinConns > c.L3Pool.MaxConns:
		return fmt.Errorf("%w: L3Pool.MinConns exceeds MaxConns", ErrInvalidConfig)
	case c.PostgresReplicaDSN != "" && c.PostgresDSN == "":
		return fmt.Errorf("%w: PostgresReplicaDSN requires PostgresDSN", ErrInvalidConfig)
	}
	return nil
}

// ────────────────────────────────────────────────────────────────────────────
// Stats
// ────────────────────────────────────────────────────────────────────────────

type storeStats struct {
	Gets    atomic.Int64
	Inserts atomic.Int64
	Edits   atomic.Int64
	Deletes atomic.Int64
	Errors  atomic.Int64
}

// Stats is the snapshot returned by Store.Stats.
type Stats struct {
	Gets      int64
	Inserts   int64
	Edits     int64
	Deletes   int64
	Errors    int64
	L1Entries int64
}

// ────────────────────────────────────────────────────────────────────────────
// Store
// ────────────────────────────────────────────────────────────────────────────

// Store persists entries of every table across the configured tiers. It
// assigns ids and timestamps and is safe for concurrent use.
type Store struct {
	cfg       Config
	l1        *l1.Store
	l2        *l2.Store
	l3        *l3.Store
	sync      *syncEngine
	stats     storeStats
	metrics   metrics.MetricsRecorder
	logger    Logger
	encryptor Encryptor
	// seq allocates ids when neither L3 nor L2 is configured.
	seq    [len(tableNames)]atomic.Uint64
	closed atomic.Bool
}

// NewStore creates a Store from cfg.
func NewStore(cfg Config) (*Store, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	s := &Store{cfg: cfg, metrics: cfg.Metrics, logger: cfg.Logger}

	if len(cfg.EncryptionKey) > 0 {
		enc, err := NewAES256GCM(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		s.encryptor = enc
	}

	if cfg.PostgresDSN != "" {
		store, err := openL3(cfg)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), l3PingTimeout)
		err = store.Ping(ctx)
		cancel()
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("%w: %w", ErrL3Unavailable, err)
		}
		s.l3 = store
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			PoolSize:     cfg.L2Pool.PoolSize,
			DialTimeout:  cfg.L2Pool.DialTimeout,
			ReadTimeout:  cfg.L2Pool.ReadTimeout,
			WriteTimeout: cfg.L2Pool.WriteTimeout,
		})
		s.l2 = l2.New(l2.Options{Client: client, Codec: cfg.Codec, KeyPrefix: cfg.RedisKeyPrefix})
	}

	s.l1 = l1.New(l1.Options{
		TTL:        cfg.DefaultL1TTL,
		MaxEntries: cfg.L1Pool.MaxEntries,
		Eviction:   l1.EvictionPolicy(cfg.L1Pool.Eviction),
		Clock:      cfg.Clock,
	})

	s.sync = newSyncEngine(s)
	s.sync.start()
	s.logger.Debug("exadb: store opened", "l2", s.l2 != nil, "l3", s.l3 != nil, "codec", cfg.Codec.Name())
	return s, nil
}

const l3PingTimeout = 5 * time.Second

func openL3(cfg Config) (*l3.Store, error) {
	newPool := func(dsn string) (*pgxpool.Pool, error) {
		pgCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, fmt.Errorf("exadb: postgres config: %w", err)
		}
		pgCfg.MaxConns = cfg.L3Pool.MaxConns
		pgCfg.MinConns = cfg.L3Pool.MinConns
		pgCfg.MaxConnLifetime = cfg.L3Pool.MaxConnLifetime
		pgCfg.MaxConnIdleTime = cfg.L3Pool.MaxConnIdleTime
		pool, err := pgxpool.NewWithConfig(context.Background(), pgCfg)
		if err != nil {
			return nil, fmt.Errorf("exadb: postgres pool: %w", err)
		}
		return pool, nil
	}
	primary, err := newPool(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	var replica *pgxpool.Pool
	if cfg.PostgresReplicaDSN != "" {
		if replica, err = newPool(cfg.PostgresReplicaDSN); err != nil {
			primary.Close()
			return nil, err
		}
	}
	return l3.New(primary, replica), nil
}

// ────────────────────────────────────────────────────────────────────────────
// CRUD
// ────────────────────────────────────────────────────────────────────────────

// Insert stores m as a new entry of its table, assigning the id and both
// timestamps.
func (s *Store) Insert(ctx context.Context, m Model) (Entry, error) {
	if s.closed.Load() {
		return Entry{}, ErrUnavailable
	}
	if m == nil {
		return Entry{}, fmt.Errorf("%w: nil model", ErrEncodeFailed)
	}
	if err := m.Validate(); err != nil {
		return Entry{}, err
	}
	table := m.Table()
	now := clock.Millis(s.cfg.Clock)
	s.stats.Inserts.Add(1)
	start := s.cfg.Clock.Now()
	e, err := s.routerInsert(ctx, Entry{TimestampAdded: now, TimestampChanged: now, Model: m})
	s.observe(table, "insert", start, err)
	return e, err
}

// Get fetches entry id of table, trying L1, then L2, then L3.
func (s *Store) Get(ctx context.Context, table DbTable, id uint64) (Entry, error) {
	if err := s.check(table); err != nil {
		return Entry{}, err
	}
	s.stats.Gets.Add(1)
	start := s.cfg.Clock.Now()
	e, err := s.routerGet(ctx, table, id)
	s.observe(table, "get", start, err)
	return e, err
}

// Edit replaces the payload of an existing entry. The payload must belong
// to table. TimestampAdded is kept and TimestampChanged moves forward.
func (s *Store) Edit(ctx context.Context, table DbTable, edit EditEntry) (Entry, error) {
	if s.closed.Load() {
		return Entry{}, ErrUnavailable
	}
	if edit.Model == nil {
		return Entry{}, fmt.Errorf("%w: nil model", ErrEncodeFailed)
	}
	if got := edit.Table(); got != table {
		return Entry{}, fmt.Errorf("%w: %s payload sent to %s", ErrTableMismatch, got, table)
	}
	if err := edit.Model.Validate(); err != nil {
		return Entry{}, err
	}
	s.stats.Edits.Add(1)
	start := s.cfg.Clock.Now()
	e, err := s.routerEdit(ctx, table, edit)
	s.observe(table, "edit", start, err)
	return e, err
}

// Delete removes entry id of table from every tier. Deleting a missing
// entry is not an error.
func (s *Store) Delete(ctx context.Context, table DbTable, id uint64) error {
	if err := s.check(table); err != nil {
		return err
	}
	s.stats.Deletes.Add(1)
	start := s.cfg.Clock.Now()
	err := s.routerDelete(ctx, table, id)
	s.observe(table, "delete", start, err)
	return err
}

// Exists reports whether entry id of table exists in any tier.
func (s *Store) Exists(ctx context.Context, table DbTable, id uint64) (bool, error) {
	if err := s.check(table); err != nil {
		return false, err
	}
	if _, ok := s.l1.Get(l1.Key(table.String(), id)); ok {
		return true, nil
	}
	if s.l2 != nil {
		ok, err := s.l2.Exists(ctx, table.String(), id)
		if err == nil && ok {
			return true, nil
		}
	}
	if s.l3 != nil {
		return s.l3.Exists(ctx, table.String(), int64(id))
	}
	return false, nil
}

// Count returns the number of persisted entries of table.
func (s *Store) Count(ctx context.Context, table DbTable) (int64, error) {
	if err := s.check(table); err != nil {
		return 0, err
	}
	if s.l3 == nil {
		return 0, ErrL3Unavailable
	}
	return s.l3.Count(ctx, table.String())
}

// List returns the entries of table matching q (nil q lists the first 100
// by id). Any row that fails to decode fails the whole call.
func (s *Store) List(ctx context.Context, table DbTable, q *Query) ([]Entry, error) {
	if err := s.check(table); err != nil {
		return nil, err
	}
	if s.l3 == nil {
		return nil, ErrL3Unavailable
	}
	if q == nil {
		empty := Q().Build()
		q = &empty
	}
	sql, args := q.ToSQL(table.String(), 100)
	rows, err := s.l3.Query(ctx, sql, args)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		e, err := s.entryFromRow(table, r)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// ────────────────────────────────────────────────────────────────────────────
// Cache invalidation
// ────────────────────────────────────────────────────────────────────────────

// Invalidate drops entry id of table from the cache tiers here and from L1
// on every node subscribed to the invalidation channel. L2 is kept when it
// is the system of record.
func (s *Store) Invalidate(ctx context.Context, table DbTable, id uint64) error {
	if err := s.check(table); err != nil {
		return err
	}
	s.l1.Delete(l1.Key(table.String(), id))
	if s.l2 != nil && s.l3 != nil {
		if err := s.l2.Delete(ctx, table.String(), id); err != nil {
			return err
		}
	}
	s.sync.publishInvalidation(ctx, table, id, opDelete)
	return nil
}

// InvalidateAll drops every cached entry of table.
func (s *Store) InvalidateAll(ctx context.Context, table DbTable) error {
	if err := s.check(table); err != nil {
		return err
	}
	s.l1.FlushPrefix(table.String() + ":")
	if s.l2 != nil && s.l3 != nil {
		if err := s.l2.InvalidateAll(ctx, table.String()); err != nil {
			return err
		}
	}
	s.sync.publishInvalidation(ctx, table, 0, opInvalidateAll)
	return nil
}

// ────────────────────────────────────────────────────────────────────────────
// Edit pipeline
// ────────────────────────────────────────────────────────────────────────────

// EncodeEdit serializes edit with the store's codec for transport to
// another process.
func (s *Store) EncodeEdit(edit EditEntry) ([]byte, error) {
	if edit.Model == nil {
		return nil, fmt.Errorf("%w: nil model", ErrEncodeFailed)
	}
	b, err := s.cfg.Codec.Marshal(edit.Envelope())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}
	return b, nil
}

// ApplyEncodedEdit decodes data produced by EncodeEdit and applies it.
func (s *Store) ApplyEncodedEdit(ctx context.Context, data []byte) (Entry, error) {
	var env Envelope
	if err := s.cfg.Codec.Unmarshal(data, &env); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	edit, err := env.EditEntry()
	if err != nil {
		return Entry{}, err
	}
	return s.Edit(ctx, env.Table, edit)
}

// ────────────────────────────────────────────────────────────────────────────
// Export / Import
// ────────────────────────────────────────────────────────────────────────────

const exportPageSize = 500

// Export writes every persisted entry of table to w as RowString lines,
// ordered by id, and returns the number written.
func (s *Store) Export(ctx context.Context, table DbTable, w io.Writer) (int, error) {
	if err := s.check(table); err != nil {
		return 0, err
	}
	if s.l3 == nil {
		return 0, ErrL3Unavailable
	}
	bw := bufio.NewWriter(w)
	var (
		n     int
		after uint64
	)
	for {
		q := Q().Where("id > $1", int64(after)).Limit(exportPageSize).Build()
		page, err := s.List(ctx, table, &q)
		if err != nil {
			return n, err
		}
		for _, e := range page {
			if _, err := bw.WriteString(e.RowString() + "\n"); err != nil {
				return n, err
			}
			n++
			after = e.ID
		}
		if len(page) < exportPageSize {
			return n, bw.Flush()
		}
	}
}

// Import reads RowString lines for table from r and stores them with their
// ids and timestamps. Every line is decoded before anything is written; a
// bad line aborts the import and is reported by line number.
func (s *Store) Import(ctx context.Context, table DbTable, r io.Reader) (int, error) {
	if err := s.check(table); err != nil {
		return 0, err
	}
	var entries []Entry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimRight(sc.Text(), "\r")
		if text == "" {
			continue
		}
		e, err := ParseRow(text, table)
		if err != nil {
			return 0, fmt.Errorf("line %d: %w", line, err)
		}
		if err := e.Model.Validate(); err != nil {
			return 0, fmt.Errorf("line %d: %w", line, err)
		}
		if s.l3 != nil {
			if err := checkBigint(e); err != nil {
				return 0, fmt.Errorf("line %d: %w", line, err)
			}
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	n, err := s.routerPutAll(ctx, table, entries)
	if err != nil {
		return n, err
	}
	s.logger.Info("exadb: import finished", "table", table.String(), "entries", n)
	return n, nil
}

// checkBigint rejects ids and timestamps that do not fit a BIGINT column.
func checkBigint(e Entry) error {
	for _, v := range []struct {
		name string
		val  uint64
	}{
		{"id", e.ID},
		{"timestamp_added", e.TimestampAdded},
		{"timestamp_changed", e.TimestampChanged},
	} {
		if v.val > math.MaxInt64 {
			return valueParseError(errOutOfRange, "%s %d", v.name, v.val)
		}
	}
	return nil
}

var errOutOfRange = errors.New("exceeds the BIGINT range")

// ────────────────────────────────────────────────────────────────────────────
// Stats / Close
// ────────────────────────────────────────────────────────────────────────────

// Stats returns a snapshot of operation counters.
func (s *Store) Stats() Stats {
	return Stats{
		Gets:      s.stats.Gets.Load(),
		Inserts:   s.stats.Inserts.Load(),
		Edits:     s.stats.Edits.Load(),
		Deletes:   s.stats.Deletes.Load(),
		Errors:    s.stats.Errors.Load(),
		L1Entries: s.l1.Stats().Entries,
	}
}

// Close stops background work and closes every tier. It is safe to call
// more than once.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.sync.stop()
	s.l1.Close()
	var err error
	if s.l2 != nil {
		err = s.l2.Close()
	}
	if s.l3 != nil {
		s.l3.Close()
	}
	return err
}

func (s *Store) check(table DbTable) error {
	if s.closed.Load() {
		return ErrUnavailable
	}
	if !table.valid() {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return nil
}

func (s *Store) observe(table DbTable, op string, start time.Time, err error) {
	s.metrics.RecordLatency(table.String(), op, s.cfg.Clock.Now().Sub(start))
	if err != nil {
		s.stats.Errors.Add(1)
		s.metrics.RecordError(table.String(), op)
	}
}
