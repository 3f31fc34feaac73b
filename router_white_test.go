package exadb

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/AndrewDonelson/exadb/internal/codec"
	"github.com/AndrewDonelson/exadb/internal/l1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ── noopLogger ───────────────────────────────────────────────────────────────

func TestNoopLogger_AllMethods(t *testing.T) {
	l := noopLogger{}
	l.Info("info message", "key", "val")
	l.Warn("warn message", "key", 1)
	l.Error("error message", "err", errors.New("oops"))
	l.Debug("debug message", "k1", "v1", "k2", 2)
}

func newWhiteStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	s, err := NewStore(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// ── Config ───────────────────────────────────────────────────────────────────

func TestConfig_Defaults(t *testing.T) {
	var c Config
	c.defaults()
	assert.Equal(t, "msgpack", c.Codec.Name())
	assert.Equal(t, 5*time.Minute, c.DefaultL1TTL)
	assert.Equal(t, 30*time.Minute, c.DefaultL2TTL)
	assert.Equal(t, 100_000, c.L1Pool.MaxEntries)
	assert.Equal(t, defaultInvalidationChannel, c.InvalidationChannel)
	assert.Equal(t, int32(20), c.L3Pool.MaxConns)
	assert.NoError(t, c.validate())
}

func TestConfig_KeepsExplicitValues(t *testing.T) {
	c := Config{Codec: codec.JSON{}, DefaultL1TTL: time.Second, InvalidationChannel: "x"}
	c.defaults()
	assert.Equal(t, "json", c.Codec.Name())
	assert.Equal(t, time.Second, c.DefaultL1TTL)
	assert.Equal(t, "x", c.InvalidationChannel)
}

// ── Payload sealing ──────────────────────────────────────────────────────────

func TestSealOpenPayload(t *testing.T) {
	enc, err := NewAES256GCM(make([]byte, 32))
	require.NoError(t, err)

	sealed, err := sealPayload(enc, "1|2|0,0,0|")
	require.NoError(t, err)
	assert.NotEqual(t, "1|2|0,0,0|", sealed)

	plain, err := openPayload(enc, sealed)
	require.NoError(t, err)
	assert.Equal(t, "1|2|0,0,0|", plain)

	_, err = openPayload(enc, "not base64!")
	assert.ErrorIs(t, err, ErrDecodeFailed)

	passthrough, err := sealPayload(nil, "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", passthrough)
}

// ── Invalidation handling ────────────────────────────────────────────────────

func TestHandleInvalidation(t *testing.T) {
	s := newWhiteStore(t, Config{Codec: codec.JSON{}})
	ctx := context.Background()

	e, err := s.Insert(ctx, World{Width: 1, Height: 1})
	require.NoError(t, err)
	key := l1.Key(Worlds.String(), e.ID)

	send := func(msg invalidationMsg) {
		b, err := s.cfg.Codec.Marshal(msg)
		require.NoError(t, err)
		s.sync.handleInvalidation(b)
	}

	// Own messages are ignored.
	send(invalidationMsg{Table: Worlds, ID: e.ID, Op: opSet, Origin: s.sync.origin})
	_, ok := s.l1.Get(key)
	assert.True(t, ok)

	// Malformed and unknown messages change nothing.
	s.sync.handleInvalidation([]byte("{"))
	send(invalidationMsg{Table: Worlds, ID: e.ID, Op: "rename", Origin: "peer"})
	_, ok = s.l1.Get(key)
	assert.True(t, ok)

	send(invalidationMsg{Table: Worlds, ID: e.ID, Op: opDelete, Origin: "peer"})
	_, ok = s.l1.Get(key)
	assert.False(t, ok)
}

func TestHandleInvalidation_All(t *testing.T) {
	s := newWhiteStore(t, Config{})
	ctx := context.Background()

	w, err := s.Insert(ctx, World{})
	require.NoError(t, err)
	o, err := s.Insert(ctx, Object{Link: "x"})
	require.NoError(t, err)

	b, err := s.cfg.Codec.Marshal(invalidationMsg{Table: Worlds, Op: opInvalidateAll, Origin: "peer"})
	require.NoError(t, err)
	s.sync.handleInvalidation(b)

	_, ok := s.l1.Get(l1.Key(Worlds.String(), w.ID))
	assert.False(t, ok)
	_, ok = s.l1.Get(l1.Key(Objects.String(), o.ID))
	assert.True(t, ok)
}

// ── Local id allocation ──────────────────────────────────────────────────────

func TestRaiseLocalSeq(t *testing.T) {
	s := newWhiteStore(t, Config{})
	s.raiseLocalSeq(Players, 10)
	s.raiseLocalSeq(Players, 4)
	assert.Equal(t, uint64(10), s.seq[Players].Load())
	assert.Equal(t, uint64(0), s.seq[Worlds].Load())
}

func TestSetL1_NeverExpiresWithoutBackingTier(t *testing.T) {
	s := newWhiteStore(t, Config{DefaultL1TTL: time.Millisecond})
	e, err := s.Insert(context.Background(), Object{Link: "x"})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, ok := s.l1.Get(l1.Key(Objects.String(), e.ID))
	assert.True(t, ok)
}

// ── checkBigint ──────────────────────────────────────────────────────────────

func TestCheckBigint(t *testing.T) {
	ok := Entry{ID: math.MaxInt64, TimestampAdded: 1, TimestampChanged: 2}
	assert.NoError(t, checkBigint(ok))

	for _, e := range []Entry{
		{ID: math.MaxInt64 + 1},
		{ID: 1, TimestampAdded: math.MaxUint64},
		{ID: 1, TimestampChanged: 1 << 63},
	} {
		err := checkBigint(e)
		assert.ErrorIs(t, err, ErrValueParse)
		assert.ErrorIs(t, err, ErrEntryParse)
	}
}
