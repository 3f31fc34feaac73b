package exadb_test

import (
	"context"
	"testing"
	"time"

	"github.com/AndrewDonelson/exadb"
	"github.com/AndrewDonelson/exadb/internal/codec"
	"github.com/AndrewDonelson/exadb/internal/metrics"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoNodes starts two stores sharing one miniredis and waits until both
// are subscribed to the invalidation channel.
func twoNodes(t *testing.T, cfg exadb.Config) (*exadb.Store, *exadb.Store, *metrics.Counter) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg.RedisAddr = mr.Addr()
	if cfg.InvalidationChannel == "" {
		cfg.InvalidationChannel = "exadb:invalidate"
	}

	ds1 := newStore(t, cfg)
	m2 := metrics.NewCounter()
	cfg2 := cfg
	cfg2.Metrics = m2
	ds2 := newStore(t, cfg2)

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(cfg.InvalidationChannel)[cfg.InvalidationChannel] == 2
	}, 2*time.Second, 10*time.Millisecond)
	return ds1, ds2, m2
}

// ── Invalidation via pub/sub ──────────────────────────────────────────────────

func TestSync_EditEvictsPeerL1(t *testing.T) {
	for _, c := range []codec.Codec{codec.JSON{}, codec.MsgPack{}} {
		t.Run(c.Name(), func(t *testing.T) {
			ds1, ds2, _ := twoNodes(t, exadb.Config{Codec: c})
			ctx := context.Background()

			e, err := ds1.Insert(ctx, sampleWorld())
			require.NoError(t, err)

			// Warm ds2's L1.
			pre, err := ds2.Get(ctx, exadb.Worlds, e.ID)
			require.NoError(t, err)
			assert.Equal(t, e.Model, pre.Model)

			next := mustWorld(t, "9|9|1,1,1|")
			_, err = ds1.Edit(ctx, exadb.Worlds, exadb.EditEntry{ID: e.ID, Model: next})
			require.NoError(t, err)

			assert.Eventually(t, func() bool {
				got, err := ds2.Get(ctx, exadb.Worlds, e.ID)
				return err == nil && assert.ObjectsAreEqual(next, got.Model)
			}, 2*time.Second, 10*time.Millisecond)
		})
	}
}

func TestSync_DeleteEvictsPeerL1(t *testing.T) {
	ds1, ds2, _ := twoNodes(t, exadb.Config{})
	ctx := context.Background()

	e, err := ds1.Insert(ctx, samplePlayer(nil))
	require.NoError(t, err)
	_, err = ds2.Get(ctx, exadb.Players, e.ID)
	require.NoError(t, err)

	require.NoError(t, ds1.Delete(ctx, exadb.Players, e.ID))

	assert.Eventually(t, func() bool {
		_, err := ds2.Get(ctx, exadb.Players, e.ID)
		return err != nil
	}, 2*time.Second, 10*time.Millisecond)
	_, err = ds2.Get(ctx, exadb.Players, e.ID)
	assert.ErrorIs(t, err, exadb.ErrNotFound)
}

func TestSync_InvalidateAllFlushesPeerTable(t *testing.T) {
	ds1, ds2, m2 := twoNodes(t, exadb.Config{})
	ctx := context.Background()

	w, err := ds1.Insert(ctx, sampleWorld())
	require.NoError(t, err)
	p, err := ds1.Insert(ctx, samplePlayer(nil))
	require.NoError(t, err)
	// Let the insert notifications reach ds2 before warming its L1.
	time.Sleep(100 * time.Millisecond)
	_, err = ds2.Get(ctx, exadb.Worlds, w.ID)
	require.NoError(t, err)
	_, err = ds2.Get(ctx, exadb.Players, p.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), m2.Hits("worlds", "l2"))

	require.NoError(t, ds1.InvalidateAll(ctx, exadb.Worlds))

	// ds2 reloads the world from L2 once its L1 copy is gone.
	assert.Eventually(t, func() bool {
		_, err := ds2.Get(ctx, exadb.Worlds, w.ID)
		return err == nil && m2.Hits("worlds", "l2") >= 2
	}, 2*time.Second, 10*time.Millisecond)

	// Other tables keep their L1 entries.
	_, err = ds2.Get(ctx, exadb.Players, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), m2.Hits("players", "l1"))
}

func TestSync_CustomChannel(t *testing.T) {
	ds1, ds2, _ := twoNodes(t, exadb.Config{InvalidationChannel: "game:cache"})
	ctx := context.Background()

	e, err := ds1.Insert(ctx, sampleObjects()[0])
	require.NoError(t, err)
	_, err = ds2.Get(ctx, exadb.Objects, e.ID)
	require.NoError(t, err)

	next := sampleObjects()[1]
	_, err = ds1.Edit(ctx, exadb.Objects, exadb.EditEntry{ID: e.ID, Model: next})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		got, err := ds2.Get(ctx, exadb.Objects, e.ID)
		return err == nil && assert.ObjectsAreEqual(next, got.Model)
	}, 2*time.Second, 10*time.Millisecond)
}
