package exadb_test

// integration_pg_test.go covers paths that need a real PostgreSQL instance:
//
//   1. Migrate / MigrationStatus
//   2. Insert id allocation from BIGSERIAL and the L3 → L2 → L1 back-fill
//   3. Edit / Delete / Exists / Count / List against stored rows
//   4. Export → Import into a fresh database
//   5. Encrypted payloads at rest

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/AndrewDonelson/exadb"
	"github.com/AndrewDonelson/exadb/internal/clock"
	"github.com/AndrewDonelson/exadb/internal/metrics"
	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testcontainers "github.com/testcontainers/testcontainers-go"
	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// ─── Fixtures ────────────────────────────────────────────────────────────────

const (
	pgTestImage = "postgres:16-alpine"
	pgTestDB    = "exadbintegration"
	pgTestUser  = "exadbtest"
	pgTestPass  = "exadbtest"
)

// startPostgres runs a container and returns its DSN. Skips if Docker is
// unavailable.
func startPostgres(t *testing.T) string {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	pgc, err := tcpg.Run(ctx, pgTestImage,
		tcpg.WithDatabase(pgTestDB),
		tcpg.WithUsername(pgTestUser),
		tcpg.WithPassword(pgTestPass),
		tcpg.BasicWaitStrategies(),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() { _ = pgc.Terminate(ctx) })

	dsn, err := pgc.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

type fullStack struct {
	s       *exadb.Store
	mini    *miniredis.Miniredis
	metrics *metrics.Counter
	clock   *clock.Mock
	dsn     string
}

// newFullStack builds a migrated Store over Postgres and miniredis.
func newFullStack(t *testing.T, dsn string, key []byte) fullStack {
	t.Helper()
	mr := miniredis.RunT(t)
	m := metrics.NewCounter()
	clk := clock.NewMock(t0)
	s := newStore(t, exadb.Config{
		PostgresDSN:   dsn,
		RedisAddr:     mr.Addr(),
		DefaultL1TTL:  5 * time.Minute,
		DefaultL2TTL:  30 * time.Minute,
		Metrics:       m,
		Clock:         clk,
		EncryptionKey: key,
	})
	require.NoError(t, s.Migrate(context.Background()), "Migrate must succeed")
	return fullStack{s: s, mini: mr, metrics: m, clock: clk, dsn: dsn}
}

// ─── Migrate ─────────────────────────────────────────────────────────────────

func TestIntegration_Migrate_Idempotent(t *testing.T) {
	fs := newFullStack(t, startPostgres(t), nil)
	ctx := context.Background()

	require.NoError(t, fs.s.Migrate(ctx))

	records, err := fs.s.MigrationStatus(ctx)
	require.NoError(t, err)
	require.Len(t, records, len(exadb.Tables()))
	for i, table := range exadb.Tables() {
		assert.Equal(t, table.String(), records[i].Table)
		assert.Equal(t, "create_table", records[i].Step)
		assert.False(t, records[i].AppliedAt.IsZero())
	}
}

// ─── CRUD through all tiers ──────────────────────────────────────────────────

func TestIntegration_InsertGetBackfill(t *testing.T) {
	fs := newFullStack(t, startPostgres(t), nil)
	ctx := context.Background()

	e1, err := fs.s.Insert(ctx, sampleLobby())
	require.NoError(t, err)
	e2, err := fs.s.Insert(ctx, sampleLobby())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), e1.ID)
	assert.Equal(t, uint64(2), e2.ID)

	// Drop both cache tiers so the read has to reach L3.
	fs.mini.FlushAll()
	require.NoError(t, fs.s.Invalidate(ctx, exadb.Lobbies, e1.ID))

	got, err := fs.s.Get(ctx, exadb.Lobbies, e1.ID)
	require.NoError(t, err)
	assert.Equal(t, e1, got)
	assert.Equal(t, int64(1), fs.metrics.Hits("lobbies", "l3"))
	assert.True(t, fs.mini.Exists("entry:lobbies:1"), "L2 back-filled")

	_, err = fs.s.Get(ctx, exadb.Lobbies, e1.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), fs.metrics.Hits("lobbies", "l1"))
}

func TestIntegration_EditDeleteExists(t *testing.T) {
	fs := newFullStack(t, startPostgres(t), nil)
	ctx := context.Background()

	e, err := fs.s.Insert(ctx, samplePlayer(nil))
	require.NoError(t, err)

	fs.clock.Advance(time.Minute)
	next := samplePlayer(ptr(uint64(3)))
	edited, err := fs.s.Edit(ctx, exadb.Players, exadb.EditEntry{ID: e.ID, Model: next})
	require.NoError(t, err)
	assert.Equal(t, e.TimestampAdded, edited.TimestampAdded)
	assert.Greater(t, edited.TimestampChanged, e.TimestampChanged)

	require.NoError(t, fs.s.Invalidate(ctx, exadb.Players, e.ID))
	got, err := fs.s.Get(ctx, exadb.Players, e.ID)
	require.NoError(t, err)
	assert.Equal(t, edited, got)

	require.NoError(t, fs.s.Delete(ctx, exadb.Players, e.ID))
	ok, err := fs.s.Exists(ctx, exadb.Players, e.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = fs.s.Edit(ctx, exadb.Players, exadb.EditEntry{ID: e.ID, Model: next})
	assert.ErrorIs(t, err, exadb.ErrNotFound)
}

func TestIntegration_CountList(t *testing.T) {
	fs := newFullStack(t, startPostgres(t), nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		fs.clock.Advance(time.Second)
		_, err := fs.s.Insert(ctx, sampleObjects()[i%2])
		require.NoError(t, err)
	}

	n, err := fs.s.Count(ctx, exadb.Objects)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	all, err := fs.s.List(ctx, exadb.Objects, nil)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, uint64(1), all[0].ID)

	since := all[2].TimestampChanged
	q := exadb.Q().ChangedSince(since).OrderBy("id").Desc().Limit(2).Build()
	page, err := fs.s.List(ctx, exadb.Objects, &q)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(5), page[0].ID)
	assert.Equal(t, uint64(4), page[1].ID)
}

// ─── Export / Import ─────────────────────────────────────────────────────────

func TestIntegration_ExportImport(t *testing.T) {
	dsn := startPostgres(t)
	src := newFullStack(t, dsn, nil)
	ctx := context.Background()

	var want []exadb.Entry
	for _, w := range []exadb.World{sampleWorld(), mustWorld(t, "1|2|0,0,0|"), sampleWorld()} {
		src.clock.Advance(time.Second)
		e, err := src.s.Insert(ctx, w)
		require.NoError(t, err)
		want = append(want, e)
	}
	require.NoError(t, src.s.Delete(ctx, exadb.Worlds, want[1].ID))
	want = append(want[:1], want[2])

	var buf bytes.Buffer
	n, err := src.s.Export(ctx, exadb.Worlds, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, want[0].RowString(), lines[0])

	// Wipe the table and load the export back.
	conn, err := pgx.Connect(ctx, dsn)
	require.NoError(t, err)
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "TRUNCATE worlds")
	require.NoError(t, err)
	src.mini.FlushAll()

	imported, err := src.s.Import(ctx, exadb.Worlds, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, imported)

	got, err := src.s.List(ctx, exadb.Worlds, nil)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// The BIGSERIAL sequence continues past the imported ids.
	e, err := src.s.Insert(ctx, sampleWorld())
	require.NoError(t, err)
	assert.Equal(t, want[1].ID+1, e.ID)
}

func TestIntegration_ImportRejectsIDsBeyondBigint(t *testing.T) {
	fs := newFullStack(t, startPostgres(t), nil)
	ctx := context.Background()

	rows := "1\t1\t1\t1|2|0,0,0|\n9223372036854775808\t1\t1\t1|2|0,0,0|\n"
	n, err := fs.s.Import(ctx, exadb.Worlds, strings.NewReader(rows))
	assert.ErrorIs(t, err, exadb.ErrValueParse)
	assert.Contains(t, err.Error(), "line 2")
	assert.Zero(t, n)

	count, err := fs.s.Count(ctx, exadb.Worlds)
	require.NoError(t, err)
	assert.Zero(t, count)
}

// ─── Encryption at rest ──────────────────────────────────────────────────────

func TestIntegration_EncryptedPayloads(t *testing.T) {
	dsn := startPostgres(t)
	fs := newFullStack(t, dsn, testKey())
	ctx := context.Background()

	w := mustWorld(t, "3|4|0,0,0|")
	e, err := fs.s.Insert(ctx, w)
	require.NoError(t, err)

	conn, err := pgx.Connect(ctx, dsn)
	require.NoError(t, err)
	defer conn.Close(ctx)
	var stored string
	require.NoError(t, conn.QueryRow(ctx, "SELECT payload FROM worlds WHERE id = $1", int64(e.ID)).Scan(&stored))
	assert.NotEqual(t, w.String(), stored)

	fs.mini.FlushAll()
	require.NoError(t, fs.s.Invalidate(ctx, exadb.Worlds, e.ID))
	got, err := fs.s.Get(ctx, exadb.Worlds, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e, got)

	// A store without the key cannot read the rows.
	plain := newStore(t, exadb.Config{PostgresDSN: dsn})
	_, err = plain.Get(ctx, exadb.Worlds, e.ID)
	assert.ErrorIs(t, err, exadb.ErrEntryParse)
}
