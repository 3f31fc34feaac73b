package exadb_test

import (
	"testing"

	"github.com/AndrewDonelson/exadb"
	"github.com/stretchr/testify/assert"
)

func TestQuery_BasicSelect(t *testing.T) {
	sql, args := exadb.Q().Build().ToSQL("worlds", 100)
	assert.Equal(t, `SELECT id, timestamp_added, timestamp_changed, payload FROM "worlds" ORDER BY id LIMIT 100`, sql)
	assert.Empty(t, args)
}

func TestQuery_Where(t *testing.T) {
	sql, args := exadb.Q().Where("payload LIKE $1", "%lobby%").Build().ToSQL("lobbies", 100)
	assert.Contains(t, sql, "WHERE (payload LIKE $1)")
	assert.Equal(t, []any{"%lobby%"}, args)
}

func TestQuery_ChangedSinceAfterWhere(t *testing.T) {
	sql, args := exadb.Q().Where("id > $1", 5).ChangedSince(1000).Build().ToSQL("players", 0)
	assert.Contains(t, sql, "WHERE (id > $1) AND timestamp_changed >= $2")
	assert.Equal(t, []any{5, int64(1000)}, args)
	assert.NotContains(t, sql, "LIMIT")
}

func TestQuery_OrderByDesc(t *testing.T) {
	sql, _ := exadb.Q().OrderBy("timestamp_changed").Desc().Build().ToSQL("worlds", 50)
	assert.Contains(t, sql, "ORDER BY timestamp_changed DESC")
}

func TestQuery_OrderByUnknownColumnFallsBackToID(t *testing.T) {
	sql, _ := exadb.Q().OrderBy("1; DROP TABLE worlds").Build().ToSQL("worlds", 50)
	assert.Contains(t, sql, "ORDER BY id LIMIT 50")
}

func TestQuery_LimitOffset(t *testing.T) {
	sql, _ := exadb.Q().Limit(10).Offset(20).Build().ToSQL("worlds", 100)
	assert.Contains(t, sql, "LIMIT 10 OFFSET 20")

	sql, _ = exadb.Q().Limit(-1).Build().ToSQL("worlds", 100)
	assert.NotContains(t, sql, "LIMIT")
}
