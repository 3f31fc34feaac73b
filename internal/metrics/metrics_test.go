package metrics_test

import (
	"testing"
	"time"

	"github.com/AndrewDonelson/exadb/internal/metrics"
	"github.com/stretchr/testify/assert"
)

func TestNoop_Implements(t *testing.T) {
	var r metrics.MetricsRecorder = metrics.Noop{}
	r.RecordHit("worlds", "l1")
	r.RecordMiss("worlds", "l2")
	r.RecordLatency("worlds", "get", time.Millisecond)
	r.RecordError("worlds", "set")
}

func TestCounter(t *testing.T) {
	c := metrics.NewCounter()
	var r metrics.MetricsRecorder = c
	r.RecordHit("worlds", "l1")
	r.RecordHit("worlds", "l1")
	r.RecordMiss("players", "l2")
	r.RecordError("lobbies", "get")
	r.RecordLatency("lobbies", "get", time.Second)

	assert.Equal(t, int64(2), c.Hits("worlds", "l1"))
	assert.Equal(t, int64(0), c.Hits("worlds", "l2"))
	assert.Equal(t, int64(1), c.Misses("players", "l2"))
	assert.Equal(t, int64(1), c.Errors("lobbies", "get"))
}
