package exadb

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/AndrewDonelson/exadb/internal/l1"
)

const defaultInvalidationChannel = "exadb:invalidate"

const (
	opSet           = "set"
	opDelete        = "delete"
	opInvalidateAll = "invalidate_all"
)

// invalidationMsg is the Redis pub/sub payload for L1 invalidation.
type invalidationMsg struct {
	Table  DbTable `json:"table" msgpack:"table"`
	ID     uint64  `json:"id" msgpack:"id"`
	Op     string  `json:"op" msgpack:"op"`
	Origin string  `json:"origin" msgpack:"origin"`
}

// syncEngine publishes and applies L1 invalidations over Redis pub/sub.
type syncEngine struct {
	s      *Store
	origin string
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func newSyncEngine(s *Store) *syncEngine {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return &syncEngine{s: s, origin: hex.EncodeToString(b[:]), stopCh: make(chan struct{})}
}

func (se *syncEngine) start() {
	if se.s.l2 != nil {
		se.wg.Add(1)
		go se.subscribeLoop()
	}
}

func (se *syncEngine) stop() {
	close(se.stopCh)
	se.wg.Wait()
}

func (se *syncEngine) publishInvalidation(ctx context.Context, table DbTable, id uint64, op string) {
	if se.s.l2 == nil {
		return
	}
	b, err := se.s.cfg.Codec.Marshal(invalidationMsg{Table: table, ID: id, Op: op, Origin: se.origin})
	if err != nil {
		se.s.logger.Warn("exadb: encode invalidation", "table", table.String(), "id", id, "err", err)
		return
	}
	if err := se.s.l2.Publish(ctx, se.s.cfg.InvalidationChannel, b); err != nil {
		se.s.logger.Debug("exadb: publish invalidation", "table", table.String(), "id", id, "err", err)
	}
}

func (se *syncEngine) subscribeLoop() {
	defer se.wg.Done()
	for {
		select {
		case <-se.stopCh:
			return
		default:
		}
		ctx, cancel := context.WithCancel(context.Background())
		sub := se.s.l2.Subscribe(ctx, se.s.cfg.InvalidationChannel)
		func() {
			defer cancel()
			msgCh := sub.Channel()
			for {
				select {
				case <-se.stopCh:
					_ = sub.Close()
					return
				case msg, ok := <-msgCh:
					if !ok {
						return
					}
					se.handleInvalidation([]byte(msg.Payload))
				}
			}
		}()
		select {
		case <-se.stopCh:
			return
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// handleInvalidation evicts the L1 entries named by a peer's message.
// Messages from this node are ignored; its L1 is already current.
func (se *syncEngine) handleInvalidation(payload []byte) {
	var msg invalidationMsg
	if err := se.s.cfg.Codec.Unmarshal(payload, &msg); err != nil {
		se.s.logger.Warn("exadb: malformed invalidation message", "err", err)
		return
	}
	if msg.Origin == se.origin {
		return
	}
	switch msg.Op {
	case opSet, opDelete:
		se.s.l1.Delete(l1.Key(msg.Table.String(), msg.ID))
	case opInvalidateAll:
		se.s.l1.FlushPrefix(msg.Table.String() + ":")
	default:
		se.s.logger.Warn("exadb: unknown invalidation op", "op", msg.Op)
	}
}
