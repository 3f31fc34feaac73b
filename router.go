package exadb

import (
	"context"
	"errors"
	"fmt"

	"github.com/AndrewDonelson/exadb/internal/clock"
	"github.com/AndrewDonelson/exadb/internal/l1"
	"github.com/AndrewDonelson/exadb/internal/l2"
	"github.com/AndrewDonelson/exadb/internal/l3"
)

// ────────────────────────────────────────────────────────────────────────────
// Read path
// ────────────────────────────────────────────────────────────────────────────

// routerGet attempts L1 → L2 → L3 and back-fills upper tiers on a miss.
func (s *Store) routerGet(ctx context.Context, table DbTable, id uint64) (Entry, error) {
	name := table.String()

	// L1 hit; callers get their own copy of the model.
	if raw, ok := s.l1.Get(l1.Key(name, id)); ok {
		if e, ok := raw.(Entry); ok {
			s.metrics.RecordHit(name, "l1")
			e.Model = cloneModel(e.Model)
			return e, nil
		}
	}
	s.metrics.RecordMiss(name, "l1")

	// L2 hit
	if s.l2 != nil {
		e, err := s.readFromL2(ctx, table, id)
		switch {
		case err == nil:
			s.metrics.RecordHit(name, "l2")
			s.setL1(e)
			return e, nil
		case errors.Is(err, l2.ErrMiss):
		default:
			// A corrupt or unreachable cache falls through to L3.
			s.logger.Warn("exadb: l2 read failed", "table", name, "id", id, "err", err)
			if s.l3 == nil {
				return Entry{}, err
			}
		}
	}
	s.metrics.RecordMiss(name, "l2")

	// L3 read
	if s.l3 != nil {
		row, err := s.l3.Get(ctx, name, int64(id))
		if errors.Is(err, l3.ErrNoRow) {
			return Entry{}, fmt.Errorf("%w: %s %d", ErrNotFound, name, id)
		}
		if err != nil {
			return Entry{}, err
		}
		e, err := s.entryFromRow(table, row)
		if err != nil {
			return Entry{}, err
		}
		s.metrics.RecordHit(name, "l3")
		// back-fill L2 then L1
		s.setL2(ctx, e)
		s.setL1(e)
		return e, nil
	}
	return Entry{}, fmt.Errorf("%w: %s %d", ErrNotFound, name, id)
}

func (s *Store) readFromL2(ctx context.Context, table DbTable, id uint64) (Entry, error) {
	var env Envelope
	if err := s.l2.Get(ctx, table.String(), id, &env); err != nil {
		return Entry{}, err
	}
	if env.Table != table || env.ID != id {
		return Entry{}, fmt.Errorf("%w: l2 holds %s %d under %s %d", ErrDecodeFailed, env.Table, env.ID, table, id)
	}
	payload, err := openPayload(s.encryptor, env.Payload)
	if err != nil {
		return Entry{}, err
	}
	env.Payload = payload
	return env.Entry()
}

// entryFromRow opens and decodes an L3 row.
func (s *Store) entryFromRow(table DbTable, r l3.Row) (Entry, error) {
	payload, err := openPayload(s.encryptor, r.Payload)
	if err != nil {
		return Entry{}, err
	}
	m, err := ParseModel(payload, table)
	if err != nil {
		return Entry{}, fmt.Errorf("%s row %d: %w", table, r.ID, err)
	}
	return Entry{
		ID:               uint64(r.ID),
		TimestampAdded:   uint64(r.TimestampAdded),
		TimestampChanged: uint64(r.TimestampChanged),
		Model:            m,
	}, nil
}

// ────────────────────────────────────────────────────────────────────────────
// Write path
// ────────────────────────────────────────────────────────────────────────────

// routerInsert assigns an id from L3, else from the L2 sequence, else from
// the in-process counter, then writes through every tier.
func (s *Store) routerInsert(ctx context.Context, e Entry) (Entry, error) {
	table := e.Table()
	name := table.String()
	switch {
	case s.l3 != nil:
		payload, err := sealPayload(s.encryptor, e.Model.String())
		if err != nil {
			return Entry{}, err
		}
		id, err := s.l3.Insert(ctx, name, int64(e.TimestampAdded), int64(e.TimestampChanged), payload)
		if err != nil {
			return Entry{}, err
		}
		e.ID = uint64(id)
	case s.l2 != nil:
		id, err := s.l2.NextID(ctx, name)
		if err != nil {
			return Entry{}, fmt.Errorf("%w: %w", ErrL2Unavailable, err)
		}
		e.ID = id
	default:
		e.ID = s.seq[table].Add(1)
	}
	if err := s.writeCaches(ctx, e, s.l3 == nil); err != nil {
		return Entry{}, err
	}
	s.sync.publishInvalidation(ctx, table, e.ID, opSet)
	return e, nil
}

// routerEdit loads the current entry for its TimestampAdded and writes the
// replacement through every tier.
func (s *Store) routerEdit(ctx context.Context, table DbTable, edit EditEntry) (Entry, error) {
	cur, err := s.routerGet(ctx, table, edit.ID)
	if err != nil {
		return Entry{}, err
	}
	e := Entry{
		ID:               edit.ID,
		TimestampAdded:   cur.TimestampAdded,
		TimestampChanged: max(clock.Millis(s.cfg.Clock), cur.TimestampChanged),
		Model:            edit.Model,
	}
	if s.l3 != nil {
		payload, err := sealPayload(s.encryptor, e.Model.String())
		if err != nil {
			return Entry{}, err
		}
		err = s.l3.Update(ctx, table.String(), int64(e.ID), int64(e.TimestampChanged), payload)
		if errors.Is(err, l3.ErrNoRow) {
			s.evict(ctx, table, e.ID)
			return Entry{}, fmt.Errorf("%w: %s %d", ErrNotFound, table, e.ID)
		}
		if err != nil {
			return Entry{}, err
		}
	}
	if err := s.writeCaches(ctx, e, s.l3 == nil); err != nil {
		return Entry{}, err
	}
	s.sync.publishInvalidation(ctx, table, e.ID, opSet)
	return e, nil
}

// routerPut stores e with its own id and timestamps, raising the id
// allocator past it.
func (s *Store) routerPut(ctx context.Context, e Entry) error {
	table := e.Table()
	name := table.String()
	if s.l3 != nil {
		payload, err := sealPayload(s.encryptor, e.Model.String())
		if err != nil {
			return err
		}
		err = s.l3.Upsert(ctx, name, l3.Row{
			ID:               int64(e.ID),
			TimestampAdded:   int64(e.TimestampAdded),
			TimestampChanged: int64(e.TimestampChanged),
			Payload:          payload,
		})
		if err != nil {
			return err
		}
	} else if s.l2 != nil {
		if err := s.l2.RaiseSequence(ctx, name, e.ID); err != nil {
			return fmt.Errorf("%w: %w", ErrL2Unavailable, err)
		}
	}
	s.raiseLocalSeq(table, e.ID)
	if err := s.writeCaches(ctx, e, s.l3 == nil); err != nil {
		return err
	}
	s.sync.publishInvalidation(ctx, table, e.ID, opSet)
	return nil
}

// routerPutAll stores imported entries. An empty L3 table is bulk-loaded
// with COPY; otherwise rows are upserted one at a time.
func (s *Store) routerPutAll(ctx context.Context, table DbTable, entries []Entry) (int, error) {
	if s.l3 != nil && len(entries) > 0 {
		name := table.String()
		n, err := s.l3.Count(ctx, name)
		if err != nil {
			return 0, err
		}
		if n == 0 {
			rows := make([]l3.Row, len(entries))
			for i, e := range entries {
				payload, err := sealPayload(s.encryptor, e.Model.String())
				if err != nil {
					return 0, err
				}
				rows[i] = l3.Row{
					ID:               int64(e.ID),
					TimestampAdded:   int64(e.TimestampAdded),
					TimestampChanged: int64(e.TimestampChanged),
					Payload:          payload,
				}
			}
			if _, err := s.l3.CopyRows(ctx, name, rows); err != nil {
				return 0, err
			}
			for _, e := range entries {
				s.raiseLocalSeq(table, e.ID)
				s.setL2(ctx, e)
				s.setL1(e)
			}
			s.sync.publishInvalidation(ctx, table, 0, opInvalidateAll)
			return len(entries), nil
		}
	}
	for i, e := range entries {
		if err := s.routerPut(ctx, e); err != nil {
			return i, err
		}
	}
	return len(entries), nil
}

func (s *Store) raiseLocalSeq(table DbTable, id uint64) {
	for {
		cur := s.seq[table].Load()
		if cur >= id || s.seq[table].CompareAndSwap(cur, id) {
			return
		}
	}
}

// writeCaches fills L2 and L1. When L2 is the system of record its
// failure is returned; otherwise it is logged.
func (s *Store) writeCaches(ctx context.Context, e Entry, l2Authoritative bool) error {
	if s.l2 != nil {
		if err := s.putL2(ctx, e, l2Authoritative); err != nil {
			if l2Authoritative {
				return fmt.Errorf("%w: %w", ErrL2Unavailable, err)
			}
			s.logger.Warn("exadb: l2 write failed", "table", e.Table().String(), "id", e.ID, "err", err)
		}
	}
	s.setL1(e)
	return nil
}

// setL2 back-fills L2, logging failures.
func (s *Store) setL2(ctx context.Context, e Entry) {
	if s.l2 == nil {
		return
	}
	if err := s.putL2(ctx, e, false); err != nil {
		s.logger.Warn("exadb: l2 back-fill failed", "table", e.Table().String(), "id", e.ID, "err", err)
	}
}

// putL2 writes the sealed envelope. Entries whose only copy is L2 never
// expire.
func (s *Store) putL2(ctx context.Context, e Entry, persistent bool) error {
	env := e.Envelope()
	payload, err := sealPayload(s.encryptor, env.Payload)
	if err != nil {
		return err
	}
	env.Payload = payload
	ttl := s.cfg.DefaultL2TTL
	if persistent {
		ttl = 0
	}
	return s.l2.Set(ctx, e.Table().String(), e.ID, env, ttl)
}

func (s *Store) setL1(e Entry) {
	ttl := s.cfg.DefaultL1TTL
	if s.l2 == nil && s.l3 == nil {
		// L1 is the only copy.
		ttl = -1
	}
	e.Model = cloneModel(e.Model)
	s.l1.Set(l1.Key(e.Table().String(), e.ID), e, ttl)
}

// evict drops id from the caches without touching L3.
func (s *Store) evict(ctx context.Context, table DbTable, id uint64) {
	s.l1.Delete(l1.Key(table.String(), id))
	if s.l2 != nil {
		_ = s.l2.Delete(ctx, table.String(), id)
	}
}

// ────────────────────────────────────────────────────────────────────────────
// Delete path
// ────────────────────────────────────────────────────────────────────────────

func (s *Store) routerDelete(ctx context.Context, table DbTable, id uint64) error {
	name := table.String()
	s.l1.Delete(l1.Key(name, id))
	if s.l2 != nil {
		if err := s.l2.Delete(ctx, name, id); err != nil {
			if s.l3 == nil {
				return fmt.Errorf("%w: %w", ErrL2Unavailable, err)
			}
			s.logger.Warn("exadb: l2 delete failed", "table", name, "id", id, "err", err)
		}
	}
	if s.l3 != nil {
		if err := s.l3.Delete(ctx, name, int64(id)); err != nil {
			return err
		}
	}
	s.sync.publishInvalidation(ctx, table, id, opDelete)
	return nil
}
