package exadb

import (
	"fmt"
	"strconv"
	"strings"
)

// Entry is a persisted row: a payload with its id and timestamps (unix
// milliseconds).
type Entry struct {
	ID               uint64
	TimestampAdded   uint64
	TimestampChanged uint64
	Model            Model
}

// Table returns the table the entry's payload belongs to.
func (e Entry) Table() DbTable { return e.Model.Table() }

// RowString flattens e into "id\tadded\tchanged\tpayload".
func (e Entry) RowString() string {
	return strings.Join([]string{
		strconv.FormatUint(e.ID, 10),
		strconv.FormatUint(e.TimestampAdded, 10),
		strconv.FormatUint(e.TimestampChanged, 10),
		e.Model.String(),
	}, MainSeparator)
}

// ParseRow rebuilds an Entry from a RowString line stored in table.
func ParseRow(row string, table DbTable) (Entry, error) {
	f, err := splitFields(row, MainSeparator, 4, "entry")
	if err != nil {
		return Entry{}, err
	}
	var nums [3]uint64
	for i, name := range [...]string{"id", "timestamp added", "timestamp changed"} {
		if nums[i], err = strconv.ParseUint(f[i], 10, 64); err != nil {
			return Entry{}, valueParseError(err, "entry '%s' has an invalid %s", row, name)
		}
	}
	m, err := ParseModel(f[3], table)
	if err != nil {
		return Entry{}, fmt.Errorf("entry %d: %w", nums[0], err)
	}
	return Entry{ID: nums[0], TimestampAdded: nums[1], TimestampChanged: nums[2], Model: m}, nil
}

// EditEntry is an update instruction: replace the payload of row ID.
type EditEntry struct {
	ID    uint64
	Model Model
}

// Table returns the table the edit targets.
func (e EditEntry) Table() DbTable { return e.Model.Table() }

// Envelope is the table-tagged wire form of an Entry or EditEntry, used
// for cache values and edit messages.
type Envelope struct {
	Table            DbTable `json:"table" msgpack:"table"`
	ID               uint64  `json:"id" msgpack:"id"`
	TimestampAdded   uint64  `json:"timestamp_added,omitempty" msgpack:"timestamp_added,omitempty"`
	TimestampChanged uint64  `json:"timestamp_changed,omitempty" msgpack:"timestamp_changed,omitempty"`
	Payload          string  `json:"payload" msgpack:"payload"`
}

// Envelope returns the wire form of e.
func (e Entry) Envelope() Envelope {
	return Envelope{
		Table:            e.Table(),
		ID:               e.ID,
		TimestampAdded:   e.TimestampAdded,
		TimestampChanged: e.TimestampChanged,
		Payload:          e.Model.String(),
	}
}

// Envelope returns the wire form of e; timestamps are left zero.
func (e EditEntry) Envelope() Envelope {
	return Envelope{Table: e.Table(), ID: e.ID, Payload: e.Model.String()}
}

// Entry decodes the payload and rebuilds the Entry.
func (env Envelope) Entry() (Entry, error) {
	m, err := ParseModel(env.Payload, env.Table)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		ID:               env.ID,
		TimestampAdded:   env.TimestampAdded,
		TimestampChanged: env.TimestampChanged,
		Model:            m,
	}, nil
}

// EditEntry decodes the payload and rebuilds the EditEntry.
func (env Envelope) EditEntry() (EditEntry, error) {
	m, err := ParseModel(env.Payload, env.Table)
	if err != nil {
		return EditEntry{}, err
	}
	return EditEntry{ID: env.ID, Model: m}, nil
}
