package exadb

import (
	"fmt"
	"strings"
)

// DbTable names one logical storage table.
type DbTable int

const (
	Lobbies DbTable = iota
	Objects
	Players
	Worlds
)

var tableNames = [...]string{
	Lobbies: "lobbies",
	Objects: "moodle_objects",
	Players: "players",
	Worlds:  "worlds",
}

// Tables returns every table in declaration order.
func Tables() []DbTable {
	return []DbTable{Lobbies, Objects, Players, Worlds}
}

// String returns the canonical lowercase name, e.g. "moodle_objects".
func (t DbTable) String() string {
	if !t.valid() {
		return fmt.Sprintf("DbTable(%d)", int(t))
	}
	return tableNames[t]
}

func (t DbTable) valid() bool {
	return t >= 0 && int(t) < len(tableNames)
}

// ParseTable resolves name case-insensitively against every table's
// canonical name.
func ParseTable(name string) (DbTable, error) {
	for _, t := range Tables() {
		if strings.EqualFold(t.String(), name) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTable, name)
}

// MarshalText implements encoding.TextMarshaler.
func (t DbTable) MarshalText() ([]byte, error) {
	if !t.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTable, int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *DbTable) UnmarshalText(b []byte) error {
	v, err := ParseTable(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
