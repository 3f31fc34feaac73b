package exadb

import (
	"errors"
	"fmt"
	"slices"
)

// Model is a decoded payload of one of the four tables. It is implemented
// only by Lobby, Object, Player and World.
type Model interface {
	fmt.Stringer
	// Table returns the table the payload is stored in.
	Table() DbTable
	// Validate reports whether the payload's string fields are free of
	// separator tokens, i.e. whether String round-trips.
	Validate() error
	model()
}

// decoder decodes one table's payload text.
type decoder struct {
	kind   string
	decode func(string) (Model, error)
}

func decodeAs[M Model](parse func(string) (M, error)) func(string) (Model, error) {
	return func(s string) (Model, error) {
		m, err := parse(s)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

var decoders = map[DbTable]decoder{
	Lobbies: {kind: "lobby", decode: decodeAs(ParseLobby)},
	Objects: {kind: "moodle object", decode: decodeAs(ParseObject)},
	Players: {kind: "player", decode: decodeAs(ParsePlayer)},
	Worlds:  {kind: "world", decode: decodeAs(ParseWorld)},
}

// ParseModel decodes s as a payload of table. Every decode failure matches
// ErrEntryParse; an out-of-range table matches ErrUnknownTable.
func ParseModel(s string, table DbTable) (Model, error) {
	d, ok := decoders[table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	m, err := d.decode(s)
	if err != nil {
		if !errors.Is(err, ErrEntryParse) {
			err = fmt.Errorf("%w: %w", ErrEntryParse, err)
		}
		return nil, fmt.Errorf("could not parse string to %s model: %w", d.kind, err)
	}
	return m, nil
}

// FormatModel encodes m; it is the inverse of ParseModel.
func FormatModel(m Model) string {
	return m.String()
}

// TableOf returns the table m is stored in.
func TableOf(m Model) DbTable {
	return m.Table()
}

// cloneModel copies m deeply enough that no slice or pointer is shared
// with the result.
func cloneModel(m Model) Model {
	switch v := m.(type) {
	case World:
		return cloneWorld(v)
	case Player:
		return clonePlayer(v)
	case Lobby:
		v.World = cloneWorld(v.World)
		players := slices.Clone(v.Players)
		for i := range players {
			players[i].Player = clonePlayer(players[i].Player)
		}
		v.Players = players
		return v
	default:
		return m
	}
}

func cloneWorld(w World) World {
	w.Objects = slices.Clone(w.Objects)
	return w
}

func clonePlayer(p Player) Player {
	if p.LobbyID != nil {
		id := *p.LobbyID
		p.LobbyID = &id
	}
	p.ObjectsInteractedWith = slices.Clone(p.ObjectsInteractedWith)
	return p
}
