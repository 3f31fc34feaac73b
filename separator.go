package exadb

import (
	"fmt"
	"strings"
)

// Separator tokens, one per nesting level, outermost first. Every codec
// joins its fields with its level's token and splits on it exactly; there
// is no escaping, so a string field must not contain its own token or any
// shallower one (see Validate on each model).
const (
	MainSeparator           = "\t" // Entry row: id, added, changed, payload
	LobbySeparator          = "}"  // Lobby: name, world, players
	LobbyPlayersSeparator   = "]"  // Lobby player list
	LobbyPlayerSeparator    = "{"  // Lobby player: id, player
	PlayerSeparator         = ">"  // Player fields
	PlayerPositionSeparator = ":"  // Player position x:y:z
	PlayerObjectsSeparator  = "^"  // Objects a player interacted with
	WorldSeparator          = "|"  // World fields
	WorldObjectsSeparator   = "<"  // World object list
	ObjectSeparator         = " "  // Object: coords, link
)

// reserved token sets per string field, from the row terminators and the
// field's level outwards.
var (
	lobbyNameReserved = []string{"\n", "\r", MainSeparator, LobbySeparator}
	usernameReserved  = []string{
		"\n", "\r", MainSeparator, LobbySeparator, LobbyPlayersSeparator, LobbyPlayerSeparator, PlayerSeparator,
	}
	linkReserved = []string{
		"\n", "\r", MainSeparator, LobbySeparator, LobbyPlayersSeparator, LobbyPlayerSeparator, PlayerSeparator,
		PlayerObjectsSeparator, WorldSeparator, WorldObjectsSeparator, ObjectSeparator,
	}
)

// splitFields splits s on sep and requires exactly n fields.
func splitFields(s, sep string, n int, what string) ([]string, error) {
	fields := strings.Split(s, sep)
	if len(fields) != n {
		return nil, entryParseError("%s could not be parsed from '%s': expected %d fields, got %d",
			what, s, n, len(fields))
	}
	return fields, nil
}

// splitList splits s on sep and drops empty segments.
func splitList(s, sep string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, sep)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinList[T fmt.Stringer](items []T, sep string) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = it.String()
	}
	return strings.Join(parts, sep)
}

func checkReserved(field, value string, reserved []string) error {
	for _, tok := range reserved {
		if strings.Contains(value, tok) {
			return fmt.Errorf("%w: %s %q contains %q", ErrReservedToken, field, value, tok)
		}
	}
	return nil
}
