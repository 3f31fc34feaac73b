package exadb

import (
	"fmt"
	"strconv"
	"strings"
)

// LobbyPlayer is a player embedded in a lobby, keyed by its player id.
type LobbyPlayer struct {
	ID     uint64
	Player Player
}

// String encodes lp as "id{player".
func (lp LobbyPlayer) String() string {
	return strconv.FormatUint(lp.ID, 10) + LobbyPlayerSeparator + lp.Player.String()
}

// ParseLobbyPlayer decodes the form produced by LobbyPlayer.String.
func ParseLobbyPlayer(s string) (LobbyPlayer, error) {
	f, err := splitFields(s, LobbyPlayerSeparator, 2, "lobby player")
	if err != nil {
		return LobbyPlayer{}, err
	}
	id, err := strconv.ParseUint(f[0], 10, 64)
	if err != nil {
		return LobbyPlayer{}, valueParseError(err, "lobby player '%s' has an invalid id", s)
	}
	p, err := ParsePlayer(f[1])
	if err != nil {
		return LobbyPlayer{}, fmt.Errorf("lobby player %d: %w", id, err)
	}
	return LobbyPlayer{ID: id, Player: p}, nil
}

// Lobby is a named session on a world with the players that joined it.
type Lobby struct {
	Name    string
	World   World
	Players []LobbyPlayer
}

// String encodes l as "name}world}players".
func (l Lobby) String() string {
	return strings.Join([]string{
		l.Name,
		l.World.String(),
		joinList(l.Players, LobbyPlayersSeparator),
	}, LobbySeparator)
}

// ParseLobby decodes the form produced by Lobby.String.
func ParseLobby(s string) (Lobby, error) {
	f, err := splitFields(s, LobbySeparator, 3, "lobby")
	if err != nil {
		return Lobby{}, err
	}
	world, err := ParseWorld(f[1])
	if err != nil {
		return Lobby{}, fmt.Errorf("lobby '%s': %w", s, err)
	}
	var players []LobbyPlayer
	for _, item := range strings.Split(f[2], LobbyPlayersSeparator) {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		lp, err := ParseLobbyPlayer(item)
		if err != nil {
			return Lobby{}, fmt.Errorf("lobby '%s': %w", s, err)
		}
		players = append(players, lp)
	}
	return Lobby{Name: f[0], World: world, Players: players}, nil
}

// PlayerIDs returns the ids of the lobby's players in order.
func (l Lobby) PlayerIDs() []uint64 {
	ids := make([]uint64, len(l.Players))
	for i, lp := range l.Players {
		ids[i] = lp.ID
	}
	return ids
}

// Table returns Lobbies.
func (Lobby) Table() DbTable { return Lobbies }

// Validate reports whether l survives an encode/decode round trip.
func (l Lobby) Validate() error {
	if err := checkReserved("lobby name", l.Name, lobbyNameReserved); err != nil {
		return err
	}
	if err := l.World.Validate(); err != nil {
		return err
	}
	for _, lp := range l.Players {
		if err := lp.Player.Validate(); err != nil {
			return fmt.Errorf("lobby player %d: %w", lp.ID, err)
		}
		// ParseLobby trims each player item.
		if s := lp.String(); strings.TrimSpace(s) != s {
			return fmt.Errorf("%w: lobby player %d ends in whitespace", ErrReservedToken, lp.ID)
		}
	}
	return nil
}

func (Lobby) model() {}
