package exadb

import (
	"strconv"
	"strings"

	"github.com/AndrewDonelson/exadb/geom"
)

// PlayerStyle is the cosmetic part of a player.
type PlayerStyle struct {
	Color geom.Rgba
}

// String encodes the style as its color.
func (s PlayerStyle) String() string { return s.Color.String() }

// ParsePlayerStyle decodes the form produced by PlayerStyle.String.
func ParsePlayerStyle(s string) (PlayerStyle, error) {
	c, err := geom.ParseRgba(s)
	if err != nil {
		return PlayerStyle{}, valueParseError(err, "player style '%s'", s)
	}
	return PlayerStyle{Color: c}, nil
}

// Player is a connected user's avatar.
type Player struct {
	Position  geom.Vector
	Direction geom.Rotation
	Style     PlayerStyle
	Username  string
	// LobbyID is nil when the player is not in a lobby.
	LobbyID               *uint64
	ObjectsInteractedWith []Object
}

// String encodes p as "username>x:y:z>direction>style>lobby>objects".
func (p Player) String() string {
	lobby := ""
	if p.LobbyID != nil {
		lobby = strconv.FormatUint(*p.LobbyID, 10)
	}
	position := strings.Join([]string{
		geom.FormatFloat(p.Position.X),
		geom.FormatFloat(p.Position.Y),
		geom.FormatFloat(p.Position.Z),
	}, PlayerPositionSeparator)
	return strings.Join([]string{
		p.Username,
		position,
		geom.FormatFloat(p.Direction.Radians()),
		p.Style.String(),
		lobby,
		joinList(p.ObjectsInteractedWith, PlayerObjectsSeparator),
	}, PlayerSeparator)
}

// ParsePlayer decodes the form produced by Player.String.
//
// The lobby id field is lenient: an empty or malformed value yields a nil
// LobbyID rather than an error.
func ParsePlayer(s string) (Player, error) {
	f, err := splitFields(s, PlayerSeparator, 6, "player")
	if err != nil {
		return Player{}, err
	}
	pos, err := splitFields(f[1], PlayerPositionSeparator, 3, "player position")
	if err != nil {
		return Player{}, err
	}
	var xyz [3]float32
	for i, c := range pos {
		if xyz[i], err = geom.ParseFloat(c); err != nil {
			return Player{}, valueParseError(err, "player '%s' has an invalid position", s)
		}
	}
	dir, err := geom.ParseRotation(f[2])
	if err != nil {
		return Player{}, valueParseError(err, "player '%s' has an invalid direction", s)
	}
	style, err := ParsePlayerStyle(f[3])
	if err != nil {
		return Player{}, err
	}
	objects, err := parseObjectList(f[5], PlayerObjectsSeparator, "player", s)
	if err != nil {
		return Player{}, err
	}
	return Player{
		Position:              geom.NewVector(xyz[0], xyz[1], xyz[2]),
		Direction:             dir,
		Style:                 style,
		Username:              f[0],
		LobbyID:               parseLobbyID(f[4]),
		ObjectsInteractedWith: objects,
	}, nil
}

func parseLobbyID(s string) *uint64 {
	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return nil
	}
	return &id
}

// Table returns Players.
func (Player) Table() DbTable { return Players }

// Validate reports whether p survives an encode/decode round trip.
func (p Player) Validate() error {
	if err := checkReserved("username", p.Username, usernameReserved); err != nil {
		return err
	}
	return validateObjects(p.ObjectsInteractedWith)
}

func (Player) model() {}
