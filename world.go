package exadb

import (
	"strings"

	"github.com/AndrewDonelson/exadb/geom"
)

// World is a playable area with a spawn point and its interactable objects.
type World struct {
	Width      float32
	Height     float32
	SpawnPoint geom.Coords
	Objects    []Object
}

// String encodes w as "width|height|spawn|objects".
func (w World) String() string {
	return strings.Join([]string{
		geom.FormatFloat(w.Width),
		geom.FormatFloat(w.Height),
		w.SpawnPoint.String(),
		joinList(w.Objects, WorldObjectsSeparator),
	}, WorldSeparator)
}

// ParseWorld decodes the form produced by World.String. Empty object
// segments are skipped; any object that fails to decode fails the world.
func ParseWorld(s string) (World, error) {
	f, err := splitFields(s, WorldSeparator, 4, "world")
	if err != nil {
		return World{}, err
	}
	width, err := geom.ParseFloat(f[0])
	if err != nil {
		return World{}, valueParseError(err, "world data could not be parsed from '%s': invalid width", s)
	}
	height, err := geom.ParseFloat(f[1])
	if err != nil {
		return World{}, valueParseError(err, "world data could not be parsed from '%s': invalid height", s)
	}
	spawn, err := geom.ParseCoords(f[2])
	if err != nil {
		return World{}, valueParseError(err, "world data could not be parsed from '%s': invalid spawn point", s)
	}
	objects, err := parseObjectList(f[3], WorldObjectsSeparator, "world", s)
	if err != nil {
		return World{}, err
	}
	return World{Width: width, Height: height, SpawnPoint: spawn, Objects: objects}, nil
}

// Table returns Worlds.
func (World) Table() DbTable { return Worlds }

// Validate reports whether w survives an encode/decode round trip.
func (w World) Validate() error {
	return validateObjects(w.Objects)
}

func (World) model() {}
