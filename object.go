package exadb

import (
	"fmt"

	"github.com/AndrewDonelson/exadb/geom"
)

// Object is an interactable object placed in a world: a position and the
// link it opens.
type Object struct {
	Coords geom.Coords
	Link   string
}

// String encodes o as "coords link".
func (o Object) String() string {
	return o.Coords.String() + ObjectSeparator + o.Link
}

// ParseObject decodes the form produced by Object.String.
func ParseObject(s string) (Object, error) {
	f, err := splitFields(s, ObjectSeparator, 2, "object")
	if err != nil {
		return Object{}, err
	}
	coords, err := geom.ParseCoords(f[0])
	if err != nil {
		return Object{}, valueParseError(err, "object '%s' has invalid coordinates", s)
	}
	return Object{Coords: coords, Link: f[1]}, nil
}

// Table returns Objects.
func (Object) Table() DbTable { return Objects }

// Validate reports whether o survives an encode/decode round trip.
func (o Object) Validate() error {
	return checkReserved("link", o.Link, linkReserved)
}

func (Object) model() {}

func parseObjectList(s, sep, owner, source string) ([]Object, error) {
	var objects []Object
	for _, item := range splitList(s, sep) {
		o, err := ParseObject(item)
		if err != nil {
			return nil, fmt.Errorf("%s could not be parsed from '%s': %w", owner, source, err)
		}
		objects = append(objects, o)
	}
	return objects, nil
}

func validateObjects(objects []Object) error {
	for _, o := range objects {
		if err := o.Validate(); err != nil {
			return err
		}
	}
	return nil
}
