// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// geom.go: primitive world value types (coordinates, vectors, rotation,
// color) and their stable text forms, consumed opaquely by the model codecs.

// Package geom provides the primitive value types stored inside exadb
// models together with their parse/format pairs.
package geom

import (
	"fmt"
	"strconv"
	"strings"
)

const componentSeparator = ","

// Coords is a point in world space.
type Coords struct {
	X float32 `json:"x" msgpack:"x"`
	Y float32 `json:"y" msgpack:"y"`
	Z float32 `json:"z" msgpack:"z"`
}

// NewCoords returns the point (x, y, z).
func NewCoords(x, y, z float32) Coords { return Coords{X: x, Y: y, Z: z} }

// String formats c as "x,y,z".
func (c Coords) String() string {
	return formatTriple(c.X, c.Y, c.Z)
}

// ParseCoords parses the "x,y,z" form produced by Coords.String.
func ParseCoords(s string) (Coords, error) {
	x, y, z, err := parseTriple(s)
	if err != nil {
		return Coords{}, fmt.Errorf("geom: coords %q: %w", s, err)
	}
	return Coords{X: x, Y: y, Z: z}, nil
}

// Vector is a direction or position with three float components.
type Vector struct {
	X float32 `json:"x" msgpack:"x"`
	Y float32 `json:"y" msgpack:"y"`
	Z float32 `json:"z" msgpack:"z"`
}

// NewVector returns the vector (x, y, z).
func NewVector(x, y, z float32) Vector { return Vector{X: x, Y: y, Z: z} }

// String formats v as "x,y,z".
func (v Vector) String() string {
	return formatTriple(v.X, v.Y, v.Z)
}

// ParseVector parses the "x,y,z" form produced by Vector.String.
func ParseVector(s string) (Vector, error) {
	x, y, z, err := parseTriple(s)
	if err != nil {
		return Vector{}, fmt.Errorf("geom: vector %q: %w", s, err)
	}
	return Vector{X: x, Y: y, Z: z}, nil
}

// Rotation is a heading expressed in radians.
type Rotation struct {
	Rad float32 `json:"rad" msgpack:"rad"`
}

// NewRotation returns a rotation of rad radians.
func NewRotation(rad float32) Rotation { return Rotation{Rad: rad} }

// Radians returns the heading in radians.
func (r Rotation) Radians() float32 { return r.Rad }

// String formats r as its radian value.
func (r Rotation) String() string { return FormatFloat(r.Rad) }

// ParseRotation parses a radian value.
func ParseRotation(s string) (Rotation, error) {
	f, err := ParseFloat(s)
	if err != nil {
		return Rotation{}, fmt.Errorf("geom: rotation %q: %w", s, err)
	}
	return Rotation{Rad: f}, nil
}

// Rgba is an 8-bit-per-channel color.
type Rgba struct {
	R uint8 `json:"r" msgpack:"r"`
	G uint8 `json:"g" msgpack:"g"`
	B uint8 `json:"b" msgpack:"b"`
	A uint8 `json:"a" msgpack:"a"`
}

// NewRgba returns the color (r, g, b, a).
func NewRgba(r, g, b, a uint8) Rgba { return Rgba{R: r, G: g, B: b, A: a} }

// String formats c as "r,g,b,a".
func (c Rgba) String() string {
	return strings.Join([]string{
		strconv.FormatUint(uint64(c.R), 10),
		strconv.FormatUint(uint64(c.G), 10),
		strconv.FormatUint(uint64(c.B), 10),
		strconv.FormatUint(uint64(c.A), 10),
	}, componentSeparator)
}

// ParseRgba parses the "r,g,b,a" form produced by Rgba.String.
func ParseRgba(s string) (Rgba, error) {
	parts := strings.Split(s, componentSeparator)
	if len(parts) != 4 {
		return Rgba{}, fmt.Errorf("geom: color %q: want 4 channels, got %d", s, len(parts))
	}
	var ch [4]uint8
	for i, p := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
		if err != nil {
			return Rgba{}, fmt.Errorf("geom: color %q: channel %d: %w", s, i, err)
		}
		ch[i] = uint8(n)
	}
	return Rgba{R: ch[0], G: ch[1], B: ch[2], A: ch[3]}, nil
}

// FormatFloat returns the shortest text that parses back to exactly f.
func FormatFloat(f float32) string {
	return strconv.FormatFloat(float64(f), 'g', -1, 32)
}

// ParseFloat parses a single-precision float.
func ParseFloat(s string) (float32, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
	if err != nil {
		return 0, err
	}
	return float32(f), nil
}

func formatTriple(x, y, z float32) string {
	return FormatFloat(x) + componentSeparator + FormatFloat(y) + componentSeparator + FormatFloat(z)
}

func parseTriple(s string) (x, y, z float32, err error) {
	parts := strings.Split(s, componentSeparator)
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("want 3 components, got %d", len(parts))
	}
	var out [3]float32
	for i, p := range parts {
		if out[i], err = ParseFloat(p); err != nil {
			return 0, 0, 0, fmt.Errorf("component %d: %w", i, err)
		}
	}
	return out[0], out[1], out[2], nil
}
