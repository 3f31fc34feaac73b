// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// errors.go: sentinel error variables returned by the exadb codecs, the
// table dispatcher, and the record store.

// Package exadb converts game records (worlds, lobbies, players, objects)
// to and from delimiter-separated row text and persists them in a
// three-tier record store: in-memory (L1), Redis (L2), and PostgreSQL (L3).
package exadb

import (
	"errors"
	"fmt"
)

// Codec errors
var (
	ErrUnknownTable = errors.New("exadb: unknown table name")
	ErrEntryParse   = errors.New("exadb: entry could not be parsed")
	// ErrValueParse marks a failure inside a primitive value (number,
	// coordinates, color). Errors carrying it also match ErrEntryParse.
	ErrValueParse    = errors.New("exadb: value could not be parsed")
	ErrReservedToken = errors.New("exadb: field contains a reserved separator")
)

// Data errors
var (
	ErrNotFound      = errors.New("exadb: record not found")
	ErrTableMismatch = errors.New("exadb: payload does not belong to table")
	ErrDecodeFailed  = errors.New("exadb: failed to decode stored value")
	ErrEncodeFailed  = errors.New("exadb: failed to encode value for storage")
)

// Infrastructure errors
var (
	ErrL2Unavailable = errors.New("exadb: L2 Redis unavailable")
	ErrL3Unavailable = errors.New("exadb: L3 Postgres unavailable")
	ErrUnavailable   = errors.New("exadb: store closed")
)

// Config errors
var (
	ErrInvalidConfig = errors.New("exadb: invalid configuration")
)

func entryParseError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrEntryParse, fmt.Sprintf(format, args...))
}

func valueParseError(err error, format string, args ...any) error {
	return fmt.Errorf("%w: %w: %s: %v", ErrEntryParse, ErrValueParse, fmt.Sprintf(format, args...), err)
}
