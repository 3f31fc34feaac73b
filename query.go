// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// query.go: fluent Query builder for listing entries of one table with
// WHERE, change-time filtering, ORDER BY, LIMIT, and OFFSET; consumed by
// List and Export.

package exadb

import (
	"fmt"
	"slices"
	"strings"

	"github.com/AndrewDonelson/exadb/internal/l3"
)

// Query selects entries of one table. Where may reference the columns id,
// timestamp_added, timestamp_changed and payload with $1.. placeholders.
type Query struct {
	Where        string
	Args         []any
	ChangedSince uint64 // unix ms; 0 disables the filter
	OrderBy      string // one of the entry columns; defaults to id
	Desc         bool
	Limit        int
	Offset       int
}

type queryBuilder struct{ q Query }

// Q returns a new fluent query builder.
func Q() *queryBuilder { return &queryBuilder{} }

func (b *queryBuilder) Where(clause string, args ...any) *queryBuilder {
	b.q.Where = clause
	b.q.Args = args
	return b
}
func (b *queryBuilder) ChangedSince(ms uint64) *queryBuilder { b.q.ChangedSince = ms; return b }
func (b *queryBuilder) OrderBy(col string) *queryBuilder     { b.q.OrderBy = col; return b }
func (b *queryBuilder) Desc() *queryBuilder                  { b.q.Desc = true; return b }
func (b *queryBuilder) Limit(n int) *queryBuilder            { b.q.Limit = n; return b }
func (b *queryBuilder) Offset(n int) *queryBuilder           { b.q.Offset = n; return b }
func (b *queryBuilder) Build() Query                         { return b.q }

// ToSQL renders q as a SELECT over table. A zero Limit uses defaultLimit;
// a negative one removes the limit.
func (q Query) ToSQL(table string, defaultLimit int) (string, []any) {
	sql := fmt.Sprintf("SELECT %s FROM %s", strings.Join(l3.Columns, ", "), l3.Ident(table))
	args := append([]any{}, q.Args...)

	var where []string
	if q.Where != "" {
		where = append(where, "("+q.Where+")")
	}
	if q.ChangedSince > 0 {
		args = append(args, int64(q.ChangedSince))
		where = append(where, fmt.Sprintf("timestamp_changed >= $%d", len(args)))
	}
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}

	order := "id"
	if slices.Contains(l3.Columns, q.OrderBy) {
		order = q.OrderBy
	}
	sql += " ORDER BY " + order
	if q.Desc {
		sql += " DESC"
	}

	limit := q.Limit
	if limit == 0 {
		limit = defaultLimit
	}
	if limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", limit)
	}
	if q.Offset > 0 {
		sql += fmt.Sprintf(" OFFSET %d", q.Offset)
	}
	return sql, args
}
