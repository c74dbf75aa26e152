package repository

import (
	"strconv"
	"strings"
)

// RebindQuestion is the identity rebind: sqlite, mysql and mssql (via
// go-mssqldb's ordinal-parameter support) all accept "?" placeholders
// directly.
func RebindQuestion(query string) string { return query }

// RebindDollar rewrites every "?" placeholder into lib/pq's positional
// "$1", "$2", ... syntax. None of store.go's queries ever embed a literal
// "?" character outside of a placeholder position, so a straight
// left-to-right replace is safe.
func RebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
