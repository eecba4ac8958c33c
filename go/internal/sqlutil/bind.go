package sqlutil

import (
	"strconv"
	"strings"
)

// BindStyle is the positional parameter syntax of a SQL driver
type BindStyle int

const (
	// BindQuestion uses ? placeholders (sqlite)
	BindQuestion BindStyle = iota
	// BindDollar uses $1, $2, ... placeholders (postgres)
	BindDollar
)

// Rebind rewrites a query written with ? placeholders for the given style.
// Question marks inside single-quoted literals are left alone.
func Rebind(style BindStyle, query string) string {
	if style == BindQuestion {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)

	n := 0
	inLiteral := false
	for _, r := range query {
		switch {
		case r == '\'':
			inLiteral = !inLiteral
			b.WriteRune(r)
		case r == '?' && !inLiteral:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
