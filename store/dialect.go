package store

import (
	"strconv"
	"strings"
)

// Dialect captures the SQL differences between the supported drivers.
type Dialect interface {
	Name() string
	// ReturningID reports whether inserts return ids through RETURNING
	// rather than LastInsertId.
	ReturningID() bool
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string      { return "sqlite" }
func (sqliteDialect) ReturningID() bool { return false }

type postgresDialect struct{}

func (postgresDialect) Name() string      { return "postgres" }
func (postgresDialect) ReturningID() bool { return true }

// Rebind turns ? placeholders into $1, $2, ... Question marks inside
// single-quoted literals are left alone.
func Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
