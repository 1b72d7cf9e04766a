package database

import (
	"strconv"
	"strings"
	"time"

	"fsv-go/internal/database/migrations"
)

// Dialect selects driver, placeholder style and time encoding.
type Dialect string

const (
	SQLite   Dialect = migrations.SQLite3
	Postgres Dialect = migrations.Postgres
	MySQL    Dialect = migrations.MySQL
)

// sqliteTimeLayout is fixed width so stored timestamps order lexically.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000"

// DriverName is the database/sql driver registered for d.
func (d Dialect) DriverName() string { return string(d) }

// Rebind rewrites '?' placeholders into the dialect's native form.
func (d Dialect) Rebind(query string) string {
	if d != Postgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// timeArg encodes t for binding. SQLite has no time type, so timestamps are
// stored as fixed-width UTC text.
func (d Dialect) timeArg(t time.Time) any {
	t = t.UTC()
	if d == SQLite {
		return t.Format(sqliteTimeLayout)
	}
	return t
}

// maxBindVars bounds the placeholders in one statement across all dialects.
const maxBindVars = 999

// placeholders returns "(?, ?, ...)" with n markers.
func placeholders(n int) string {
	if n <= 0 {
		return "()"
	}
	return "(" + strings.Repeat("?, ", n-1) + "?)"
}
