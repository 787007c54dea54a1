package database

import (
	"fmt"
	"strings"
	"time"
)

// Dialect selects placeholder and pattern-match syntax.
type Dialect int

const (
	Postgres Dialect = iota // $1, ILIKE
	SQLite                  // ?1, LIKE (case-insensitive for ASCII)
)

// WhereBuilder assembles a parameterized WHERE clause from optional filters.
// Columns are never taken from user input; only values are parameterized.
type WhereBuilder struct {
	dialect    Dialect
	conditions []string
	args       []interface{}
	argIndex   int
}

// NewWhereBuilder returns a builder using PostgreSQL placeholders.
func NewWhereBuilder() *WhereBuilder {
	return NewWhereBuilderFor(Postgres)
}

// NewWhereBuilderFor returns a builder for the given dialect.
func NewWhereBuilderFor(d Dialect) *WhereBuilder {
	return &WhereBuilder{dialect: d, argIndex: 1}
}

// Placeholder returns the bind marker for argument n.
func (wb *WhereBuilder) Placeholder(n int) string {
	if wb.dialect == SQLite {
		return fmt.Sprintf("?%d", n)
	}
	return fmt.Sprintf("$%d", n)
}

func (wb *WhereBuilder) next(v interface{}) string {
	p := wb.Placeholder(wb.argIndex)
	wb.args = append(wb.args, v)
	wb.argIndex++
	return p
}

// Add adds "col = value". Empty values are skipped.
func (wb *WhereBuilder) Add(col, value string) {
	if value == "" {
		return
	}
	wb.conditions = append(wb.conditions, fmt.Sprintf("%s = %s", col, wb.next(value)))
}

// AddContains adds a case-insensitive substring match. Empty values are skipped.
func (wb *WhereBuilder) AddContains(col, value string) {
	if value == "" {
		return
	}
	op := "ILIKE"
	if wb.dialect == SQLite {
		op = "LIKE"
	}
	wb.conditions = append(wb.conditions, fmt.Sprintf("%s %s %s", col, op, wb.next("%"+escapeLike(value)+"%")))
	if wb.dialect == SQLite {
		wb.conditions[len(wb.conditions)-1] += ` ESCAPE '\'`
	}
}

// AddTimestampRange adds "col >= start AND col <= end".
func (wb *WhereBuilder) AddTimestampRange(col string, start, end interface{}) {
	wb.conditions = append(wb.conditions, fmt.Sprintf("%s >= %s", col, wb.next(start)))
	wb.conditions = append(wb.conditions, fmt.Sprintf("%s <= %s", col, wb.next(end)))
}

// AddFrom adds "col >= v" when t is set. v is the bound value, which lets
// callers pass t in the column's storage format.
func (wb *WhereBuilder) AddFrom(col string, t time.Time, v interface{}) {
	if t.IsZero() {
		return
	}
	wb.conditions = append(wb.conditions, fmt.Sprintf("%s >= %s", col, wb.next(v)))
}

// AddUntil adds "col <= v" when t is set.
func (wb *WhereBuilder) AddUntil(col string, t time.Time, v interface{}) {
	if t.IsZero() {
		return
	}
	wb.conditions = append(wb.conditions, fmt.Sprintf("%s <= %s", col, wb.next(v)))
}

// Build returns the clause with a leading " WHERE ", or "" with nil args
// when no condition was added.
func (wb *WhereBuilder) Build() (string, []interface{}) {
	if len(wb.conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(wb.conditions, " AND "), wb.args
}

// NextArgIndex returns the number of the next placeholder, for appending
// LIMIT and OFFSET after the clause.
func (wb *WhereBuilder) NextArgIndex() int {
	return wb.argIndex
}

// LimitOffset renders " LIMIT x OFFSET y" with the next two placeholders
// and returns args extended with limit and offset.
func (wb *WhereBuilder) LimitOffset(args []interface{}, limit, offset int) (string, []interface{}) {
	n := wb.NextArgIndex()
	clause := fmt.Sprintf(" LIMIT %s OFFSET %s", wb.Placeholder(n), wb.Placeholder(n+1))
	return clause, append(args, limit, offset)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
