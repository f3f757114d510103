// Package predicate holds parameterized SQL condition fragments shared by the
// geometry and search packages and rendered by the database adapters.
package predicate

import (
	"strconv"
	"strings"
)

// Fragment is a SQL condition written with `?` placeholders and the values
// bound to them, in order.
type Fragment struct {
	SQL  string
	Args []any
}

// New returns a fragment for sql bound to args.
func New(sql string, args ...any) Fragment {
	return Fragment{SQL: sql, Args: args}
}

// IsEmpty reports whether the fragment carries no condition.
func (f Fragment) IsEmpty() bool {
	return strings.TrimSpace(f.SQL) == ""
}

// And joins the non-empty fragments with AND, each wrapped in parentheses.
func And(frags ...Fragment) Fragment {
	return join(" AND ", frags)
}

// Or joins the non-empty fragments with OR, each wrapped in parentheses.
func Or(frags ...Fragment) Fragment {
	return join(" OR ", frags)
}

func join(op string, frags []Fragment) Fragment {
	var (
		parts []string
		args  []any
	)
	for _, f := range frags {
		if f.IsEmpty() {
			continue
		}
		parts = append(parts, "("+f.SQL+")")
		args = append(args, f.Args...)
	}
	if len(parts) == 0 {
		return Fragment{}
	}
	if len(parts) == 1 {
		return Fragment{SQL: strings.TrimSuffix(strings.TrimPrefix(parts[0], "("), ")"), Args: args}
	}
	return Fragment{SQL: strings.Join(parts, op), Args: args}
}

// In builds a membership test of column against values. An empty value list
// yields an empty fragment.
func In[T any](column string, values []T) Fragment {
	if len(values) == 0 {
		return Fragment{}
	}
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return Fragment{
		SQL:  Sanitize(column) + " IN (" + Placeholders(len(values)) + ")",
		Args: args,
	}
}

// Placeholders returns n comma separated `?` markers.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// Sanitize strips every character outside [A-Za-z0-9_.] from an identifier.
func Sanitize(identifier string) string {
	var b strings.Builder
	b.Grow(len(identifier))
	for _, r := range identifier {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Rebind rewrites `?` placeholders into PostgreSQL `$n` form. Fragments never
// carry literal question marks, values are always bound.
func Rebind(sql string) string {
	var (
		b strings.Builder
		n int
	)
	b.Grow(len(sql) + 8)
	for _, r := range sql {
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
