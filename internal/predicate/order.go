package predicate

import "strings"

type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// Order is a single-column ordering directive.
type Order struct {
	Column    string
	Direction Direction
}

// Clause renders the ORDER BY body. tiebreak, when set, is appended in the
// same direction so pagination stays stable across equal sort values.
func (o Order) Clause(tiebreak string) string {
	col := Sanitize(o.Column)
	if col == "" {
		return ""
	}
	dir := Asc
	if strings.EqualFold(string(o.Direction), string(Desc)) {
		dir = Desc
	}
	clause := col + " " + string(dir)
	if tb := Sanitize(tiebreak); tb != "" && tb != col {
		clause += ", " + tb + " " + string(dir)
	}
	return clause
}
