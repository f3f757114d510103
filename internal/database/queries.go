package database

import (
	"fmt"
	"strings"
	"time"

	"listingsearch/server/internal/predicate"
)

const listingsTable = "listings"

func selectList(columns []string) string {
	cols := make([]string, 0, len(columns))
	for _, c := range columns {
		if s := predicate.Sanitize(c); s != "" {
			cols = append(cols, s)
		}
	}
	if len(cols) == 0 {
		cols = []string{"id"}
	}
	return strings.Join(cols, ", ")
}

func whereClause(where predicate.Fragment) (string, []any) {
	if where.IsEmpty() {
		return "1 = 1", nil
	}
	return where.SQL, append([]any(nil), where.Args...)
}

func searchQuery(columns []string, where predicate.Fragment, order predicate.Order, limit, offset int) (string, []any) {
	cond, args := whereClause(where)

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s WHERE %s", selectList(columns), listingsTable, cond)
	if clause := order.Clause("id"); clause != "" {
		b.WriteString(" ORDER BY " + clause)
	}
	if limit > 0 {
		b.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, limit, max(offset, 0))
	}
	return b.String(), args
}

func countQuery(where predicate.Fragment) (string, []any) {
	cond, args := whereClause(where)
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", listingsTable, cond), args
}

func findByExternalIDQuery(mlsNumber string) (string, []any) {
	return searchQuery(
		DetailColumns,
		predicate.New("mls_number = ?", mlsNumber),
		predicate.Order{Column: "list_date", Direction: predicate.Desc},
		1, 0,
	)
}

func findByIDsQuery(ids []int64) (string, []any) {
	return searchQuery(DetailColumns, predicate.In("id", ids), predicate.Order{Column: "id", Direction: predicate.Asc}, 0, 0)
}

func photosQuery(ids []int64, perListing int) (string, []any) {
	in := predicate.In("listing_id", ids)
	sql := `SELECT id, listing_id, url, sort_order FROM (
		SELECT id, listing_id, url, sort_order,
			ROW_NUMBER() OVER (PARTITION BY listing_id ORDER BY sort_order, id) AS rn
		FROM listing_photos
		WHERE ` + in.SQL + `
	) ranked`
	args := in.Args
	if perListing > 0 {
		sql += " WHERE rn <= ?"
		args = append(args, perListing)
	}
	return sql + " ORDER BY listing_id, rn", args
}

func openHousesQuery(ids []int64, now time.Time) (string, []any) {
	in := predicate.In("listing_id", ids)
	sql := `SELECT id, listing_id, start_time, end_time FROM (
		SELECT id, listing_id, start_time, end_time,
			ROW_NUMBER() OVER (PARTITION BY listing_id ORDER BY start_time, id) AS rn
		FROM open_houses
		WHERE ` + in.SQL + ` AND start_time >= ?
	) ranked WHERE rn = 1`
	return sql, append(in.Args, now.UTC())
}

func missingCoordinatesQuery(limit int) (string, []any) {
	return searchQuery(
		DetailColumns,
		predicate.New("(latitude IS NULL OR longitude IS NULL) AND geocoding_attempted = ? AND street_name <> ?", false, ""),
		predicate.Order{Column: "id", Direction: predicate.Asc},
		limit, 0,
	)
}
