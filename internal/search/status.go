package search

import (
	"strings"

	"listingsearch/server/internal/predicate"
)

const (
	StatusActive  = "active"
	StatusPending = "pending"
	StatusSold    = "sold"
)

// statusAliases maps user-facing labels to their canonical status.
var statusAliases = map[string]string{
	"active":          StatusActive,
	"pending":         StatusPending,
	"under agreement": StatusPending,
	"sold":            StatusSold,
}

var statusPredicates = map[string]predicate.Fragment{
	StatusActive:  predicate.New("archived = ? AND standard_status = ?", false, "Active"),
	StatusPending: predicate.New("standard_status IN (?, ?)", "Pending", "Active Under Contract"),
	StatusSold:    predicate.New("archived = ? AND standard_status = ?", true, "Closed"),
}

// canonicalStatuses splits, normalizes and deduplicates labels, dropping
// unknown ones, in first-seen order.
func canonicalStatuses(labels []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, label := range labels {
		for _, part := range strings.Split(label, ",") {
			key := strings.ToLower(strings.TrimSpace(part))
			key = strings.NewReplacer("_", " ", "-", " ").Replace(key)
			status, ok := statusAliases[key]
			if !ok || seen[status] {
				continue
			}
			seen[status] = true
			out = append(out, status)
		}
	}
	return out
}

// ResolveStatus maps labels to a store predicate. Several labels are OR'ed;
// with no known label the active predicate applies.
func ResolveStatus(labels ...string) predicate.Fragment {
	statuses := canonicalStatuses(labels)
	if len(statuses) == 0 {
		statuses = []string{StatusActive}
	}

	frags := make([]predicate.Fragment, len(statuses))
	for i, s := range statuses {
		frags[i] = statusPredicates[s]
	}
	return predicate.Or(frags...)
}

// IncludesArchived reports whether labels select archived rows, which is
// only the case for sold listings.
func IncludesArchived(labels ...string) bool {
	for _, s := range canonicalStatuses(labels) {
		if s == StatusSold {
			return true
		}
	}
	return false
}
