package search

import (
	"strings"

	"listingsearch/server/internal/predicate"
)

const DefaultSort = "list_date_desc"

var sortOrders = map[string]predicate.Order{
	"price_asc":      {Column: "list_price", Direction: predicate.Asc},
	"price_desc":     {Column: "list_price", Direction: predicate.Desc},
	"list_date_asc":  {Column: "list_date", Direction: predicate.Asc},
	"list_date_desc": {Column: "list_date", Direction: predicate.Desc},
	"beds_desc":      {Column: "bedrooms_total", Direction: predicate.Desc},
	"sqft_desc":      {Column: "living_area", Direction: predicate.Desc},
	"dom_asc":        {Column: "days_on_market", Direction: predicate.Asc},
	"dom_desc":       {Column: "days_on_market", Direction: predicate.Desc},
}

// ResolveSort maps a sort key to its ordering, DefaultSort when unknown.
func ResolveSort(key string) predicate.Order {
	if order, ok := sortOrders[strings.ToLower(strings.TrimSpace(key))]; ok {
		return order
	}
	return sortOrders[DefaultSort]
}
