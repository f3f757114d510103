package models

// ListItem is the reduced projection of a listing returned by search.
type ListItem struct {
	ID              int64      `json:"id"`
	MLSNumber       string     `json:"mls_number"`
	Address         string     `json:"address"`
	StreetNumber    string     `json:"street_number"`
	StreetName      string     `json:"street_name"`
	UnitNumber      string     `json:"unit_number,omitempty"`
	City            string     `json:"city"`
	StateOrProvince string     `json:"state_or_province"`
	PostalCode      string     `json:"postal_code"`
	Price           *float64   `json:"price"`
	Beds            *int       `json:"beds"`
	Baths           *float64   `json:"baths"`
	LivingArea      *float64   `json:"living_area"`
	Status          string     `json:"status"`
	Latitude        *float64   `json:"latitude"`
	Longitude       *float64   `json:"longitude"`
	Photos          []string   `json:"photos"`
	NextOpenHouse   *OpenHouse `json:"next_open_house"`
}

// NewListItem merges a listing row with its batch-fetched relations.
func NewListItem(l Listing, photos []Photo, openHouse *OpenHouse) ListItem {
	urls := make([]string, 0, len(photos))
	for _, p := range photos {
		urls = append(urls, p.URL)
	}
	return ListItem{
		ID:              l.ID,
		MLSNumber:       l.MLSNumber,
		Address:         l.Address(),
		StreetNumber:    l.StreetNumber,
		StreetName:      l.StreetName,
		UnitNumber:      l.UnitNumber,
		City:            l.City,
		StateOrProvince: l.StateOrProvince,
		PostalCode:      l.PostalCode,
		Price:           l.ListPrice,
		Beds:            l.BedroomsTotal,
		Baths:           l.BathroomsTotal,
		LivingArea:      l.LivingArea,
		Status:          l.StandardStatus,
		Latitude:        l.Latitude,
		Longitude:       l.Longitude,
		Photos:          urls,
		NextOpenHouse:   openHouse,
	}
}

// ResultPage is one page of search results.
type ResultPage struct {
	Items   []ListItem `json:"items"`
	Total   int        `json:"total"`
	Page    int        `json:"page"`
	PerPage int        `json:"per_page"`
}

// ListingDetail is the full record served by detail lookups.
type ListingDetail struct {
	Listing       Listing    `json:"listing"`
	Photos        []Photo    `json:"photos"`
	NextOpenHouse *OpenHouse `json:"next_open_house"`
}

// CoordinateUpdate is the outcome of geocoding one listing. A nil Lat/Lng
// records a failed attempt so the listing is not retried.
type CoordinateUpdate struct {
	ListingID int64
	Lat       *float64
	Lng       *float64
}
