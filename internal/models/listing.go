package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Listing is a row of the listings table. Columns that list queries do not
// project stay at their zero value.
type Listing struct {
	ID                int64      `json:"id" gorm:"column:id;primaryKey" db:"id"`
	MLSNumber         string     `json:"mls_number" gorm:"column:mls_number;not null;default:'';index" db:"mls_number"`
	StreetNumber      string     `json:"street_number" gorm:"column:street_number;not null;default:''" db:"street_number"`
	StreetName        string     `json:"street_name" gorm:"column:street_name;not null;default:''" db:"street_name"`
	UnitNumber        string     `json:"unit_number,omitempty" gorm:"column:unit_number;not null;default:''" db:"unit_number"`
	City              string     `json:"city" gorm:"column:city;not null;default:'';index" db:"city"`
	StateOrProvince   string     `json:"state_or_province" gorm:"column:state_or_province;not null;default:''" db:"state_or_province"`
	PostalCode        string     `json:"postal_code" gorm:"column:postal_code;not null;default:'';index" db:"postal_code"`
	Neighborhood      string     `json:"neighborhood,omitempty" gorm:"column:neighborhood;not null;default:''" db:"neighborhood"`
	MLSAreaMajor      string     `json:"mls_area_major,omitempty" gorm:"column:mls_area_major;not null;default:''" db:"mls_area_major"`
	SubdivisionName   string     `json:"subdivision_name,omitempty" gorm:"column:subdivision_name;not null;default:''" db:"subdivision_name"`
	ListPrice         *float64   `json:"list_price" gorm:"column:list_price" db:"list_price"`
	OriginalListPrice *float64   `json:"original_list_price,omitempty" gorm:"column:original_list_price" db:"original_list_price"`
	BedroomsTotal     *int       `json:"bedrooms_total" gorm:"column:bedrooms_total" db:"bedrooms_total"`
	BathroomsTotal    *float64   `json:"bathrooms_total" gorm:"column:bathrooms_total" db:"bathrooms_total"`
	LivingArea        *float64   `json:"living_area" gorm:"column:living_area" db:"living_area"`
	LotSizeAcres      *float64   `json:"lot_size_acres,omitempty" gorm:"column:lot_size_acres" db:"lot_size_acres"`
	YearBuilt         *int       `json:"year_built,omitempty" gorm:"column:year_built" db:"year_built"`
	DaysOnMarket      *int       `json:"days_on_market,omitempty" gorm:"column:days_on_market" db:"days_on_market"`
	ListDate          *time.Time `json:"list_date,omitempty" gorm:"column:list_date;index" db:"list_date"`
	GarageSpaces      *float64   `json:"garage_spaces,omitempty" gorm:"column:garage_spaces" db:"garage_spaces"`
	ParkingTotal      *float64   `json:"parking_total,omitempty" gorm:"column:parking_total" db:"parking_total"`
	VirtualTourURL    *string    `json:"virtual_tour_url,omitempty" gorm:"column:virtual_tour_url" db:"virtual_tour_url"`
	FireplacesTotal   *int       `json:"fireplaces_total,omitempty" gorm:"column:fireplaces_total" db:"fireplaces_total"`
	PropertyType      string     `json:"property_type" gorm:"column:property_type;not null;default:''" db:"property_type"`
	PropertySubType   string     `json:"property_sub_type,omitempty" gorm:"column:property_sub_type;not null;default:''" db:"property_sub_type"`
	StandardStatus    string     `json:"standard_status" gorm:"column:standard_status;not null;default:'';index" db:"standard_status"`
	Archived          bool       `json:"archived" gorm:"column:archived;not null;default:false" db:"archived"`
	Latitude          *float64   `json:"latitude" gorm:"column:latitude;index:idx_listings_coordinates" db:"latitude"`
	Longitude         *float64   `json:"longitude" gorm:"column:longitude;index:idx_listings_coordinates" db:"longitude"`
	PublicRemarks     *string    `json:"public_remarks,omitempty" gorm:"column:public_remarks" db:"public_remarks"`

	GeocodingAttempted bool `json:"-" gorm:"column:geocoding_attempted;not null;default:false" db:"geocoding_attempted"`
}

func (Listing) TableName() string {
	return "listings"
}

// BeforeSave stores list_date in UTC. SQLite compares timestamps as text, so
// mixed offsets would break the new_listing_days cutoff.
func (l *Listing) BeforeSave(tx *gorm.DB) error {
	if l.ListDate != nil {
		utc := l.ListDate.UTC()
		l.ListDate = &utc
	}
	return nil
}

// Address formats the street line, e.g. "12 Main St Unit 3".
func (l *Listing) Address() string {
	parts := []string{l.StreetNumber, l.StreetName}
	if l.UnitNumber != "" {
		parts = append(parts, "Unit", l.UnitNumber)
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

// GeocodeQuery is the free-form address sent to the geocoder.
func (l *Listing) GeocodeQuery() string {
	var parts []string
	for _, p := range []string{l.Address(), l.City, strings.TrimSpace(l.StateOrProvince + " " + l.PostalCode)} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

type Photo struct {
	ID        int64  `json:"-" gorm:"column:id;primaryKey" db:"id"`
	ListingID int64  `json:"listing_id" gorm:"column:listing_id;not null;index" db:"listing_id"`
	URL       string `json:"url" gorm:"column:url;not null" db:"url"`
	SortOrder int    `json:"sort_order" gorm:"column:sort_order;not null;default:0" db:"sort_order"`
}

func (Photo) TableName() string {
	return "listing_photos"
}

type OpenHouse struct {
	ID        int64     `json:"-" gorm:"column:id;primaryKey" db:"id"`
	ListingID int64     `json:"listing_id" gorm:"column:listing_id;not null;index" db:"listing_id"`
	StartTime time.Time `json:"start_time" gorm:"column:start_time;not null;index" db:"start_time"`
	EndTime   time.Time `json:"end_time" gorm:"column:end_time;not null" db:"end_time"`
}

func (OpenHouse) TableName() string {
	return "open_houses"
}

// BeforeSave stores open house times in UTC; see Listing.BeforeSave.
func (o *OpenHouse) BeforeSave(tx *gorm.DB) error {
	o.StartTime = o.StartTime.UTC()
	o.EndTime = o.EndTime.UTC()
	return nil
}
