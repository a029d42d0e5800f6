package model

import "fmt"

// PlaceType narrows a query to one kind of recommendable place.
type PlaceType string

const (
	PlaceTypeAny        PlaceType = ""
	PlaceTypeRestaurant PlaceType = "restaurant"
	PlaceTypeCafe       PlaceType = "cafe"
	PlaceTypeAttraction PlaceType = "attraction"
	PlaceTypeShopping   PlaceType = "shopping"
	PlaceTypeNightlife  PlaceType = "nightlife"
)

// Location is a WGS84 coordinate pair.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (l Location) String() string {
	return fmt.Sprintf("%.4f,%.4f", l.Lat, l.Lng)
}

// Query is one user question. Immutable once submitted.
type Query struct {
	Text      string    `json:"text"`
	Location  *Location `json:"location,omitempty"`
	PlaceType PlaceType `json:"place_type,omitempty"`
}

// SeoulCenter is the default search anchor when a query carries no location.
var SeoulCenter = Location{Lat: 37.5665, Lng: 126.9780}
