package model

import (
	"encoding/json"
	"math"

	"github.com/twpayne/go-geom"
)

// SRID is the spatial reference used for every stored location (WGS 84).
const SRID = 4326

// Coordinates is a WGS 84 latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"latitude"`
	Lng float64 `json:"longitude"`
}

// Valid reports whether the pair is inside the WGS 84 range and not the
// zero value providers return for missing geometry.
func (c Coordinates) Valid() bool {
	if c.Lat == 0 && c.Lng == 0 {
		return false
	}
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// Point converts the coordinates into an XY point (x = lng, y = lat).
func (c Coordinates) Point() *geom.Point {
	p := geom.NewPointFlat(geom.XY, []float64{c.Lng, c.Lat})
	p.SetSRID(SRID)
	return p
}

// CoordinatesFromPoint is the inverse of Coordinates.Point.
func CoordinatesFromPoint(p *geom.Point) Coordinates {
	if p == nil || p.Empty() {
		return Coordinates{}
	}
	return Coordinates{Lat: p.Y(), Lng: p.X()}
}

// PlaceCandidate is one raw search hit before enrichment. ProviderID is the
// identity key.
type PlaceCandidate struct {
	ProviderID     string          `json:"place_id"`
	DisplayName    string          `json:"name"`
	Address        string          `json:"formatted_address,omitempty"`
	Location       *Coordinates    `json:"location,omitempty"`
	Rating         float64         `json:"rating,omitempty"`
	RatingCount    int             `json:"user_ratings_total,omitempty"`
	BusinessStatus string          `json:"business_status,omitempty"`
	Categories     []string        `json:"types,omitempty"`
	Website        string          `json:"website,omitempty"`
	Raw            json.RawMessage `json:"-"`
}

// HasLocation reports whether the candidate can take part in proximity
// deduplication.
func (c PlaceCandidate) HasLocation() bool {
	return c.Location != nil && c.Location.Valid()
}

// OpeningHours is the human readable weekly schedule.
type OpeningHours struct {
	OpenNow     *bool    `json:"open_now,omitempty"`
	WeekdayText []string `json:"weekday_text,omitempty"`
}

// Review is one provider review.
type Review struct {
	AuthorName string  `json:"author_name,omitempty"`
	Rating     float64 `json:"rating,omitempty"`
	Text       string  `json:"text,omitempty"`
	Time       string  `json:"time,omitempty"`
}

// Photo references a provider-hosted image.
type Photo struct {
	Reference string `json:"photo_reference"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
}

// PlaceDetails is the per-place detail payload merged over a candidate.
type PlaceDetails struct {
	PlaceCandidate
	NationalPhone      string        `json:"formatted_phone_number,omitempty"`
	InternationalPhone string        `json:"international_phone_number,omitempty"`
	MapsURL            string        `json:"url,omitempty"`
	Hours              *OpeningHours `json:"opening_hours,omitempty"`
	Reviews            []Review      `json:"reviews,omitempty"`
	Photos             []Photo       `json:"photos,omitempty"`
	PriceLevel         string        `json:"price_level,omitempty"`
}

// EnrichedPlace is an accepted candidate plus whatever details were fetched.
// Enriched is false when only search-derived fields are present.
type EnrichedPlace struct {
	PlaceDetails
	Enriched bool `json:"-"`
}

// NewEnrichedPlace seeds an unenriched place from a candidate.
func NewEnrichedPlace(c PlaceCandidate) EnrichedPlace {
	return EnrichedPlace{PlaceDetails: PlaceDetails{PlaceCandidate: c}}
}

// Merge overlays non-empty detail fields onto the place and marks it enriched.
func (p *EnrichedPlace) Merge(d PlaceDetails) {
	if d.DisplayName != "" {
		p.DisplayName = d.DisplayName
	}
	if d.Address != "" {
		p.Address = d.Address
	}
	if d.Location != nil && d.Location.Valid() {
		loc := *d.Location
		p.Location = &loc
	}
	if d.Rating != 0 {
		p.Rating = d.Rating
	}
	if d.RatingCount != 0 {
		p.RatingCount = d.RatingCount
	}
	if d.BusinessStatus != "" {
		p.BusinessStatus = d.BusinessStatus
	}
	if len(d.Categories) > 0 {
		p.Categories = d.Categories
	}
	if d.Website != "" {
		p.Website = d.Website
	}
	if d.NationalPhone != "" {
		p.NationalPhone = d.NationalPhone
	}
	if d.InternationalPhone != "" {
		p.InternationalPhone = d.InternationalPhone
	}
	if d.MapsURL != "" {
		p.MapsURL = d.MapsURL
	}
	if d.Hours != nil {
		p.Hours = d.Hours
	}
	if len(d.Reviews) > 0 {
		p.Reviews = d.Reviews
	}
	if len(d.Photos) > 0 {
		p.Photos = d.Photos
	}
	if d.PriceLevel != "" {
		p.PriceLevel = d.PriceLevel
	}
	p.Enriched = true
}

// Place is the persisted listing. PlaceID is unique across the store.
type Place struct {
	EnrichedPlace
	CompanyID string `json:"company_id"`
	City      string `json:"city"`
	State     string `json:"state"`
	Niche     string `json:"niche"`
}

// PlaceID returns the provider identifier.
func (p Place) PlaceID() string { return p.ProviderID }
