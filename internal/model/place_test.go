package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoordinates_Valid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		c    Coordinates
		want bool
	}{
		{"sao paulo", Coordinates{Lat: -23.55, Lng: -46.63}, true},
		{"zero", Coordinates{}, false},
		{"lat out of range", Coordinates{Lat: 91, Lng: 10}, false},
		{"lng out of range", Coordinates{Lat: 10, Lng: -181}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.c.Valid())
		})
	}
}

func TestCoordinates_PointRoundTrip(t *testing.T) {
	t.Parallel()

	c := Coordinates{Lat: -22.9, Lng: -47.06}
	p := c.Point()
	assert.Equal(t, SRID, p.SRID())
	assert.InDelta(t, -47.06, p.X(), 1e-9)
	assert.Equal(t, c, CoordinatesFromPoint(p))
	assert.Equal(t, Coordinates{}, CoordinatesFromPoint(nil))
}

func TestEnrichedPlace_Merge(t *testing.T) {
	t.Parallel()

	p := NewEnrichedPlace(PlaceCandidate{
		ProviderID:  "p1",
		DisplayName: "Search Name",
		Address:     "Rua A, 1",
		Rating:      4.1,
	})
	assert.False(t, p.Enriched)

	p.Merge(PlaceDetails{
		PlaceCandidate: PlaceCandidate{ProviderID: "p1", Rating: 4.5, Website: "https://x.com.br"},
		NationalPhone:  "(19) 3333-4444",
	})

	assert.True(t, p.Enriched)
	assert.Equal(t, "Search Name", p.DisplayName)
	assert.Equal(t, "Rua A, 1", p.Address)
	assert.InDelta(t, 4.5, p.Rating, 0.001)
	assert.Equal(t, "https://x.com.br", p.Website)
	assert.Equal(t, "(19) 3333-4444", p.NationalPhone)
}

func TestQuotaState(t *testing.T) {
	t.Parallel()

	q := QuotaState{UnitsConsumed: 16000, DailyLimit: 20000}
	assert.Equal(t, int64(4000), q.Remaining())
	assert.InDelta(t, 0.8, q.Fraction(), 1e-9)

	q.UnitsConsumed = 25000
	assert.Equal(t, int64(0), q.Remaining())
}
