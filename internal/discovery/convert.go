package discovery

import (
	"encoding/json"

	"github.com/sells-group/place-enrich/internal/model"
	"github.com/sells-group/place-enrich/pkg/google"
)

func candidateFromPlace(p google.Place) model.PlaceCandidate {
	c := model.PlaceCandidate{
		ProviderID:     p.ID,
		DisplayName:    p.DisplayName.Text,
		Address:        p.FormattedAddress,
		Rating:         p.Rating,
		RatingCount:    p.UserRatingCount,
		BusinessStatus: p.BusinessStatus,
		Categories:     p.Types,
		Website:        p.WebsiteURI,
	}
	if p.Location != nil {
		c.Location = &model.Coordinates{Lat: p.Location.Latitude, Lng: p.Location.Longitude}
	}
	if raw, err := json.Marshal(p); err == nil {
		c.Raw = raw
	}
	return c
}

func detailsFromPlace(p google.Place) model.PlaceDetails {
	d := model.PlaceDetails{
		PlaceCandidate:     candidateFromPlace(p),
		NationalPhone:      p.NationalPhoneNumber,
		InternationalPhone: p.InternationalPhoneNumber,
		MapsURL:            p.GoogleMapsURI,
		PriceLevel:         p.PriceLevel,
	}

	hours := p.RegularOpeningHours
	if hours == nil {
		hours = p.CurrentOpeningHours
	}
	if hours != nil {
		d.Hours = &model.OpeningHours{OpenNow: hours.OpenNow, WeekdayText: hours.WeekdayDescriptions}
	}

	for _, r := range p.Reviews {
		rv := model.Review{
			AuthorName: r.AuthorAttribution.DisplayName,
			Rating:     r.Rating,
			Time:       r.PublishTime,
		}
		if r.Text != nil {
			rv.Text = r.Text.Text
		}
		d.Reviews = append(d.Reviews, rv)
	}
	for _, ph := range p.Photos {
		d.Photos = append(d.Photos, model.Photo{Reference: ph.Name, Width: ph.WidthPx, Height: ph.HeightPx})
	}
	return d
}
