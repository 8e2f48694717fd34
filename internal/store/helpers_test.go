package store

import (
	"encoding/json"

	"github.com/sells-group/place-enrich/internal/model"
)

func testPlace(id, name string, lat, lng float64) model.Place {
	p := model.Place{
		EnrichedPlace: model.NewEnrichedPlace(model.PlaceCandidate{
			ProviderID:     id,
			DisplayName:    name,
			Address:        "Rua Barão de Jaguara, 1000 - Campinas, SP",
			Rating:         4.6,
			RatingCount:    212,
			BusinessStatus: "OPERATIONAL",
			Categories:     []string{"bakery", "food"},
			Website:        "https://" + id + ".com.br",
			Raw:            json.RawMessage(`{"id":"` + id + `"}`),
		}),
		City:  "CAMPINAS",
		State: "SP",
		Niche: "padaria",
	}
	if lat != 0 || lng != 0 {
		p.Location = &model.Coordinates{Lat: lat, Lng: lng}
	}
	return p
}
