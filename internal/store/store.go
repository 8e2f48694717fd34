// Package store persists companies, their places and website enrichment
// results. Postgres is the production backend; SQLite serves local runs.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/place-enrich/internal/geo"
	"github.com/sells-group/place-enrich/internal/model"
)

// Store is the persistence gateway for both engines.
type Store interface {
	// SavePlaces writes places idempotently by place ID in one transaction.
	// New places get a fresh company; unchanged places are skipped.
	SavePlaces(ctx context.Context, places []model.Place) (*model.SaveResult, error)
	SetCollectionOutcome(ctx context.Context, companyIDs []string, outcome model.CollectionOutcome) error

	GetCompany(ctx context.Context, companyID string) (*model.Company, error)
	// ListPendingWebsites returns companies with a website that has never
	// been enriched, oldest first.
	ListPendingWebsites(ctx context.Context, limit int) ([]model.Company, error)
	UpdateWebsiteData(ctx context.Context, upd model.WebsiteUpdate) error

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// ErrNotFound is returned when a company does not exist.
var ErrNotFound = eris.New("store: not found")

func unknownCompany(id string) error {
	return &model.ValidationError{Field: "company_id", Reason: "unknown company " + id}
}

var placeColumns = []string{
	"place_id", "company_id", "name", "formatted_address",
	"latitude", "longitude", "location",
	"rating", "rating_count", "national_phone", "international_phone",
	"website", "maps_url", "business_status", "categories", "hours",
	"reviews", "photos", "price_level", "enriched", "raw",
	"city", "state", "niche", "content_hash", "updated_at",
}

// placeUpdateColumns excludes the identity and owning company.
var placeUpdateColumns = placeColumns[2:]

var companyColumns = []string{
	"company_id", "name", "city", "state", "niche", "website",
	"collection_status", "created_at", "updated_at",
}

// placeRecord is a place flattened into column values.
type placeRecord struct {
	place model.Place
	hash  string
	loc   []byte
	lat   *float64
	lng   *float64
	json  map[string]any
}

func newPlaceRecord(p model.Place) (*placeRecord, error) {
	r := &placeRecord{place: p, json: make(map[string]any, 5)}

	hash, err := contentHash(p)
	if err != nil {
		return nil, err
	}
	r.hash = hash

	if p.HasLocation() {
		loc, err := geo.EncodePoint(p.Location)
		if err != nil {
			return nil, err
		}
		lat, lng := p.Location.Lat, p.Location.Lng
		r.loc, r.lat, r.lng = loc, &lat, &lng
	}

	for col, v := range map[string]any{
		"categories": p.Categories,
		"hours":      p.Hours,
		"reviews":    p.Reviews,
		"photos":     p.Photos,
	} {
		r.json[col], err = jsonColumn(v)
		if err != nil {
			return nil, eris.Wrapf(err, "store: encode %s for %s", col, p.ProviderID)
		}
	}
	r.json["raw"] = nil
	if len(p.Raw) > 0 {
		r.json["raw"] = string(p.Raw)
	}
	return r, nil
}

// values returns the record in placeColumns order.
func (r *placeRecord) values(now time.Time) []any {
	p := r.place
	var loc any
	if r.loc != nil {
		loc = r.loc
	}
	return []any{
		p.ProviderID, p.CompanyID, p.DisplayName, p.Address,
		r.lat, r.lng, loc,
		p.Rating, p.RatingCount, p.NationalPhone, p.InternationalPhone,
		p.Website, p.MapsURL, p.BusinessStatus, r.json["categories"], r.json["hours"],
		r.json["reviews"], r.json["photos"], p.PriceLevel, p.Enriched, r.json["raw"],
		p.City, p.State, p.Niche, r.hash, now,
	}
}

// companyValues returns the company row created with a new place, in
// companyColumns order.
func companyValues(p model.Place, now time.Time) []any {
	return []any{
		p.CompanyID, p.DisplayName, p.City, p.State, p.Niche, p.Website,
		string(model.CollectionInProgress), now, now,
	}
}

// contentHash fingerprints the listing content so unchanged places can be
// skipped on re-collection.
func contentHash(p model.Place) (string, error) {
	b, err := json.Marshal(struct {
		Details  model.PlaceDetails `json:"details"`
		Enriched bool               `json:"enriched"`
	}{p.PlaceDetails, p.Enriched})
	if err != nil {
		return "", eris.Wrapf(err, "store: hash place %s", p.ProviderID)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// jsonColumn encodes v as JSON text, or nil for empty values.
func jsonColumn(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" {
		return nil, nil
	}
	return string(b), nil
}

// dedupePlaces keeps the last version of each place ID in first-seen order.
func dedupePlaces(places []model.Place) []model.Place {
	index := make(map[string]int, len(places))
	out := make([]model.Place, 0, len(places))
	for _, p := range places {
		if i, ok := index[p.ProviderID]; ok {
			out[i] = p
			continue
		}
		index[p.ProviderID] = len(out)
		out = append(out, p)
	}
	return out
}

// existingPlace is what the store already holds for a place ID.
type existingPlace struct {
	companyID string
	hash      string
	scraped   bool
}

// plan splits a batch into new places, which get company IDs, and changed
// places, which keep their stored company. Unchanged places are counted.
type plan struct {
	inserts   []*placeRecord
	updates   []*placeRecord
	unchanged int
	saved     []model.Place
	scraped   map[string]bool
}

func planSave(places []model.Place, existing map[string]existingPlace) (*plan, error) {
	pl := &plan{scraped: make(map[string]bool)}
	for _, p := range places {
		if cur, ok := existing[p.ProviderID]; ok {
			p.CompanyID = cur.companyID
			pl.saved = append(pl.saved, p)
			if cur.scraped {
				pl.scraped[cur.companyID] = true
			}
			r, err := newPlaceRecord(p)
			if err != nil {
				return nil, err
			}
			if r.hash == cur.hash {
				pl.unchanged++
				continue
			}
			pl.updates = append(pl.updates, r)
			continue
		}

		p.CompanyID = model.NewCompanyID()
		pl.saved = append(pl.saved, p)
		r, err := newPlaceRecord(p)
		if err != nil {
			return nil, err
		}
		pl.inserts = append(pl.inserts, r)
	}
	return pl, nil
}

func (pl *plan) result(updated int64) *model.SaveResult {
	res := &model.SaveResult{
		Updated: int(updated),
		Skipped: pl.unchanged + len(pl.updates) - int(updated),
		Saved:   pl.saved,
		Scraped: pl.scraped,
	}
	for _, r := range pl.inserts {
		res.Inserted = append(res.Inserted, r.place)
	}
	return res
}

func placeIDs(places []model.Place) []string {
	ids := make([]string, len(places))
	for i, p := range places {
		ids[i] = p.ProviderID
	}
	return ids
}
