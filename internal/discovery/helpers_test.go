package discovery

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"time"

	"github.com/sells-group/place-enrich/internal/config"
	"github.com/sells-group/place-enrich/internal/model"
	"github.com/sells-group/place-enrich/internal/queue"
	"github.com/sells-group/place-enrich/internal/quota"
	"github.com/sells-group/place-enrich/pkg/google"
)

// fakeStore keeps places by ID and mimics the insert/update/skip split of the
// real stores.
type fakeStore struct {
	mu        sync.Mutex
	places    map[string]model.Place
	companies map[string]model.CollectionOutcome
	scraped   map[string]bool
	saveErr   error
	saves     int
	// outcomeFailures makes the next n SetCollectionOutcome calls fail.
	outcomeFailures int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		places:    make(map[string]model.Place),
		companies: make(map[string]model.CollectionOutcome),
		scraped:   make(map[string]bool),
	}
}

func (f *fakeStore) SavePlaces(_ context.Context, places []model.Place) (*model.SaveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	res := &model.SaveResult{Scraped: make(map[string]bool)}
	for _, p := range places {
		existing, ok := f.places[p.ProviderID]
		if !ok {
			p.CompanyID = model.NewCompanyID()
			f.places[p.ProviderID] = p
			f.companies[p.CompanyID] = model.CollectionOutcome{Status: model.CollectionInProgress}
			res.Inserted = append(res.Inserted, p)
			res.Saved = append(res.Saved, p)
			continue
		}
		p.CompanyID = existing.CompanyID
		res.Saved = append(res.Saved, p)
		if f.scraped[p.CompanyID] {
			res.Scraped[p.CompanyID] = true
		}
		if reflect.DeepEqual(existing.EnrichedPlace, p.EnrichedPlace) {
			res.Skipped++
			continue
		}
		f.places[p.ProviderID] = p
		res.Updated++
	}
	return res, nil
}

func (f *fakeStore) SetCollectionOutcome(_ context.Context, ids []string, o model.CollectionOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.outcomeFailures > 0 {
		f.outcomeFailures--
		return errors.New("connection reset by peer")
	}
	for _, id := range ids {
		f.companies[id] = o
	}
	return nil
}

func noSleep(context.Context, time.Duration) error { return nil }

func testConfig(niches map[string][]string) *config.Config {
	return &config.Config{
		Google: config.GoogleConfig{RequestsPerSecond: 1000},
		Collect: config.CollectConfig{
			QueryTemplate:     "{term} em {city}, {state}, Brasil",
			LanguageCode:      "pt-BR",
			RegionCode:        "BR",
			DedupMeters:       50,
			EnrichConcurrency: 4,
		},
		Niches: niches,
	}
}

func testClock() quota.Clock {
	return quota.Clock{Loc: time.UTC, Now: func() time.Time { return time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC) }}
}

func newTestRunner(cfg *config.Config, store Store, pub queue.Publisher, client google.Client, tracker quota.Tracker) *Runner {
	r := NewRunner(cfg, store, pub, client, tracker, nil)
	r.collector.sleep = noSleep
	return r
}

// gplace builds a provider place at a given offset from a fixed origin so
// that distinct indexes are far apart.
func gplace(id string, i int) google.Place {
	return google.Place{
		ID:          id,
		DisplayName: google.DisplayName{Text: "Empresa " + id},
		Location:    &google.LatLng{Latitude: -22.90 + float64(i)*0.01, Longitude: -47.06},
		WebsiteURI:  "https://" + id + ".com.br",
	}
}
