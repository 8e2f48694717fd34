// Package discovery runs place collection: term-by-term text search against
// the listing provider, identity and proximity deduplication, quota-gated
// details enrichment, persistence and website task fan-out.
package discovery

import (
	"context"
	"time"

	"github.com/sells-group/place-enrich/internal/model"
)

// Store persists collected places and projects the run outcome onto the
// companies it created.
type Store interface {
	SavePlaces(ctx context.Context, places []model.Place) (*model.SaveResult, error)
	SetCollectionOutcome(ctx context.Context, companyIDs []string, outcome model.CollectionOutcome) error
}

// nearDeadline reports whether the run budget is spent or within margin of
// being spent.
func nearDeadline(ctx context.Context, margin time.Duration) bool {
	if ctx.Err() != nil {
		return true
	}
	dl, ok := ctx.Deadline()
	return ok && time.Until(dl) <= margin
}
