package discovery

import (
	"github.com/twpayne/go-geom"

	"github.com/sells-group/place-enrich/internal/geo"
	"github.com/sells-group/place-enrich/internal/model"
)

// DefaultDedupMeters is the proximity under which two listings are the same
// business.
const DefaultDedupMeters = 50.0

// DuplicateReason says why a candidate was rejected.
type DuplicateReason string

const (
	NotDuplicate        DuplicateReason = ""
	DuplicateByID       DuplicateReason = "id"
	DuplicateByLocation DuplicateReason = "location"
	MissingID           DuplicateReason = "missing_id"
)

// Verdict is the result of Deduplicator.Accept.
type Verdict struct {
	Accepted bool
	Reason   DuplicateReason
	// Existing is the earlier candidate this one duplicates.
	Existing  *model.PlaceCandidate
	DistanceM float64
}

// Deduplicator accepts each business once per run. First accepted wins and
// attributes are never merged.
type Deduplicator struct {
	maxMeters float64
	seen      map[string]int
	accepted  []model.PlaceCandidate
	// points is aligned with accepted; nil where the candidate has no
	// coordinates.
	points []*geom.Point
}

// NewDeduplicator creates a Deduplicator with the given proximity threshold.
func NewDeduplicator(maxMeters float64) *Deduplicator {
	if maxMeters <= 0 {
		maxMeters = DefaultDedupMeters
	}
	return &Deduplicator{maxMeters: maxMeters, seen: make(map[string]int)}
}

// Accept checks identity, then proximity, and records the candidate when it
// is new.
func (d *Deduplicator) Accept(c model.PlaceCandidate) Verdict {
	if c.ProviderID == "" {
		return Verdict{Reason: MissingID}
	}
	if i, ok := d.seen[c.ProviderID]; ok {
		return Verdict{Reason: DuplicateByID, Existing: d.candidate(i)}
	}

	var pt *geom.Point
	if c.HasLocation() {
		pt = c.Location.Point()
		if i, dist := geo.Nearest(pt, d.points, d.maxMeters); i >= 0 {
			return Verdict{Reason: DuplicateByLocation, Existing: d.candidate(i), DistanceM: dist}
		}
	}

	d.seen[c.ProviderID] = len(d.accepted)
	d.accepted = append(d.accepted, c)
	d.points = append(d.points, pt)
	return Verdict{Accepted: true}
}

// Accepted returns the accepted candidates in encounter order.
func (d *Deduplicator) Accepted() []model.PlaceCandidate {
	out := make([]model.PlaceCandidate, len(d.accepted))
	copy(out, d.accepted)
	return out
}

func (d *Deduplicator) candidate(i int) *model.PlaceCandidate {
	c := d.accepted[i]
	return &c
}

// Len returns the number of accepted candidates.
func (d *Deduplicator) Len() int { return len(d.accepted) }
