package quota

import (
	"context"
	"sync"

	"github.com/sells-group/place-enrich/internal/model"
)

// MemoryTracker is a process-local Tracker for tests and dry runs.
type MemoryTracker struct {
	mu    sync.Mutex
	kind  string
	limit int64
	clock Clock
	day   string
	used  int64
}

// NewMemoryTracker creates a MemoryTracker with the given daily limit.
func NewMemoryTracker(limit int64, clock Clock) *MemoryTracker {
	return &MemoryTracker{kind: "memory", limit: limit, clock: clock}
}

// Seed sets the units already consumed today.
func (m *MemoryTracker) Seed(used int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.day = m.clock.Day()
	m.used = used
}

func (m *MemoryTracker) Reserve(_ context.Context, units int64) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rollover()
	if m.used+units > m.limit {
		logDenied(m.kind, m.day, m.used, units, m.limit)
		return Decision{Allowed: false, Used: m.used, Limit: m.limit}, nil
	}
	before := m.used
	m.used += units
	logCrossings(m.kind, m.day, before, m.used, m.limit)
	return Decision{Allowed: true, Used: m.used, Limit: m.limit}, nil
}

func (m *MemoryTracker) State(_ context.Context) (model.QuotaState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rollover()
	return model.QuotaState{Day: m.day, UnitsConsumed: m.used, DailyLimit: m.limit}, nil
}

func (m *MemoryTracker) rollover() {
	if day := m.clock.Day(); day != m.day {
		m.day = day
		m.used = 0
	}
}
