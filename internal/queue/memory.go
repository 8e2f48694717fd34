package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

type memEntry struct {
	msg       Message
	visibleAt time.Time
	dead      bool
	reason    string
}

// Memory is an in-process Queue used by tests and single-process runs.
type Memory struct {
	mu      sync.Mutex
	lease   time.Duration
	now     func() time.Time
	entries map[string]*memEntry
}

// NewMemory creates an empty in-process queue with the given lease duration.
func NewMemory(lease time.Duration) *Memory {
	if lease <= 0 {
		lease = 15 * time.Minute
	}
	return &Memory{lease: lease, now: time.Now, entries: make(map[string]*memEntry)}
}

func (q *Memory) Publish(_ context.Context, topic string, payload any) (string, error) {
	raw, err := marshalPayload(payload)
	if err != nil {
		return "", err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	id := uuid.NewString()
	q.entries[id] = &memEntry{
		msg:       Message{ID: id, Topic: topic, Payload: raw, EnqueuedAt: now},
		visibleAt: now,
	}
	return id, nil
}

func (q *Memory) Receive(_ context.Context, topic string, max int) ([]Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var ready []*memEntry
	for _, e := range q.entries {
		if e.msg.Topic == topic && !e.dead && !e.visibleAt.After(now) {
			ready = append(ready, e)
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		return ready[i].msg.EnqueuedAt.Before(ready[j].msg.EnqueuedAt)
	})
	if max > 0 && len(ready) > max {
		ready = ready[:max]
	}

	out := make([]Message, 0, len(ready))
	for _, e := range ready {
		e.msg.Attempts++
		e.visibleAt = now.Add(q.lease)
		out = append(out, e.msg)
	}
	return out, nil
}

func (q *Memory) Ack(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.entries[id]; !ok {
		return eris.Errorf("queue: message %s not found", id)
	}
	delete(q.entries, id)
	return nil
}

func (q *Memory) Nack(_ context.Context, id string, delay time.Duration, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok {
		return eris.Errorf("queue: message %s not found", id)
	}
	e.visibleAt = q.now().Add(delay)
	e.reason = reason
	return nil
}

func (q *Memory) DeadLetter(_ context.Context, id string, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok {
		return eris.Errorf("queue: message %s not found", id)
	}
	e.dead = true
	e.reason = reason
	return nil
}

// Len returns the number of live (not dead-lettered) messages on topic.
func (q *Memory) Len(topic string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, e := range q.entries {
		if e.msg.Topic == topic && !e.dead {
			n++
		}
	}
	return n
}

// Dead returns the dead-lettered messages and their reasons, keyed by ID.
func (q *Memory) Dead() map[string]string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[string]string)
	for id, e := range q.entries {
		if e.dead {
			out[id] = e.reason
		}
	}
	return out
}
