package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/place-enrich/internal/db"
)

const (
	publishSQL = `INSERT INTO task_queue (id, topic, payload, status, attempts, visible_at)
VALUES ($1, $2, $3, 'ready', 0, now())`

	// Leased rows whose lease expired are picked up again.
	receiveSQL = `WITH next AS (
	SELECT id FROM task_queue
	WHERE topic = $1 AND status IN ('ready', 'leased') AND visible_at <= now()
	ORDER BY created_at
	LIMIT $2
	FOR UPDATE SKIP LOCKED
)
UPDATE task_queue q
SET status = 'leased', attempts = q.attempts + 1, visible_at = $3, updated_at = now()
FROM next
WHERE q.id = next.id
RETURNING q.id, q.topic, q.payload, q.attempts, q.created_at`

	ackSQL        = `DELETE FROM task_queue WHERE id = $1`
	nackSQL       = `UPDATE task_queue SET status = 'ready', visible_at = $2, last_error = $3, updated_at = now() WHERE id = $1`
	deadLetterSQL = `UPDATE task_queue SET status = 'dead', last_error = $2, updated_at = now() WHERE id = $1`
)

// Postgres is a Queue backed by the task_queue table.
type Postgres struct {
	pool  db.Pool
	lease time.Duration
	now   func() time.Time
}

// NewPostgres creates a Postgres queue with the given lease duration.
func NewPostgres(pool db.Pool, lease time.Duration) *Postgres {
	if lease <= 0 {
		lease = 15 * time.Minute
	}
	return &Postgres{pool: pool, lease: lease, now: time.Now}
}

func (q *Postgres) Publish(ctx context.Context, topic string, payload any) (string, error) {
	raw, err := marshalPayload(payload)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	if _, err := q.pool.Exec(ctx, publishSQL, id, topic, raw); err != nil {
		return "", eris.Wrapf(err, "queue: publish to %s", topic)
	}
	return id, nil
}

func (q *Postgres) Receive(ctx context.Context, topic string, max int) ([]Message, error) {
	if max <= 0 {
		max = 1
	}
	rows, err := q.pool.Query(ctx, receiveSQL, topic, max, q.now().Add(q.lease))
	if err != nil {
		return nil, eris.Wrapf(err, "queue: receive from %s", topic)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Topic, &m.Payload, &m.Attempts, &m.EnqueuedAt); err != nil {
			return nil, eris.Wrap(err, "queue: scan message")
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "queue: iterate messages")
	}
	return out, nil
}

func (q *Postgres) Ack(ctx context.Context, id string) error {
	if _, err := q.pool.Exec(ctx, ackSQL, id); err != nil {
		return eris.Wrapf(err, "queue: ack %s", id)
	}
	return nil
}

func (q *Postgres) Nack(ctx context.Context, id string, delay time.Duration, reason string) error {
	if _, err := q.pool.Exec(ctx, nackSQL, id, q.now().Add(delay), reason); err != nil {
		return eris.Wrapf(err, "queue: nack %s", id)
	}
	return nil
}

func (q *Postgres) DeadLetter(ctx context.Context, id string, reason string) error {
	if _, err := q.pool.Exec(ctx, deadLetterSQL, id, reason); err != nil {
		return eris.Wrapf(err, "queue: dead-letter %s", id)
	}
	return nil
}
