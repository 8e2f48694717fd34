// Package worker leases tasks from the queue, routes them to the collection
// and website engines, and settles each message by outcome.
package worker

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/place-enrich/internal/model"
	"github.com/sells-group/place-enrich/internal/queue"
	"github.com/sells-group/place-enrich/internal/resilience"
)

// CollectionRunner runs one collection task.
type CollectionRunner interface {
	Run(ctx context.Context, task model.CollectionTask) (*model.CollectionRun, error)
}

// WebsiteRunner runs one website enrichment task.
type WebsiteRunner interface {
	Run(ctx context.Context, task model.WebsiteTask) (*model.ExtractionResult, error)
}

// Options tunes a Worker.
type Options struct {
	// BatchSize is the number of messages leased per topic per poll.
	BatchSize int
	// Concurrency bounds messages processed at once within a batch.
	Concurrency  int
	MaxAttempts  int
	PollInterval time.Duration
	// Redelivery spaces out retries of transient failures.
	Redelivery resilience.Backoff
}

// DefaultRedelivery waits 30s, doubling to at most 10m, between deliveries.
func DefaultRedelivery() resilience.Backoff {
	return resilience.Backoff{Initial: 30 * time.Second, Max: 10 * time.Minute, Jitter: 0.2}
}

// Worker processes queued tasks. Either runner may be nil, in which case
// messages for its topic are dead-lettered.
type Worker struct {
	collect  CollectionRunner
	website  WebsiteRunner
	consumer queue.Consumer
	opts     Options
	sleep    resilience.Sleeper
}

// New creates a Worker.
func New(collect CollectionRunner, website WebsiteRunner, consumer queue.Consumer, opts Options) *Worker {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.Redelivery.Initial <= 0 {
		opts.Redelivery = DefaultRedelivery()
	}
	return &Worker{
		collect:  collect,
		website:  website,
		consumer: consumer,
		opts:     opts,
		sleep:    resilience.SleepContext,
	}
}

// Run polls topics until ctx is done. An idle pass over every topic waits
// PollInterval before polling again.
func (w *Worker) Run(ctx context.Context, topics ...string) error {
	log := zap.L().With(zap.Strings("topics", topics))
	log.Info("worker: started", zap.Int("batch_size", w.opts.BatchSize), zap.Int("concurrency", w.opts.Concurrency))

	for {
		if ctx.Err() != nil {
			log.Info("worker: stopped")
			return nil
		}

		idle := true
		for _, topic := range topics {
			msgs, err := w.consumer.Receive(ctx, topic, w.opts.BatchSize)
			if err != nil {
				if ctx.Err() != nil {
					break
				}
				log.Error("worker: receive failed", zap.String("topic", topic), zap.Error(err))
				continue
			}
			if len(msgs) == 0 {
				continue
			}
			idle = false
			redeliver := w.ProcessBatch(ctx, msgs)
			log.Info("worker: batch processed",
				zap.String("topic", topic),
				zap.Int("messages", len(msgs)),
				zap.Int("redelivered", len(redeliver)),
			)
		}

		if idle {
			if err := w.sleep(ctx, w.opts.PollInterval); err != nil {
				log.Info("worker: stopped")
				return nil
			}
		}
	}
}

// ProcessBatch handles msgs concurrently and settles each one. It returns
// the messages that were nacked for redelivery.
func (w *Worker) ProcessBatch(ctx context.Context, msgs []queue.Message) []queue.Message {
	var (
		mu        sync.Mutex
		redeliver []queue.Message
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.Concurrency)
	for _, msg := range msgs {
		g.Go(func() error {
			if w.process(gctx, msg) {
				mu.Lock()
				redeliver = append(redeliver, msg)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	order := make(map[string]int, len(msgs))
	for i, m := range msgs {
		order[m.ID] = i
	}
	slices.SortFunc(redeliver, func(a, b queue.Message) int {
		return cmp.Compare(order[a.ID], order[b.ID])
	})
	return redeliver
}

// process runs one message and reports whether it was nacked.
func (w *Worker) process(ctx context.Context, msg queue.Message) bool {
	log := zap.L().With(
		zap.String("message_id", msg.ID),
		zap.String("topic", msg.Topic),
		zap.Int("attempt", msg.Attempts),
	)

	err := w.handle(ctx, msg, log)
	class := resilience.Classify(err)

	// Settling uses a fresh context so shutdown does not strand leases.
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	switch {
	case class == resilience.FailureNone:
		settle(log, "ack", w.consumer.Ack(sctx, msg.ID))
		return false

	case model.IsValidation(err):
		log.Warn("worker: invalid task acknowledged", zap.Error(err))
		settle(log, "ack", w.consumer.Ack(sctx, msg.ID))
		return false

	case resilience.ShouldDeadLetter(class, msg.Attempts, w.opts.MaxAttempts):
		log.Error("worker: task dead-lettered", zap.String("class", string(class)), zap.Error(err))
		settle(log, "dead-letter", w.consumer.DeadLetter(sctx, msg.ID, err.Error()))
		return false
	}

	delay := w.opts.Redelivery.Delay(max(msg.Attempts-1, 0))
	log.Warn("worker: task failed, redelivering", zap.Duration("delay", delay), zap.Error(err))
	settle(log, "nack", w.consumer.Nack(sctx, msg.ID, delay, err.Error()))
	return true
}

func settle(log *zap.Logger, action string, err error) {
	if err != nil {
		log.Error("worker: settle message failed", zap.String("action", action), zap.Error(err))
	}
}

// handle routes msg to its engine. Terminal business outcomes such as quota
// exhaustion or a disallowing crawl policy return nil.
func (w *Worker) handle(ctx context.Context, msg queue.Message, log *zap.Logger) error {
	switch msg.Topic {
	case queue.TopicCollection:
		if w.collect == nil {
			return eris.New("worker: no collection runner configured")
		}
		var task model.CollectionTask
		if err := msg.Decode(&task); err != nil {
			return &model.ValidationError{Field: "payload", Reason: err.Error()}
		}
		run, err := w.collect.Run(ctx, task)
		if run != nil {
			log.Info("worker: collection task done",
				zap.String("task", run.Task.String()),
				zap.String("status", string(run.Outcome.Status)),
				zap.Int("new_places", run.Stats.NewPlaces),
			)
		}
		return err

	case queue.TopicWebsite:
		if w.website == nil {
			return eris.New("worker: no website runner configured")
		}
		var task model.WebsiteTask
		if err := msg.Decode(&task); err != nil {
			return &model.ValidationError{Field: "payload", Reason: err.Error()}
		}
		if err := task.Validate(); err != nil {
			return err
		}
		res, err := w.website.Run(ctx, task)
		if res != nil {
			log.Info("worker: website task done",
				zap.String("company_id", res.CompanyID),
				zap.String("status", string(res.Status)),
				zap.String("reason", res.Reason),
			)
		}
		return err
	}
	return eris.Errorf("worker: unknown topic %q", msg.Topic)
}
