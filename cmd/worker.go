package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/place-enrich/internal/queue"
	"github.com/sells-group/place-enrich/internal/worker"
)

var workerTopics []string

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Process queued collection and website tasks",
	Long:  "Leases tasks from the queue, runs them through the collection or website engine, and acknowledges, redelivers or dead-letters each by outcome. Runs until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "worker")
		if err != nil {
			return err
		}
		defer env.Close()

		orch, err := env.websiteOrchestrator()
		if err != nil {
			return err
		}

		w := worker.New(env.collectionRunner(), orch, env.Queue, workerOptions())
		return w.Run(ctx, workerTopics...)
	},
}

func workerOptions() worker.Options {
	return worker.Options{
		BatchSize:    cfg.Batch.Size,
		Concurrency:  cfg.Batch.MaxConcurrency,
		MaxAttempts:  cfg.Queue.MaxAttempts,
		PollInterval: cfg.Queue.PollInterval,
		Redelivery:   worker.DefaultRedelivery(),
	}
}

// drainTopic processes messages on topic until none are ready. Messages
// nacked for redelivery stay invisible until their delay passes, so they do
// not keep the loop alive. It returns the number of messages handled.
func drainTopic(ctx context.Context, w *worker.Worker, consumer queue.Consumer, topic string, batch int) (int, error) {
	total := 0
	for ctx.Err() == nil {
		msgs, err := consumer.Receive(ctx, topic, batch)
		if err != nil {
			return total, eris.Wrapf(err, "drain %s", topic)
		}
		if len(msgs) == 0 {
			break
		}
		w.ProcessBatch(ctx, msgs)
		total += len(msgs)
	}
	return total, nil
}

func init() {
	workerCmd.Flags().StringSliceVar(&workerTopics, "topics", []string{queue.TopicCollection, queue.TopicWebsite}, "queue topics to consume")
	rootCmd.AddCommand(workerCmd)
}
