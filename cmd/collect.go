package main

import (
	"encoding/json"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/place-enrich/internal/model"
	"github.com/sells-group/place-enrich/internal/queue"
	"github.com/sells-group/place-enrich/internal/worker"
)

var (
	collectCity   string
	collectState  string
	collectNiche  string
	collectEnrich bool
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect places for one niche in one city",
	Long:  "Searches Google Places for every term of the niche, deduplicates, enriches with place details and stores the result as companies. With --enrich-websites, the website tasks queued by the run are processed before exiting.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		mode := "collect"
		if collectEnrich {
			mode = "worker"
		}
		env, err := initEnv(ctx, mode)
		if err != nil {
			return err
		}
		defer env.Close()

		task := model.CollectionTask{City: collectCity, State: collectState, Niche: collectNiche}
		run, err := env.collectionRunner().Run(ctx, task)
		if err != nil {
			return eris.Wrap(err, "collect")
		}

		zap.L().Info("collection complete",
			zap.String("run_id", run.ID),
			zap.String("status", string(run.Outcome.Status)),
			zap.Int("new_places", run.Stats.NewPlaces),
			zap.Int("website_tasks", run.Stats.WebsiteTasksQueued),
		)

		if collectEnrich && run.Stats.WebsiteTasksQueued > 0 {
			orch, err := env.websiteOrchestrator()
			if err != nil {
				return err
			}
			w := worker.New(nil, orch, env.Queue, workerOptions())
			drained, err := drainTopic(ctx, w, env.Queue, queue.TopicWebsite, cfg.Batch.Size)
			if err != nil {
				return err
			}
			zap.L().Info("website tasks processed", zap.Int("messages", drained))
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

func init() {
	collectCmd.Flags().StringVar(&collectCity, "city", "", "city name (required)")
	collectCmd.Flags().StringVar(&collectState, "state", "", "state code (required)")
	collectCmd.Flags().StringVar(&collectNiche, "niche", "", "niche key (required)")
	collectCmd.Flags().BoolVar(&collectEnrich, "enrich-websites", false, "process queued website tasks after collecting")
	_ = collectCmd.MarkFlagRequired("city")
	_ = collectCmd.MarkFlagRequired("state")
	_ = collectCmd.MarkFlagRequired("niche")
	rootCmd.AddCommand(collectCmd)
}
