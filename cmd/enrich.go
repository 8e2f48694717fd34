package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/place-enrich/internal/model"
	"github.com/sells-group/place-enrich/internal/worker"
)

var (
	enrichCompanyID string
	enrichWebsite   string
	enrichPending   int
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich companies from their websites",
	Long:  "Runs website enrichment for one company (--company-id, optionally --website) or for up to --pending companies whose website has never been scraped.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if enrichCompanyID == "" && enrichPending <= 0 {
			return eris.New("either --company-id or --pending is required")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		orch, err := env.websiteOrchestrator()
		if err != nil {
			return err
		}

		if enrichCompanyID != "" {
			task := model.WebsiteTask{CompanyID: enrichCompanyID, Website: enrichWebsite}
			if task.Website == "" {
				c, err := env.Store.GetCompany(ctx, enrichCompanyID)
				if err != nil {
					return eris.Wrapf(err, "enrich: load company %s", enrichCompanyID)
				}
				task.Website = c.Website
			}
			if err := task.Validate(); err != nil {
				return err
			}

			res, err := orch.Run(ctx, task)
			if err != nil {
				return eris.Wrap(err, "enrich")
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}

		companies, err := env.Store.ListPendingWebsites(ctx, enrichPending)
		if err != nil {
			return eris.Wrap(err, "enrich: list pending")
		}
		zap.L().Info("enriching pending companies", zap.Int("count", len(companies)))

		counts := enrichCompanies(ctx, orch, companies, cfg.Batch.MaxConcurrency)
		formatEnrichCounts(cmd, counts, len(companies))
		return nil
	},
}

// enrichCompanies runs website enrichment for each company with bounded
// concurrency. Failures are logged and counted; they never stop the batch.
func enrichCompanies(ctx context.Context, runner worker.WebsiteRunner, companies []model.Company, concurrency int) map[model.EnrichmentStatus]int {
	if concurrency < 1 {
		concurrency = 1
	}

	var mu sync.Mutex
	counts := make(map[model.EnrichmentStatus]int)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, c := range companies {
		g.Go(func() error {
			status := model.EnrichmentFailed
			res, err := runner.Run(gctx, model.WebsiteTask{CompanyID: c.CompanyID, Website: c.Website})
			switch {
			case err != nil:
				zap.L().Error("enrichment failed",
					zap.String("company_id", c.CompanyID),
					zap.Error(err),
				)
				if res != nil {
					status = res.Status
				}
			case res != nil:
				status = res.Status
			}

			mu.Lock()
			counts[status]++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return counts
}

func formatEnrichCounts(cmd *cobra.Command, counts map[model.EnrichmentStatus]int, total int) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STATUS\tCOMPANIES") //nolint:errcheck
	for _, s := range []model.EnrichmentStatus{
		model.EnrichmentCompleted,
		model.EnrichmentPartial,
		model.EnrichmentFailed,
		model.EnrichmentDatabaseError,
	} {
		fmt.Fprintf(w, "%s\t%d\n", s, counts[s]) //nolint:errcheck
	}
	fmt.Fprintf(w, "total\t%d\n", total) //nolint:errcheck
	_ = w.Flush()
}

func init() {
	enrichCmd.Flags().StringVar(&enrichCompanyID, "company-id", "", "company to enrich")
	enrichCmd.Flags().StringVar(&enrichWebsite, "website", "", "website URL (default: the company's stored website)")
	enrichCmd.Flags().IntVar(&enrichPending, "pending", 0, "enrich up to N companies never scraped")
	enrichCmd.MarkFlagsMutuallyExclusive("company-id", "pending")
	rootCmd.AddCommand(enrichCmd)
}
