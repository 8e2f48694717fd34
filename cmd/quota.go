package main

import (
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/place-enrich/internal/model"
)

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Show today's provider quota usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "quota")
		if err != nil {
			return err
		}
		defer env.Close()

		st, err := env.Quota.State(ctx)
		if err != nil {
			return eris.Wrap(err, "quota state")
		}
		formatQuota(cmd.OutOrStdout(), cfg.Quota.Kind, st)
		return nil
	},
}

func formatQuota(w io.Writer, kind string, st model.QuotaState) {
	fmt.Fprintf(w, "%s %s: %d/%d units used (%.1f%%), %d remaining\n", //nolint:errcheck
		kind, st.Day, st.UnitsConsumed, st.DailyLimit, st.Fraction()*100, st.Remaining())
}

func init() {
	rootCmd.AddCommand(quotaCmd)
}
