package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/bullpen/internal/usage"
)

func newUsageCmd() *cobra.Command {
	var configPath, userID string

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show token usage and cost per model",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			totals, err := usage.Summarize(gormDB, userID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(totals) == 0 {
				fmt.Fprintln(out, "No usage recorded.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tMODEL\tCALLS\tINPUT\tOUTPUT\tCOST")
			var cents int64
			for _, t := range totals {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
					t.Provider, t.Model, t.Calls,
					formatTokenCount(t.InputTokens), formatTokenCount(t.OutputTokens), formatCents(t.CostCents))
				cents += t.CostCents
			}
			fmt.Fprintf(w, "\t\t\t\tTOTAL\t%s\n", formatCents(cents))
			return w.Flush()
		},
	}

	addUserFlags(cmd, &configPath, &userID)
	return cmd
}
