package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/bullpen/internal/execution"
)

func newExecutionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "execution",
		Short: "Specialist execution history",
	}
	cmd.AddCommand(newExecutionListCmd())
	return cmd
}

func newExecutionListCmd() *cobra.Command {
	var (
		configPath, userID, agentID, status string
		limit                               int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's executions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			rows, err := execution.List(gormDB, userID, execution.ListFilters{AgentID: agentID, Status: status, Limit: limit})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "No executions found.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tAGENT\tSTATUS\tMODEL\tCREATED\tTASK")
			for _, e := range rows {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					e.ID, e.AgentID, e.Status, orDash(e.Model),
					e.CreatedAt.Format("2006-01-02 15:04"), truncate(e.Task, 50))
			}
			return w.Flush()
		},
	}

	addUserFlags(cmd, &configPath, &userID)
	cmd.Flags().StringVar(&agentID, "agent", "", "only executions of this agent")
	cmd.Flags().StringVar(&status, "status", "", "only executions with this status (running, completed, failed)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows to show")
	return cmd
}
