package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/bullpen/internal/agent"
	"github.com/zulandar/bullpen/internal/feedback"
)

func newFeedbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Agent feedback commands",
	}
	cmd.AddCommand(newFeedbackSubmitCmd())
	cmd.AddCommand(newFeedbackSummaryCmd())
	return cmd
}

func newFeedbackSubmitCmd() *cobra.Command {
	var configPath, userID, rating, correction, executionID string

	cmd := &cobra.Command{
		Use:   "submit <agent-id>",
		Short: "Rate an agent's output",
		Long:  "Records a rating. Run `bp agent evolve` afterwards to check whether the prompt should change.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			a, err := agent.Get(gormDB, args[0], userID)
			if err != nil {
				return err
			}
			fb, err := feedback.Submit(gormDB, feedback.SubmitOpts{
				UserID:      userID,
				AgentID:     a.ID,
				ExecutionID: executionID,
				Rating:      rating,
				Correction:  correction,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s feedback %s for %s\n", fb.Rating, fb.ID, a.Name)
			return nil
		},
	}

	addUserFlags(cmd, &configPath, &userID)
	cmd.Flags().StringVar(&rating, "rating", "", "positive or negative (required)")
	cmd.Flags().StringVar(&correction, "correction", "", "what the agent should have done instead")
	cmd.Flags().StringVar(&executionID, "execution", "", "execution the rating refers to")
	cmd.MarkFlagRequired("rating")
	return cmd
}

func newFeedbackSummaryCmd() *cobra.Command {
	var configPath, userID string

	cmd := &cobra.Command{
		Use:   "summary <agent-id>",
		Short: "Show an agent's feedback totals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			a, err := agent.Get(gormDB, args[0], userID)
			if err != nil {
				return err
			}
			s, err := feedback.Summarize(gormDB, a.ID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Agent: %s\n", a.Name)
			fmt.Fprintf(out, "Positive: %d\nNegative: %d\nCorrections: %d\n", s.Positive, s.Negative, s.Corrections)
			if s.LastAt != nil {
				fmt.Fprintf(out, "Last: %s\n", s.LastAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}

	addUserFlags(cmd, &configPath, &userID)
	return cmd
}
