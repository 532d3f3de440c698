package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/bullpen/internal/agent"
)

func newAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Specialist agent management commands",
	}

	cmd.AddCommand(newAgentListCmd())
	cmd.AddCommand(newAgentShowCmd())
	cmd.AddCommand(newAgentCreateCmd())
	cmd.AddCommand(newAgentPromptCmd())
	cmd.AddCommand(newAgentVersionsCmd())
	cmd.AddCommand(newAgentRevertCmd())
	cmd.AddCommand(newAgentArchiveCmd())
	cmd.AddCommand(newAgentSeedCmd())
	cmd.AddCommand(newAgentEvolveCmd())
	return cmd
}

// addUserFlags registers the --config and required --user flags shared by
// every per-user command.
func addUserFlags(cmd *cobra.Command, configPath, userID *string) {
	cmd.Flags().StringVarP(configPath, "config", "c", defaultConfigPath, "path to Bullpen config file")
	cmd.Flags().StringVarP(userID, "user", "u", "", "owning user ID (required)")
	cmd.MarkFlagRequired("user")
}

func newAgentListCmd() *cobra.Command {
	var (
		configPath, userID string
		archived, starters bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			agents, err := agent.List(gormDB, userID, agent.ListFilters{IncludeArchived: archived, StartersOnly: starters})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(agents) == 0 {
				fmt.Fprintln(out, "No agents found.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSLUG\tNAME\tMODEL\tSTATUS")
			for _, a := range agents {
				status := "active"
				if a.ArchivedAt != nil {
					status = "archived"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.ID, a.Slug, a.Name, orDash(a.PreferredModel), status)
			}
			return w.Flush()
		},
	}

	addUserFlags(cmd, &configPath, &userID)
	cmd.Flags().BoolVar(&archived, "archived", false, "include archived agents")
	cmd.Flags().BoolVar(&starters, "starters", false, "only starter agents")
	return cmd
}

func newAgentShowCmd() *cobra.Command {
	var configPath, userID string

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an agent and its live prompt",
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

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Agent: %s (%s)\n", a.Name, a.ID)
			fmt.Fprintf(out, "Slug: %s\n", a.Slug)
			fmt.Fprintf(out, "Model: %s\n", orDash(a.PreferredModel))
			if a.Description != "" {
				fmt.Fprintf(out, "Description: %s\n", a.Description)
			}
			if a.ArchivedAt != nil {
				fmt.Fprintf(out, "Archived: %s\n", a.ArchivedAt.Format("2006-01-02 15:04"))
			}
			fmt.Fprintf(out, "\nSystem prompt:\n%s\n", a.SystemPrompt)
			return nil
		},
	}

	addUserFlags(cmd, &configPath, &userID)
	return cmd
}

func newAgentCreateCmd() *cobra.Command {
	var (
		configPath, userID                    string
		name, description, model, prompt, file string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := promptText(prompt, file)
			if err != nil {
				return err
			}
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			a, err := agent.Create(gormDB, agent.CreateOpts{
				UserID:         userID,
				Name:           name,
				Description:    description,
				SystemPrompt:   text,
				PreferredModel: model,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created agent %s (slug %s)\n", a.ID, a.Slug)
			return nil
		},
	}

	addUserFlags(cmd, &configPath, &userID)
	cmd.Flags().StringVar(&name, "name", "", "display name (required)")
	cmd.Flags().StringVar(&description, "description", "", "short description")
	cmd.Flags().StringVar(&model, "model", "", "preferred model as provider:model")
	cmd.Flags().StringVar(&prompt, "prompt", "", "system prompt text")
	cmd.Flags().StringVar(&file, "prompt-file", "", "read the system prompt from a file")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagsMutuallyExclusive("prompt", "prompt-file")
	return cmd
}

func newAgentPromptCmd() *cobra.Command {
	var configPath, userID, prompt, file, summary string

	cmd := &cobra.Command{
		Use:   "prompt <id>",
		Short: "Replace an agent's system prompt",
		Long:  "Replaces the live system prompt. The previous text is kept as a manual version.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := promptText(prompt, file)
			if err != nil {
				return err
			}
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			if _, err := agent.UpdatePrompt(gormDB, args[0], userID, text, summary); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated prompt of agent %s\n", args[0])
			return nil
		},
	}

	addUserFlags(cmd, &configPath, &userID)
	cmd.Flags().StringVar(&prompt, "prompt", "", "system prompt text")
	cmd.Flags().StringVar(&file, "prompt-file", "", "read the system prompt from a file")
	cmd.Flags().StringVar(&summary, "summary", "", "change summary stored on the snapshot")
	cmd.MarkFlagsMutuallyExclusive("prompt", "prompt-file")
	return cmd
}

func newAgentVersionsCmd() *cobra.Command {
	var configPath, userID string

	cmd := &cobra.Command{
		Use:   "versions <id>",
		Short: "List an agent's prompt versions, newest first",
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
			versions, err := agent.ListVersions(gormDB, a.ID)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tID\tSOURCE\tCREATED\tSUMMARY")
			for _, v := range versions {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
					v.Version, v.ID, v.ChangeSource, v.CreatedAt.Format("2006-01-02 15:04"),
					truncate(orDash(v.ChangeSummary), 60))
			}
			return w.Flush()
		},
	}

	addUserFlags(cmd, &configPath, &userID)
	return cmd
}

func newAgentRevertCmd() *cobra.Command {
	var configPath, userID string

	cmd := &cobra.Command{
		Use:   "revert <id> <version-id>",
		Short: "Restore an agent's prompt from a stored version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			if _, err := agent.Revert(gormDB, args[0], args[1], userID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reverted agent %s to version %s\n", args[0], args[1])
			return nil
		},
	}

	addUserFlags(cmd, &configPath, &userID)
	return cmd
}

func newAgentArchiveCmd() *cobra.Command {
	var configPath, userID string

	cmd := &cobra.Command{
		Use:   "archive <id>",
		Short: "Archive an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			if err := agent.Archive(gormDB, args[0], userID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Archived agent %s\n", args[0])
			return nil
		},
	}

	addUserFlags(cmd, &configPath, &userID)
	return cmd
}

func newAgentSeedCmd() *cobra.Command {
	var configPath, userID string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the configured starter agents for a user",
		Long:  "Creates every starter agent from the config that the user does not have yet.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			n, err := agent.SeedStarters(gormDB, userID, cfg.Starters)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d of %d starter agents\n", n, len(cfg.Starters))
			return nil
		},
	}

	addUserFlags(cmd, &configPath, &userID)
	return cmd
}

func newAgentEvolveCmd() *cobra.Command {
	var configPath, userID string

	cmd := &cobra.Command{
		Use:   "evolve <id>",
		Short: "Run one prompt evolution check now",
		Long:  "Runs the feedback gate and, when it passes, asks the evolution model for a revised prompt.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			if !cfg.EvolutionEnabled() {
				return fmt.Errorf("evolution is disabled in %s", configPath)
			}
			ctx := context.Background()
			a, err := newApp(ctx, cfg, gormDB)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			outcome := a.evolution.MaybeEvolve(ctx, args[0], userID)
			fmt.Fprintf(cmd.OutOrStdout(), "Evolution outcome: %s\n", outcome)
			return nil
		},
	}

	addUserFlags(cmd, &configPath, &userID)
	return cmd
}

// promptText returns the prompt given inline or read from file.
func promptText(prompt, file string) (string, error) {
	if file == "" {
		if prompt == "" {
			return "", fmt.Errorf("one of --prompt or --prompt-file is required")
		}
		return prompt, nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("read prompt file: %w", err)
	}
	return string(data), nil
}
