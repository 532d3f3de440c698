package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/bullpen/internal/config"
	"github.com/zulandar/bullpen/internal/db"
	"golang.org/x/term"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	cmd.AddCommand(newDBResetCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the Bullpen database",
		Long:  "Creates the database (MySQL/Dolt) or database file (sqlite) and migrates all tables.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Bullpen config file")
	return cmd
}

func runDBInit(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	fmt.Fprintf(out, "Loaded config from %s\n", configPath)

	return initDatabase(out, cfg.Database)
}

func initDatabase(out io.Writer, dc config.DatabaseConfig) error {
	if dc.Driver == "mysql" {
		adminDB, err := db.ConnectAdmin(dc)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Connected to %s:%d\n", dc.Host, dc.Port)
		if err := db.CreateDatabase(adminDB, dc.Name); err != nil {
			return err
		}
		fmt.Fprintf(out, "Database %s ready\n", dc.Name)
	}

	gormDB, err := db.Connect(dc)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))

	fmt.Fprintln(out, "\nBullpen database initialized successfully.")
	return nil
}

func newDBResetCmd() *cobra.Command {
	var (
		configPath string
		yes        bool
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop and re-initialize the Bullpen database",
		Long: `Drops the Bullpen database (or deletes the sqlite file) and re-creates it
with every table migrated. All agents, versions, executions and feedback
are lost.

Without --yes the command asks for confirmation, which requires an
interactive terminal.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBReset(cmd, configPath, yes)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Bullpen config file")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompt")
	return cmd
}

func runDBReset(cmd *cobra.Command, configPath string, skipConfirm bool) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	dc := cfg.Database

	target := dc.Name
	if dc.Driver == "sqlite" {
		target = dc.Path
	}

	if !skipConfirm {
		if !isTerminal(cmd.InOrStdin()) {
			return fmt.Errorf("refusing to reset %s without --yes: stdin is not a terminal", target)
		}
		if !confirmReset(cmd, target) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	switch dc.Driver {
	case "mysql":
		adminDB, err := db.ConnectAdmin(dc)
		if err != nil {
			return err
		}
		if err := db.DropDatabase(adminDB, dc.Name); err != nil {
			return err
		}
	case "sqlite":
		if err := os.Remove(dc.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", dc.Path, err)
		}
	}
	fmt.Fprintf(out, "Dropped %s\n", target)

	return initDatabase(out, dc)
}

func isTerminal(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func confirmReset(cmd *cobra.Command, target string) bool {
	out := cmd.OutOrStdout()
	in := cmd.InOrStdin()

	fmt.Fprintf(out, "WARNING: This will permanently delete all data in %q.\n", target)
	fmt.Fprintln(out, "This action cannot be undone.")
	fmt.Fprintln(out)
	fmt.Fprint(out, "Type \"yes\" to confirm: ")

	scanner := bufio.NewScanner(in)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()) == "yes"
	}
	return false
}
