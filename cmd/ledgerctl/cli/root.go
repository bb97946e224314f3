// Package cli implements the ledgerctl operator commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/coa"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Seeder loads a chart of accounts table.
type Seeder interface {
	Seed(ctx context.Context, file coa.SeedFile) (coa.SeedResult, error)
}

// Deps supplies the resources commands need. Each opener is called only by
// the command that uses it and returns a release func.
type Deps struct {
	Logger       *slog.Logger
	SeedFile     string
	MigrationDir string
	Migrations   func(ctx context.Context) (db.MigrationStore, func(), error)
	Seeder       func(ctx context.Context) (Seeder, func(), error)
	Jobs         func() (*JobsCLI, error)
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand(deps Deps) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Operator tooling for the odyssey ledger",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newMigrateCommand(deps), newSeedCommand(deps), newJobsCommand(deps))

	return rootCmd
}

func newMigrateCommand(deps Deps) *cobra.Command {
	dir := deps.MigrationDir
	if dir == "" {
		dir = "migrations"
	}
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQL migrations in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), cmd.OutOrStdout(), os.DirFS(dir), deps)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", dir, "directory holding *.sql migrations")
	return cmd
}

func runMigrate(ctx context.Context, out io.Writer, fsys fs.FS, deps Deps) error {
	store, release, err := deps.Migrations(ctx)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer release()
	applied, err := db.Migrate(ctx, fsys, store)
	for _, name := range applied {
		fmt.Fprintf(out, "applied %s\n", name)
	}
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Fprintln(out, "schema up to date")
	}
	return nil
}

func newSeedCommand(deps Deps) *cobra.Command {
	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Load reference data",
	}

	file := deps.SeedFile
	coaCmd := &cobra.Command{
		Use:   "coa",
		Short: "Seed the chart of accounts from a YAML table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := coa.LoadSeedFile(file)
			if err != nil {
				return err
			}
			seeder, release, err := deps.Seeder(cmd.Context())
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer release()
			res, err := seeder.Seed(cmd.Context(), seed)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "groups created: %d, existing: %d\n", res.GroupsCreated, res.GroupsExisting)
			fmt.Fprintf(out, "accounts created: %d, updated: %d\n", res.AccountsCreated, res.AccountsUpdated)
			for _, s := range res.Skipped {
				fmt.Fprintf(out, "skipped: %s\n", s)
			}
			return nil
		},
	}
	coaCmd.Flags().StringVar(&file, "file", file, "chart of accounts YAML file")
	seedCmd.AddCommand(coaCmd)
	return seedCmd
}

func newJobsCommand(deps Deps) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Enqueue and inspect background jobs",
	}

	withJobs := func(fn func(cmd *cobra.Command, c *JobsCLI, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			c, err := deps.Jobs()
			if err != nil {
				return err
			}
			defer func() {
				if err := c.Close(); err != nil && deps.Logger != nil {
					deps.Logger.Warn("close jobs client", slog.Any("error", err))
				}
			}()
			return fn(cmd, c, args)
		}
	}

	jobsCmd.AddCommand(
		&cobra.Command{
			Use:   "propagate <voucher-id>",
			Short: "Enqueue balance propagation for a posted voucher",
			Args:  cobra.ExactArgs(1),
			RunE: withJobs(func(cmd *cobra.Command, c *JobsCLI, args []string) error {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil || id <= 0 {
					return fmt.Errorf("invalid voucher id %q", args[0])
				}
				if err := c.Propagate(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "propagation queued for voucher %d\n", id)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "integrity",
			Short: "Enqueue an immediate GL integrity check",
			Args:  cobra.NoArgs,
			RunE: withJobs(func(cmd *cobra.Command, c *JobsCLI, args []string) error {
				id, err := c.Integrity(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "integrity check queued: %s\n", id)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "inspect",
			Short: "Print queue depths",
			Args:  cobra.NoArgs,
			RunE: withJobs(func(cmd *cobra.Command, c *JobsCLI, args []string) error {
				return c.Inspect(cmd.OutOrStdout())
			}),
		},
	)
	return jobsCmd
}
