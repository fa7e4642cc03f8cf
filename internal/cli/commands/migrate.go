package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/portal/internal/cli/config"
	"github.com/conduit-lang/portal/internal/cli/ui"
	"github.com/conduit-lang/portal/internal/store"
)

// NewMigrateCommand creates the migrate command
func NewMigrateCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
		Long: `Apply and inspect the schema migrations embedded in the binary.

Each migration runs in its own transaction and is recorded in
schema_migrations, so re-running "migrate up" only applies what is pending.`,
	}

	cmd.AddCommand(newMigrateUpCommand(opts))
	cmd.AddCommand(newMigrateStatusCommand(opts))

	return cmd
}

func newMigrateUpCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}

			db, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			migrator, err := store.NewMigrator(db)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			applied, err := migrator.Up(cmd.Context())
			for _, name := range applied {
				color.New(color.FgGreen).Fprintf(out, "  ✓ %s\n", name)
			}
			if err != nil {
				ui.MigrationError(err, len(applied), color.NoColor).Write(cmd.ErrOrStderr())
				return errors.New("migrations incomplete")
			}

			if len(applied) == 0 {
				color.New(color.FgCyan).Fprintln(out, "No pending migrations")
				return nil
			}
			ui.WriteSuccess(out, fmt.Sprintf("Applied %d migration(s)", len(applied)), color.NoColor)
			return nil
		},
	}
}

func newMigrateStatusCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}

			db, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			migrator, err := store.NewMigrator(db)
			if err != nil {
				return err
			}

			migrations, err := migrator.Status(cmd.Context())
			if err != nil {
				return err
			}
			renderMigrationStatus(cmd, migrations)
			return nil
		},
	}
}

func renderMigrationStatus(cmd *cobra.Command, migrations []store.Migration) {
	out := cmd.OutOrStdout()
	if len(migrations) == 0 {
		color.New(color.FgCyan).Fprintln(out, "No migrations embedded")
		return
	}

	table := ui.NewTable(out, color.NoColor, "Migration", "Status", "Applied at")
	pending := 0
	for _, m := range migrations {
		if m.AppliedAt == nil {
			pending++
			table.AddRow(m.Name, "pending", "")
			continue
		}
		table.AddRow(m.Name, "applied", m.AppliedAt.UTC().Format("2006-01-02 15:04:05"))
	}
	table.Render()

	fmt.Fprintln(out)
	if pending == 0 {
		ui.WriteSuccess(out, "Schema is up to date", color.NoColor)
		return
	}
	color.New(color.FgYellow).Fprintf(out, "%d pending migration(s); run: portal migrate up\n", pending)
}

// openDatabase opens and pings the configured database
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	if cfg.Database.URL == "" {
		return nil, &configError{err: errors.New("database.url is required (or set DATABASE_URL)")}
	}
	return store.Open(ctx, cfg.Database.URL, cfg.Database.Pool)
}
