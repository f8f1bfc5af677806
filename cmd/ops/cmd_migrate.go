package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"docuflow/internal/config"
	"docuflow/internal/database"
	"docuflow/internal/migration"
	"docuflow/internal/platform"
	"docuflow/internal/preflight"
	"docuflow/internal/storage"
)

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Print or apply SQL migrations",
		Long: `Work with the application's SQL migration files.

Available subcommands:
  list  - Show the known migrations and whether their files exist
  print - Print a migration with manual dashboard instructions
  run   - Apply a migration via RPC (or --direct), falling back to manual instructions`,
	}
	cmd.AddCommand(newMigrateListCmd(a), newMigratePrintCmd(a), newMigrateRunCmd(a))
	return cmd
}

func newMigrateListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known migrations",
		Args:  cobra.NoArgs,
		RunE: a.instrument("migrate list", func(_ context.Context, cmd *cobra.Command, _ []string) error {
			p := a.printer(cmd)
			cat := migration.NewCatalog(a.cfg.Migrations)
			for _, name := range cat.Names() {
				path, _ := cat.Path(name)
				if _, err := os.Stat(path); err != nil {
					p.Warn("%-28s %s (missing)", name, path)
					continue
				}
				p.OK("%-28s %s", name, path)
			}
			return nil
		}),
	}
}

func newMigratePrintCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "print <name|file.sql>",
		Short: "Print a migration for manual execution in the dashboard",
		Long: `Prints the SQL of a migration together with instructions for running it in
the dashboard SQL editor. Nothing is executed.

Examples:
  docuflow-ops migrate print document-requests-delete
  docuflow-ops migrate print employee-directory
  docuflow-ops migrate print supabase/migrations/20240101_add_index.sql`,
		Args: cobra.ExactArgs(1),
		RunE: a.instrument("migrate print", func(_ context.Context, cmd *cobra.Command, args []string) error {
			m, err := a.loadMigration(args[0])
			if err != nil {
				return err
			}
			migration.PrintManual(a.printer(cmd), m, platform.DashboardSQLURL(a.cfg.Platform.ProjectRef))
			return nil
		}),
	}
}

func newMigrateRunCmd(a *app) *cobra.Command {
	var direct bool
	cmd := &cobra.Command{
		Use:   "run <name|file.sql>",
		Short: "Apply a migration, falling back to manual instructions",
		Long: `Attempts to apply a migration automatically.

By default the SQL is sent to the exec_sql RPC function with the service role
key. With --direct it is executed over a PostgreSQL connection (DATABASE_URL)
and recorded in the docuflow_schema_migrations ledger, so re-runs are skipped.

If automatic execution fails the SQL is printed with manual instructions and
the command exits non-zero.`,
		Args: cobra.ExactArgs(1),
	}
	cmd.Flags().BoolVar(&direct, "direct", false, "execute over a direct PostgreSQL connection")

	cmd.RunE = a.instrument("migrate run", func(ctx context.Context, cmd *cobra.Command, args []string) error {
		opts := migration.Options{
			RPCFunction:  a.cfg.Platform.RPCFunction,
			Printer:      a.printer(cmd),
			Logger:       a.logger,
			DashboardURL: platform.DashboardSQLURL(a.cfg.Platform.ProjectRef),
			RunID:        a.runID,
		}

		if direct {
			if !a.cfg.Database.Configured() {
				return &preflight.PreconditionError{Kind: preflight.KindEnv, Name: "DATABASE_URL"}
			}
		} else {
			if err := a.requirePlatformCredentials(); err != nil {
				return err
			}
		}

		m, err := a.loadMigration(args[0])
		if err != nil {
			return err
		}

		if direct {
			db, err := database.NewPostgres(ctx, a.cfg.Database)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()
			opts.Ledger = migration.NewLedger(db, a.logger, dbTarget(a.cfg.Database))
		} else {
			client, err := a.platformClient()
			if err != nil {
				return err
			}
			opts.RPC = client
		}

		if a.cfg.MinIO.Configured() {
			store, err := storage.NewMinIO(ctx, a.cfg.MinIO)
			if err != nil {
				a.logger.Warn("migration_archive_unavailable", zap.Error(err))
			} else {
				opts.Archive = store
			}
		}

		p := a.printer(cmd)
		p.Step("Applying %s (%s)", m.Name, m.Path)
		out, err := migration.NewRunner(opts).Run(ctx, m)
		if err != nil {
			return err
		}
		if out.Skipped {
			p.OK("%s already applied; nothing to do", m.Name)
			return nil
		}
		p.OK("%s applied via %s in %s", m.Name, out.Method, out.Duration.Round(time.Millisecond))
		if out.ArchiveURL != "" {
			p.Line("Archived copy: %s", out.ArchiveURL)
		} else if out.ArchiveKey != "" {
			p.Line("Archived as %s", out.ArchiveKey)
		}
		return nil
	})
	return cmd
}

func (a *app) loadMigration(arg string) (*migration.Migration, error) {
	name, path, err := migration.NewCatalog(a.cfg.Migrations).Resolve(arg)
	if err != nil {
		return nil, err
	}
	return migration.Load(name, path)
}

func (a *app) requirePlatformCredentials() error {
	if err := preflight.RequireValue("SUPABASE_URL", a.cfg.Platform.URL); err != nil {
		return err
	}
	return preflight.RequireValue("SUPABASE_SERVICE_ROLE_KEY", a.cfg.Platform.ServiceRoleKey)
}

func (a *app) platformClient() (*platform.Client, error) {
	return platform.New(platform.Options{
		URL:            a.cfg.Platform.URL,
		ServiceRoleKey: a.cfg.Platform.ServiceRoleKey,
		RunID:          a.runID,
		Timeout:        time.Duration(a.cfg.Platform.HTTPTimeoutSec) * time.Second,
	})
}

// dbTarget names the database host in log events without leaking credentials.
func dbTarget(c config.DatabaseConfig) string {
	if c.URL != "" {
		if u, err := url.Parse(c.URL); err == nil && u.Hostname() != "" {
			return u.Hostname()
		}
	}
	return c.Host
}
