package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"docuflow/internal/logging"
)

const ledgerTable = "docuflow_schema_migrations"

type migrationStep struct {
	Name string
	SQL  string
}

var ledgerSteps = []migrationStep{
	{
		Name: "create_table_docuflow_schema_migrations",
		SQL: `CREATE TABLE IF NOT EXISTS docuflow_schema_migrations (
  name       TEXT        PRIMARY KEY,
  checksum   TEXT        NOT NULL,
  method     TEXT        NOT NULL,
  run_id     TEXT        NOT NULL,
  applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_docuflow_schema_migrations_applied_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_docuflow_schema_migrations_applied_at ON docuflow_schema_migrations (applied_at);`,
	},
}

// Ledger records which migrations were applied by direct execution.
type Ledger struct {
	db     *sql.DB
	logger *zap.Logger
	target string
}

// NewLedger wraps db. target names the database host in log events.
func NewLedger(db *sql.DB, logger *zap.Logger, target string) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{db: db, logger: logger.With(zap.String("component", "database")), target: target}
}

// Ensure checks if the ledger table exists and creates it if it doesn't.
func (l *Ledger) Ensure(ctx context.Context) error {
	start := time.Now()
	log := l.logger.With(zap.String("db_host", l.target))

	log.Info("db_migration_check", zap.String("status", "starting"))

	var exists bool
	query := "SELECT to_regclass('public." + ledgerTable + "') IS NOT NULL"
	if err := l.db.QueryRowContext(ctx, query).Scan(&exists); err != nil {
		log.Error("db_migration_failed",
			zap.String("status", "error"),
			zap.String("error_message", fmt.Sprintf("failed to check ledger table: %v", err)),
			logging.Since(start),
		)
		return fmt.Errorf("failed to check ledger table: %w", err)
	}

	if exists {
		log.Debug("db_migration_skip",
			zap.String("status", "success"),
			zap.String("detail", "ledger already exists"),
			logging.Since(start),
		)
		return nil
	}

	for _, step := range ledgerSteps {
		stepStart := time.Now()
		if _, err := l.db.ExecContext(ctx, step.SQL); err != nil {
			log.Error("db_migration_failed",
				zap.String("status", "error"),
				zap.String("migration_step", step.Name),
				zap.String("error_message", err.Error()),
				logging.Since(start),
				zap.Int64("step_duration_ms", time.Since(stepStart).Milliseconds()),
			)
			return fmt.Errorf("ledger step %s failed: %w", step.Name, err)
		}
		log.Info("db_migration_step",
			zap.String("status", "success"),
			zap.String("migration_step", step.Name),
			zap.Int64("step_duration_ms", time.Since(stepStart).Milliseconds()),
		)
	}
	return nil
}

// Lookup returns the recorded checksum for name, if any.
func (l *Ledger) Lookup(ctx context.Context, name string) (string, bool, error) {
	const q = `SELECT checksum FROM docuflow_schema_migrations WHERE name = $1`
	var sum string
	err := l.db.QueryRowContext(ctx, q, name).Scan(&sum)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup ledger: %w", err)
	}
	return sum, true, nil
}

// Apply executes the migration and records it in one transaction.
func (l *Ledger) Apply(ctx context.Context, m *Migration, method Method, runID string) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("execute %s: %w", m.Name, err)
	}

	const ins = `
		INSERT INTO docuflow_schema_migrations (name, checksum, method, run_id)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := tx.ExecContext(ctx, ins, m.Name, m.Checksum, string(method), runID); err != nil {
		return fmt.Errorf("record %s: %w", m.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
