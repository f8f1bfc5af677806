package migration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"docuflow/internal/console"
	"docuflow/internal/logging"
	"docuflow/internal/storage"
)

// Method is how a migration was applied.
type Method string

const (
	MethodRPC    Method = "rpc"
	MethodDirect Method = "direct"
)

// ErrManualRequired is returned when automatic execution failed and the
// operator has been shown the manual instructions.
var ErrManualRequired = errors.New("migration must be applied manually")

// RPCCaller executes a PostgREST RPC function.
type RPCCaller interface {
	CallRPC(ctx context.Context, fn string, params any) (json.RawMessage, error)
}

// Options configures a Runner. Exactly one of RPC or Ledger drives execution;
// Ledger wins when both are set. Archive is optional.
type Options struct {
	RPC          RPCCaller
	RPCFunction  string
	Ledger       *Ledger
	Archive      storage.Storage
	Printer      *console.Printer
	Logger       *zap.Logger
	DashboardURL string
	RunID        string
}

// Outcome describes a finished run.
type Outcome struct {
	Method     Method
	Skipped    bool
	ArchiveKey string
	ArchiveURL string
	Duration   time.Duration
}

// Runner applies a migration automatically and falls back to printing
// manual instructions when that is not possible.
type Runner struct {
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

// NewRunner builds a Runner.
func NewRunner(opts Options) *Runner {
	if opts.RPCFunction == "" {
		opts.RPCFunction = "exec_sql"
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		opts:   opts,
		logger: logger.With(zap.String("component", "migration"), zap.String("run_id", opts.RunID)),
		now:    time.Now,
	}
}

// Run applies m. On failure it prints the SQL with manual instructions and
// returns an error wrapping both ErrManualRequired and the cause.
func (r *Runner) Run(ctx context.Context, m *Migration) (*Outcome, error) {
	start := r.now()
	method := MethodRPC
	if r.opts.Ledger != nil {
		method = MethodDirect
	}
	log := r.logger.With(zap.String("migration", m.Name), zap.String("method", string(method)))
	log.Info("db_migration_start", zap.String("status", "in_progress"), zap.String("checksum", m.Checksum))

	var (
		skipped bool
		err     error
	)
	switch method {
	case MethodDirect:
		skipped, err = r.runDirect(ctx, m)
	default:
		err = r.runRPC(ctx, m)
	}

	if err != nil {
		log.Error("db_migration_failed",
			zap.String("status", "error"),
			zap.String("error_message", err.Error()),
			logging.Since(start),
		)
		if errors.Is(err, ErrChecksumMismatch) {
			return nil, err
		}
		r.printFallback(m, err)
		return nil, fmt.Errorf("%w: %w", ErrManualRequired, err)
	}

	out := &Outcome{Method: method, Skipped: skipped}
	if skipped {
		log.Info("db_migration_skip", zap.String("status", "success"), zap.String("detail", "already applied"), logging.Since(start))
		out.Duration = r.now().Sub(start)
		return out, nil
	}

	if r.opts.Archive != nil {
		key, url, aerr := r.archive(ctx, m, method)
		if aerr != nil {
			// archive failure never fails an applied migration
			log.Warn("migration_archive_failed", zap.String("status", "error"), zap.Error(aerr))
		} else {
			out.ArchiveKey, out.ArchiveURL = key, url
			log.Info("migration_archived", zap.String("status", "success"), zap.String("key", key))
		}
	}

	out.Duration = r.now().Sub(start)
	log.Info("db_migration_success", zap.String("status", "success"), logging.Since(start))
	return out, nil
}

func (r *Runner) runRPC(ctx context.Context, m *Migration) error {
	if r.opts.RPC == nil {
		return errors.New("no rpc client configured")
	}
	if _, err := r.opts.RPC.CallRPC(ctx, r.opts.RPCFunction, map[string]string{"sql": m.SQL}); err != nil {
		return fmt.Errorf("rpc %s: %w", r.opts.RPCFunction, err)
	}
	return nil
}

func (r *Runner) runDirect(ctx context.Context, m *Migration) (bool, error) {
	l := r.opts.Ledger
	if err := l.Ensure(ctx); err != nil {
		return false, err
	}
	sum, found, err := l.Lookup(ctx, m.Name)
	if err != nil {
		return false, err
	}
	if found {
		if sum != m.Checksum {
			return false, fmt.Errorf("%w: %s (recorded %s, file %s)", ErrChecksumMismatch, m.Name, short(sum), short(m.Checksum))
		}
		return true, nil
	}
	if err := l.Apply(ctx, m, MethodDirect, r.opts.RunID); err != nil {
		return false, err
	}
	return false, nil
}

func (r *Runner) archive(ctx context.Context, m *Migration, method Method) (string, string, error) {
	key := ArchiveKey(m.Name, r.now())
	_, err := r.opts.Archive.Put(ctx, key, strings.NewReader(m.SQL), storage.PutObjectOptions{
		Size:        int64(len(m.SQL)),
		ContentType: "application/sql",
		Metadata: map[string]string{
			"checksum":    m.Checksum,
			"method":      string(method),
			"run-id":      r.opts.RunID,
			"source-path": m.Path,
		},
	})
	if err != nil {
		return "", "", fmt.Errorf("archive put: %w", err)
	}
	url, err := r.opts.Archive.PresignGet(ctx, key, 24*time.Hour)
	if err != nil {
		// The object exists; only the link is missing.
		return key, "", nil
	}
	return key, url, nil
}

func (r *Runner) printFallback(m *Migration, cause error) {
	p := r.opts.Printer
	if p == nil {
		return
	}
	p.Fail("Automatic execution failed: %v", cause)
	p.Line("")
	PrintManual(p, m, r.opts.DashboardURL)
}

// ArchiveKey is the object key an applied migration is stored under.
func ArchiveKey(name string, at time.Time) string {
	return path.Join("migrations", name, at.UTC().Format("20060102T150405Z")+".sql")
}

func short(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}
