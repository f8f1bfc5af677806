// Package deploy ships an Edge Function with the platform CLI.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"docuflow/internal/console"
	"docuflow/internal/execx"
	"docuflow/internal/logging"
	"docuflow/internal/platform"
	"docuflow/internal/preflight"
)

// CLI is the platform command-line tool.
const CLI = "supabase"

const installHint = "Install the Supabase CLI: https://supabase.com/docs/guides/cli (e.g. `brew install supabase/tap/supabase` or `npm install -g supabase`)"

var (
	ErrFunctionRequired   = errors.New("function name is required")
	ErrProjectRefRequired = errors.New("project ref is required (set SUPABASE_PROJECT_REF or SUPABASE_URL)")
)

// StepError names the deploy step that failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("%s failed: %v", e.Step, e.Err) }
func (e *StepError) Unwrap() error { return e.Err }

// Options selects what to deploy where.
type Options struct {
	Function    string
	ProjectRef  string
	NoVerifyJWT bool
	// FunctionURL is printed in the next steps when known.
	FunctionURL string
}

// Deployer runs the deploy sequence: locate CLI, authenticate, link, deploy.
type Deployer struct {
	runner  execx.Runner
	printer *console.Printer
	logger  *zap.Logger
	lookup  func(name, hint string) (string, error)
}

// New builds a Deployer.
func New(runner execx.Runner, printer *console.Printer, logger *zap.Logger) *Deployer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deployer{
		runner:  runner,
		printer: printer,
		logger:  logger.With(zap.String("component", "deploy")),
		lookup:  preflight.LookupTool,
	}
}

// Deploy runs every step in order and stops at the first failure.
func (d *Deployer) Deploy(ctx context.Context, opts Options) error {
	if opts.Function == "" {
		return ErrFunctionRequired
	}
	if opts.ProjectRef == "" {
		return ErrProjectRefRequired
	}
	start := time.Now()
	log := d.logger.With(zap.String("function", opts.Function), zap.String("project_ref", opts.ProjectRef))

	d.printer.Title("Deploying Edge Function %q to project %s", opts.Function, opts.ProjectRef)

	d.printer.Step("Checking for the %s CLI", CLI)
	path, err := d.lookup(CLI, installHint)
	if err != nil {
		d.printer.Fail("%s CLI not found", CLI)
		d.printer.Line("")
		d.printer.Line("%s", installHint)
		return err
	}
	res, err := d.runner.Run(ctx, CLI, "--version")
	if err != nil {
		d.printer.Fail("%s CLI is not runnable", CLI)
		return &StepError{Step: "cli check", Err: err}
	}
	d.printer.OK("Found %s CLI at %s (%s)", CLI, path, trimVersion(res.Output))

	d.printer.Step("Checking authentication")
	if _, err := d.runner.Run(ctx, CLI, "projects", "list"); err != nil {
		log.Info("deploy_login_required", zap.Error(err))
		d.printer.Warn("Not logged in; starting `%s login`", CLI)
		if err := d.runner.Interactive(ctx, CLI, "login"); err != nil {
			d.printer.Fail("Login failed")
			d.printer.Line("Run `%s login` manually, then re-run this command.", CLI)
			return &StepError{Step: "login", Err: err}
		}
	}
	d.printer.OK("Authenticated")

	d.printer.Step("Linking project %s", opts.ProjectRef)
	if _, err := d.runner.Run(ctx, CLI, "link", "--project-ref", opts.ProjectRef); err != nil {
		d.printer.Fail("Could not link project %s", opts.ProjectRef)
		d.printer.Line("Check that the project ref is correct and that your account has access to it.")
		return &StepError{Step: "link", Err: err}
	}
	d.printer.OK("Project linked")

	args := []string{"functions", "deploy", opts.Function, "--project-ref", opts.ProjectRef}
	if opts.NoVerifyJWT {
		args = append(args, "--no-verify-jwt")
	}
	d.printer.Step("Running %s", execx.CommandLine(CLI, args...))
	if err := d.runner.Interactive(ctx, CLI, args...); err != nil {
		d.printer.Fail("Deployment failed")
		d.printer.Line("Fix the errors above and re-run this command.")
		return &StepError{Step: "deploy", Err: err}
	}
	d.printer.OK("Function %s deployed", opts.Function)
	log.Info("deploy_success", zap.String("status", "success"), logging.Since(start))

	d.printNextSteps(opts)
	return nil
}

func (d *Deployer) printNextSteps(opts Options) {
	d.printer.Line("")
	d.printer.Title("Next steps")
	steps := []string{
		fmt.Sprintf("Set the function secrets: %s secrets set --project-ref %s KEY=value", CLI, opts.ProjectRef),
	}
	if opts.FunctionURL != "" {
		steps = append(steps, "Function URL: "+opts.FunctionURL)
	}
	steps = append(steps,
		"Watch the invocations and logs: "+platform.DashboardFunctionsURL(opts.ProjectRef),
		"Smoke-test the deployment: docuflow-ops smoke "+opts.Function,
	)
	d.printer.Numbered(steps...)
}

func trimVersion(s string) string {
	for i, r := range s {
		if r == '\n' || r == '\r' {
			return s[:i]
		}
	}
	return s
}
