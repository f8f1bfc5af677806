// Package gitremote points the working copy at a hosted repository and
// optionally pushes the current branch.
package gitremote

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"docuflow/internal/console"
	"docuflow/internal/execx"
	"docuflow/internal/preflight"
)

const gitHint = "Install git: https://git-scm.com/downloads"

var (
	// ErrCancelled means the operator entered nothing; it is not a failure.
	ErrCancelled  = errors.New("remote setup cancelled")
	ErrInvalidURL = errors.New("invalid repository url")
)

// scpLike matches git@github.com:owner/repo.git
var scpLike = regexp.MustCompile(`^[A-Za-z0-9._-]+@[A-Za-z0-9.-]+:[^\s]+$`)

// ValidateURL accepts https, ssh, git and scp-like repository URLs.
func ValidateURL(raw string) error {
	if scpLike.MatchString(raw) {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidURL, raw)
	}
	switch u.Scheme {
	case "https", "http", "ssh", "git":
	default:
		return fmt.Errorf("%w: %s (expected https://, ssh:// or git@host:path)", ErrInvalidURL, raw)
	}
	if u.Host == "" || strings.Trim(u.Path, "/") == "" {
		return fmt.Errorf("%w: %s", ErrInvalidURL, raw)
	}
	return nil
}

// Prompter asks the operator questions on a line-oriented terminal.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompter reads answers from in and writes questions to out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Ask prints question and returns the trimmed answer. EOF yields "".
func (p *Prompter) Ask(question string) (string, error) {
	fmt.Fprint(p.out, question)
	line, err := p.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Confirm asks a y/N question; anything but y/yes is no.
func (p *Prompter) Confirm(question string) (bool, error) {
	ans, err := p.Ask(question + " [y/N]: ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(ans) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// Options for Setup. Empty URL means ask. Push nil means ask.
type Options struct {
	Remote string
	URL    string
	Branch string
	Push   *bool
}

// Result reports what Setup changed.
type Result struct {
	Remote string
	URL    string
	Action string // "added" or "updated"
	Pushed bool
	Branch string
}

// Setup configures the remote. There is no rollback: a failed push leaves the
// remote configured.
type Setup struct {
	runner   execx.Runner
	prompter *Prompter
	printer  *console.Printer
	logger   *zap.Logger
	lookup   func(name, hint string) (string, error)
}

// NewSetup builds a Setup.
func NewSetup(runner execx.Runner, prompter *Prompter, printer *console.Printer, logger *zap.Logger) *Setup {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Setup{
		runner:   runner,
		prompter: prompter,
		printer:  printer,
		logger:   logger.With(zap.String("component", "gitremote")),
		lookup:   preflight.LookupTool,
	}
}

// Run performs the setup. It returns ErrCancelled when the operator gives no URL.
func (s *Setup) Run(ctx context.Context, opts Options) (*Result, error) {
	remote := opts.Remote
	if remote == "" {
		remote = "origin"
	}

	if _, err := s.lookup("git", gitHint); err != nil {
		return nil, err
	}
	if _, err := s.runner.Run(ctx, "git", "rev-parse", "--is-inside-work-tree"); err != nil {
		return nil, fmt.Errorf("not a git repository: %w", err)
	}

	current, hasRemote, err := s.currentURL(ctx, remote)
	if err != nil {
		return nil, err
	}
	if hasRemote {
		s.printer.Line("Current %s: %s", remote, current)
	}

	rawURL := opts.URL
	if rawURL == "" {
		ans, err := s.prompter.Ask(fmt.Sprintf("Repository URL for %s (leave empty to cancel): ", remote))
		if err != nil {
			return nil, fmt.Errorf("read url: %w", err)
		}
		rawURL = ans
	}
	if rawURL == "" {
		s.printer.Warn("Cancelled; nothing changed")
		return nil, ErrCancelled
	}
	if err := ValidateURL(rawURL); err != nil {
		return nil, err
	}

	res := &Result{Remote: remote, URL: rawURL}
	if hasRemote {
		if _, err := s.runner.Run(ctx, "git", "remote", "set-url", remote, rawURL); err != nil {
			return nil, fmt.Errorf("update remote %s: %w", remote, err)
		}
		res.Action = "updated"
	} else {
		if _, err := s.runner.Run(ctx, "git", "remote", "add", remote, rawURL); err != nil {
			return nil, fmt.Errorf("add remote %s: %w", remote, err)
		}
		res.Action = "added"
	}
	s.printer.OK("Remote %s %s → %s", remote, res.Action, rawURL)
	s.logger.Info("remote_configured", zap.String("remote", remote), zap.String("action", res.Action))

	push := false
	if opts.Push != nil {
		push = *opts.Push
	} else {
		ok, err := s.prompter.Confirm(fmt.Sprintf("Push to %s now?", remote))
		if err != nil {
			return res, fmt.Errorf("read answer: %w", err)
		}
		push = ok
	}
	if !push {
		s.printer.Line("Skipping push. Later: git push -u %s <branch>", remote)
		return res, nil
	}

	branch := opts.Branch
	if branch == "" {
		out, err := s.runner.Run(ctx, "git", "rev-parse", "--abbrev-ref", "HEAD")
		if err != nil {
			return res, fmt.Errorf("resolve current branch: %w", err)
		}
		branch = strings.TrimSpace(out.Output)
	}
	res.Branch = branch

	s.printer.Step("Pushing %s to %s", branch, remote)
	if err := s.runner.Interactive(ctx, "git", "push", "-u", remote, branch); err != nil {
		s.printer.Fail("Push failed; the remote is configured, fix access and run: git push -u %s %s", remote, branch)
		return res, fmt.Errorf("push %s: %w", branch, err)
	}
	res.Pushed = true
	s.printer.OK("Pushed %s", branch)
	return res, nil
}

// currentURL reports the configured URL. git exits non-zero for an unknown
// remote; any other failure is returned.
func (s *Setup) currentURL(ctx context.Context, remote string) (string, bool, error) {
	out, err := s.runner.Run(ctx, "git", "remote", "get-url", remote)
	var ee *execx.ExitError
	switch {
	case err == nil:
		return strings.TrimSpace(out.Output), true, nil
	case errors.As(err, &ee):
		return "", false, nil
	default:
		return "", false, fmt.Errorf("read remote %s: %w", remote, err)
	}
}
