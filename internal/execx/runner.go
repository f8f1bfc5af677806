// Package execx runs the external tools the commands drive.
package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Result is the captured outcome of a non-interactive command.
type Result struct {
	Output   string
	ExitCode int
}

// Runner runs external tools (platform CLI, git).
type Runner interface {
	// Run executes the command and captures combined stdout/stderr.
	// A non-zero exit is returned as *ExitError alongside the Result.
	Run(ctx context.Context, name string, args ...string) (Result, error)

	// Interactive executes the command with the operator's terminal attached.
	Interactive(ctx context.Context, name string, args ...string) error
}

// ExitError reports a command that ran but exited non-zero.
type ExitError struct {
	Command  string
	ExitCode int
	Output   string
}

func (e *ExitError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("%s exited with status %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("%s exited with status %d: %s", e.Command, e.ExitCode, out)
}

// ExecRunner implements Runner with os/exec.
type ExecRunner struct {
	Dir    string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewExecRunner returns a runner attached to the process stdio.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

var _ Runner = (*ExecRunner)(nil)

// newExecCommand creates an exec.Cmd for testability
var newExecCommand = func(ctx context.Context, name string, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, name, args...)
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := newExecCommand(ctx, name, args...)
	cmd.Dir = r.Dir
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	res := Result{Output: buf.String()}
	if err != nil {
		err = r.wrap(name, args, err, res.Output, &res)
		return res, err
	}
	return res, nil
}

func (r *ExecRunner) Interactive(ctx context.Context, name string, args ...string) error {
	cmd := newExecCommand(ctx, name, args...)
	cmd.Dir = r.Dir
	cmd.Stdin = r.Stdin
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	if err := cmd.Run(); err != nil {
		return r.wrap(name, args, err, "", nil)
	}
	return nil
}

func (r *ExecRunner) wrap(name string, args []string, err error, output string, res *Result) error {
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		code := ee.ExitCode()
		if res != nil {
			res.ExitCode = code
		}
		return &ExitError{Command: CommandLine(name, args...), ExitCode: code, Output: output}
	}
	if res != nil {
		res.ExitCode = -1
	}
	return fmt.Errorf("run %s: %w", name, err)
}

// CommandLine renders a command for logs and error messages.
func CommandLine(name string, args ...string) string {
	return strings.TrimSpace(name + " " + strings.Join(args, " "))
}
