package execx

import (
	"context"
	"errors"
	"os/exec"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecRunner_Run(t *testing.T) {
	skipWithoutShell(t)
	r := &ExecRunner{}

	res, err := r.Run(context.Background(), "sh", "-c", "echo linked; echo warn >&2")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Contains(t, res.Output, "linked")
	assert.Contains(t, res.Output, "warn")
}

func TestExecRunner_RunNonZero(t *testing.T) {
	skipWithoutShell(t)
	r := &ExecRunner{}

	res, err := r.Run(context.Background(), "sh", "-c", "echo not logged in; exit 3")
	var ee *ExitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 3, ee.ExitCode)
	assert.Equal(t, 3, res.ExitCode)
	assert.Contains(t, err.Error(), "not logged in")
	assert.Contains(t, err.Error(), "status 3")
}

func TestExecRunner_RunMissingBinary(t *testing.T) {
	r := &ExecRunner{}

	res, err := r.Run(context.Background(), "definitely-not-a-real-binary-xyz")
	require.Error(t, err)
	assert.Equal(t, -1, res.ExitCode)
	var ee *ExitError
	assert.False(t, errors.As(err, &ee))
}

func TestExecRunner_UsesCommandFactory(t *testing.T) {
	skipWithoutShell(t)
	orig := newExecCommand
	defer func() { newExecCommand = orig }()

	var gotName string
	var gotArgs []string
	newExecCommand = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		gotName, gotArgs = name, args
		return exec.CommandContext(ctx, "sh", "-c", "true")
	}

	r := &ExecRunner{}
	require.NoError(t, r.Interactive(context.Background(), "supabase", "login"))
	assert.Equal(t, "supabase", gotName)
	assert.Equal(t, []string{"login"}, gotArgs)
}

func TestCommandLine(t *testing.T) {
	assert.Equal(t, "git remote add origin https://example.com/x.git",
		CommandLine("git", "remote", "add", "origin", "https://example.com/x.git"))
	assert.Equal(t, "supabase", CommandLine("supabase"))
}
