// Package preflight holds the precondition checks every command runs before
// touching anything external: required environment variables, files and tools.
package preflight

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// Kind classifies a failed precondition.
type Kind string

const (
	KindEnv  Kind = "env"
	KindFile Kind = "file"
	KindTool Kind = "tool"
)

// PreconditionError reports a missing prerequisite. Hint is operator-facing
// guidance on how to fix the environment before re-running.
type PreconditionError struct {
	Kind Kind
	Name string
	Hint string
	Err  error
}

func (e *PreconditionError) Error() string {
	var msg string
	switch e.Kind {
	case KindEnv:
		msg = fmt.Sprintf("missing required environment variable %s", e.Name)
	case KindFile:
		msg = fmt.Sprintf("required file not found: %s", e.Name)
	case KindTool:
		msg = fmt.Sprintf("required tool not found in PATH: %s", e.Name)
	default:
		msg = fmt.Sprintf("precondition failed: %s", e.Name)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// IsPrecondition reports whether err is (or wraps) a PreconditionError.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}

// LookupFunc resolves an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(string) (string, bool)

// RequireEnv returns a PreconditionError for the first key that is unset or empty.
func RequireEnv(lookup LookupFunc, keys ...string) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for _, k := range keys {
		if v, ok := lookup(k); !ok || v == "" {
			return &PreconditionError{Kind: KindEnv, Name: k}
		}
	}
	return nil
}

// RequireValue is RequireEnv for values already resolved through config.
// name is the variable reported when value is empty.
func RequireValue(name, value string) error {
	if value == "" {
		return &PreconditionError{Kind: KindEnv, Name: name}
	}
	return nil
}

// RequireFile checks that path exists and is a regular file.
func RequireFile(path string) error {
	st, err := os.Stat(path)
	if err != nil {
		return &PreconditionError{Kind: KindFile, Name: path, Err: unwrapPath(err)}
	}
	if st.IsDir() {
		return &PreconditionError{Kind: KindFile, Name: path, Err: errors.New("is a directory")}
	}
	return nil
}

// LookupTool finds an executable in PATH, trying Windows suffixes when needed.
func LookupTool(name, hint string) (string, error) {
	if p, err := lookPath(name); err == nil {
		return p, nil
	}
	if runtime.GOOS == "windows" {
		for _, ext := range []string{".exe", ".cmd"} {
			if p, err := lookPath(name + ext); err == nil {
				return p, nil
			}
		}
	}
	return "", &PreconditionError{Kind: KindTool, Name: name, Hint: hint}
}

// lookPath wraps exec.LookPath for testability
var lookPath = exec.LookPath

func unwrapPath(err error) error {
	var pe *os.PathError
	if errors.As(err, &pe) {
		return pe.Err
	}
	return err
}
