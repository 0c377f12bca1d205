package helpers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// CommandRunner runs the Android tools (aapt2, adb). Production code uses
// OSCommandRunner; tests swap in MockCommandRunner.
type CommandRunner interface {
	// CommandExists checks if a command is available in PATH
	CommandExists(name string) bool

	// RequireCommand ensures a command exists or returns ErrCommandNotFound
	RequireCommand(name string) error

	// RunCommand executes a command and returns stdout
	RunCommand(ctx context.Context, name string, args ...string) (string, error)

	// RunCommandWithOutput returns stdout and stderr even when the command fails
	RunCommandWithOutput(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)

	// GetExitCode extracts the exit code from a command error
	GetExitCode(err error) int
}

// Sentinel errors
var (
	// ErrCommandNotFound is returned by RequireCommand for tools missing from PATH
	ErrCommandNotFound = errors.New("required command not found in PATH")
	// ErrTimeout marks a tool killed because its context deadline passed
	ErrTimeout = errors.New("command timed out")
)

// ToolError describes a failed tool invocation. Stderr is kept because
// aapt2 and adb explain most failures there.
type ToolError struct {
	Name     string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	var b strings.Builder
	b.WriteString(e.Name)
	if len(e.Args) > 0 {
		b.WriteByte(' ')
		b.WriteString(strings.Join(e.Args, " "))
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	if e.Stderr != "" {
		fmt.Fprintf(&b, ": %s", e.Stderr)
	}
	return b.String()
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// OSCommandRunner is the default implementation using os/exec
type OSCommandRunner struct {
	lookups sync.Map // name -> bool
}

// NewOSCommandRunner creates a new OSCommandRunner instance
func NewOSCommandRunner() *OSCommandRunner {
	return &OSCommandRunner{}
}

// CommandExists checks PATH once per name
func (r *OSCommandRunner) CommandExists(name string) bool {
	if found, ok := r.lookups.Load(name); ok {
		return found.(bool)
	}

	_, err := exec.LookPath(name)
	r.lookups.Store(name, err == nil)
	return err == nil
}

// RequireCommand ensures a command exists or returns error
func (r *OSCommandRunner) RequireCommand(name string) error {
	if !r.CommandExists(name) {
		return fmt.Errorf("%w: %q", ErrCommandNotFound, name)
	}
	return nil
}

// RunCommand executes a command and returns stdout.
// Arguments are passed to exec directly, never through a shell.
func (r *OSCommandRunner) RunCommand(ctx context.Context, name string, args ...string) (string, error) {
	stdout, _, err := r.RunCommandWithOutput(ctx, name, args...)
	if err != nil {
		return "", err
	}
	return stdout, nil
}

// RunCommandWithOutput runs a command and returns both stdout and stderr
func (r *OSCommandRunner) RunCommandWithOutput(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.String(), stderr.String(), nil
	}

	toolErr := &ToolError{
		Name:     name,
		Args:     args,
		ExitCode: -1,
		Stderr:   strings.TrimSpace(stderr.String()),
		Err:      err,
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		toolErr.ExitCode = exitErr.ExitCode()
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		toolErr.Err = fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return stdout.String(), stderr.String(), toolErr
}

// GetExitCode returns 0 for nil, the tool's exit status for a ToolError and
// -1 for anything else.
func (r *OSCommandRunner) GetExitCode(err error) int {
	if err == nil {
		return 0
	}

	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr.ExitCode
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// CombineOutput joins stdout and stderr the way a terminal would show them
func CombineOutput(stdout, stderr string) string {
	stdout = strings.TrimSpace(stdout)
	stderr = strings.TrimSpace(stderr)
	switch {
	case stdout == "":
		return stderr
	case stderr == "":
		return stdout
	default:
		return stdout + "\n" + stderr
	}
}
