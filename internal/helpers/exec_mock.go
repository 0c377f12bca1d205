package helpers

import (
	"context"
	"strings"
	"sync"
)

// MockCommandRunner is a CommandRunner for tests. Unset funcs fall back to
// "tool missing" for CommandExists and success with empty output otherwise.
// Every Run* call is recorded; audits call it from several workers.
type MockCommandRunner struct {
	CommandExistsFunc        func(name string) bool
	RequireCommandFunc       func(name string) error
	RunCommandFunc           func(ctx context.Context, name string, args ...string) (string, error)
	RunCommandWithOutputFunc func(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)
	GetExitCodeFunc          func(err error) int

	mu    sync.Mutex
	calls []string
}

// Calls returns the recorded invocations as "name arg1 arg2" lines
func (m *MockCommandRunner) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *MockCommandRunner) record(name string, args []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, strings.Join(append([]string{name}, args...), " "))
}

func (m *MockCommandRunner) CommandExists(name string) bool {
	if m.CommandExistsFunc == nil {
		return false
	}
	return m.CommandExistsFunc(name)
}

func (m *MockCommandRunner) RequireCommand(name string) error {
	if m.RequireCommandFunc == nil {
		return nil
	}
	return m.RequireCommandFunc(name)
}

func (m *MockCommandRunner) RunCommand(ctx context.Context, name string, args ...string) (string, error) {
	m.record(name, args)
	if m.RunCommandFunc == nil {
		return "", nil
	}
	return m.RunCommandFunc(ctx, name, args...)
}

func (m *MockCommandRunner) RunCommandWithOutput(ctx context.Context, name string, args ...string) (string, string, error) {
	m.record(name, args)
	if m.RunCommandWithOutputFunc == nil {
		return "", "", nil
	}
	return m.RunCommandWithOutputFunc(ctx, name, args...)
}

func (m *MockCommandRunner) GetExitCode(err error) int {
	if m.GetExitCodeFunc == nil {
		return 0
	}
	return m.GetExitCodeFunc(err)
}
