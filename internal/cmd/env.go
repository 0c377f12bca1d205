package cmd

import (
	"time"

	"github.com/quantmind-br/apkaudit/internal/helpers"
	"github.com/quantmind-br/apkaudit/internal/ui"
	"github.com/spf13/afero"
)

// Env holds the collaborators commands reach outside the process with.
// Tests replace them with mocks.
type Env struct {
	Runner  helpers.CommandRunner
	Fs      afero.Fs
	Confirm func(label string) (bool, error)
	Now     func() time.Time
}

// DefaultEnv talks to the real tools and filesystem
func DefaultEnv() *Env {
	return &Env{
		Runner:  helpers.NewOSCommandRunner(),
		Fs:      afero.NewOsFs(),
		Confirm: ui.ConfirmPrompt,
		Now:     time.Now,
	}
}
