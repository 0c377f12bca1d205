// Package executor previews or applies remediation operations on a device.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/quantmind-br/apkaudit/internal/core"
	"github.com/quantmind-br/apkaudit/internal/device"
	"github.com/quantmind-br/apkaudit/internal/helpers"
	"github.com/quantmind-br/apkaudit/internal/security"
	"github.com/rs/zerolog"
)

// Sentinel errors
var (
	// ErrOperationFailed is returned when adb reports a failure in its output
	ErrOperationFailed = errors.New("device rejected operation")
	// ErrSkipped marks an install skipped because its uninstall failed
	ErrSkipped = errors.New("skipped after failed uninstall")
)

// adb prints "Failure [REASON]" and may still exit 0
var failureRegex = regexp.MustCompile(`(?m)^Failure(?: \[([^\]]*)\])?`)

// Outcome is the result of one operation
type Outcome struct {
	Op     core.RemediationOperation
	Output string
	Err    error
}

// Failed reports whether the operation did not succeed
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Executor runs remediation operations through adb
type Executor struct {
	runner  helpers.CommandRunner
	adb     string
	serial  string
	timeout time.Duration
	observe func(Outcome)
	log     *zerolog.Logger
}

// Option configures an Executor
type Option func(*Executor)

// WithSerial targets a specific device
func WithSerial(serial string) Option {
	return func(e *Executor) {
		e.serial = serial
	}
}

// WithTimeout bounds each operation
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		e.timeout = d
	}
}

// WithObserver is called after each operation, in order
func WithObserver(fn func(Outcome)) Option {
	return func(e *Executor) {
		e.observe = fn
	}
}

// New creates an Executor
func New(runner helpers.CommandRunner, adb string, log *zerolog.Logger, opts ...Option) *Executor {
	if adb == "" {
		adb = "adb"
	}
	e := &Executor{
		runner: runner,
		adb:    adb,
		log:    log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Preview writes the command line of every operation
func Preview(w io.Writer, ops []core.RemediationOperation) error {
	for _, op := range ops {
		if _, err := fmt.Fprintln(w, op.String()); err != nil {
			return err
		}
	}
	return nil
}

// Args returns the adb arguments for an operation
func Args(serial string, op core.RemediationOperation) ([]string, error) {
	switch op.Kind {
	case core.OpUninstall:
		if err := security.ValidatePackageName(op.PackageName); err != nil {
			return nil, fmt.Errorf("uninstall: %w", err)
		}
		return device.AdbArgs(serial, "uninstall", op.PackageName), nil
	case core.OpInstallOverwrite:
		if op.ArtifactPath == "" {
			return nil, fmt.Errorf("install %s: no artifact path", op.PackageName)
		}
		return device.AdbArgs(serial, "install", "-r", op.ArtifactPath), nil
	default:
		return nil, fmt.Errorf("unknown operation kind %q", op.Kind)
	}
}

// Apply runs the operations in order and returns one outcome per operation.
//
// A failed operation does not stop the run, except that an install-overwrite
// is skipped when the same package's uninstall failed just before it.
func (e *Executor) Apply(ctx context.Context, ops []core.RemediationOperation) []Outcome {
	outcomes := make([]Outcome, 0, len(ops))
	failedUninstall := ""

	for _, op := range ops {
		var outcome Outcome
		switch {
		case ctx.Err() != nil:
			outcome = Outcome{Op: op, Err: ctx.Err()}
		case op.Kind == core.OpInstallOverwrite && op.PackageName == failedUninstall:
			outcome = Outcome{Op: op, Err: ErrSkipped}
		default:
			outcome = e.run(ctx, op)
		}

		failedUninstall = ""
		if op.Kind == core.OpUninstall && outcome.Failed() {
			failedUninstall = op.PackageName
		}

		if outcome.Failed() {
			e.log.Error().Err(outcome.Err).
				Str("package", op.PackageName).
				Str("op", string(op.Kind)).
				Int("exit_code", e.runner.GetExitCode(outcome.Err)).
				Msg("remediation failed")
		} else {
			e.log.Info().Str("package", op.PackageName).Str("op", string(op.Kind)).Msg("remediation applied")
		}

		if e.observe != nil {
			e.observe(outcome)
		}
		outcomes = append(outcomes, outcome)
	}

	return outcomes
}

func (e *Executor) run(ctx context.Context, op core.RemediationOperation) Outcome {
	args, err := Args(e.serial, op)
	if err != nil {
		return Outcome{Op: op, Err: err}
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	stdout, stderr, err := e.runner.RunCommandWithOutput(ctx, e.adb, args...)
	output := helpers.CombineOutput(stdout, stderr)
	if err != nil {
		return Outcome{Op: op, Output: output, Err: err}
	}

	if m := failureRegex.FindStringSubmatch(output); m != nil {
		reason := m[1]
		if reason == "" {
			reason = "unknown reason"
		}
		return Outcome{Op: op, Output: output, Err: fmt.Errorf("%w: %s", ErrOperationFailed, reason)}
	}

	return Outcome{Op: op, Output: output}
}

// Failures counts failed outcomes
func Failures(outcomes []Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Failed() {
			n++
		}
	}
	return n
}
