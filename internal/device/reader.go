package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quantmind-br/apkaudit/internal/core"
	"github.com/quantmind-br/apkaudit/internal/helpers"
	"github.com/rs/zerolog"
)

// Reader queries package state through adb
type Reader struct {
	runner    helpers.CommandRunner
	adb       string
	serial    string
	versioned func(string) bool
	timeout   time.Duration
	log       *zerolog.Logger
}

// Option configures a Reader
type Option func(*Reader)

// WithSerial targets a specific device (adb -s)
func WithSerial(serial string) Option {
	return func(r *Reader) {
		r.serial = serial
	}
}

// WithVersionQualified sets the packages queried as <name>_<versionCode>
func WithVersionQualified(packages []string) Option {
	return func(r *Reader) {
		set := make(map[string]struct{}, len(packages))
		for _, p := range packages {
			set[p] = struct{}{}
		}
		r.versioned = func(pkg string) bool {
			_, ok := set[pkg]
			return ok
		}
	}
}

// WithTimeout bounds each adb call
func WithTimeout(d time.Duration) Option {
	return func(r *Reader) {
		r.timeout = d
	}
}

// NewReader creates a Reader. adb is the tool name or path.
func NewReader(runner helpers.CommandRunner, adb string, log *zerolog.Logger, opts ...Option) *Reader {
	if adb == "" {
		adb = "adb"
	}
	r := &Reader{
		runner: runner,
		adb:    adb,
		log:    log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Tool returns the adb command the reader runs
func (r *Reader) Tool() string {
	return r.adb
}

// AdbArgs prefixes args with the device selector when a serial is set
func AdbArgs(serial string, args ...string) []string {
	if serial == "" {
		return args
	}
	return append([]string{"-s", serial}, args...)
}

// Read returns what the device reports for the baseline package.
//
// It always returns a usable state. When the query fails or the output holds
// no record the state is unknown and the error says why.
func (r *Reader) Read(ctx context.Context, baseline core.BaselinePackage) (core.DevicePackageState, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	name := QueryName(baseline.PackageName, baseline.VersionCode, r.versioned)
	args := AdbArgs(r.serial, "shell", "dumpsys", "package", name)

	output, err := r.runner.RunCommand(ctx, r.adb, args...)
	if err != nil {
		return core.DevicePackageState{}, fmt.Errorf("dumpsys package %s: %w", name, err)
	}

	state, err := ParseDumpsys(output)
	if err != nil {
		if errors.Is(err, ErrNoPackageRecord) {
			r.log.Debug().Str("package", name).Msg("device has no record for package")
		}
		return core.DevicePackageState{}, fmt.Errorf("%s: %w", name, err)
	}

	r.log.Debug().
		Str("package", name).
		Str("partition", state.Partition).
		Int64("version_code", state.VersionCode).
		Str("version_name", state.VersionName).
		Bool("pre_installed", state.PreInstalled != nil).
		Msg("read device package state")

	return state, nil
}
