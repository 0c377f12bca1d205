// Package audit runs the acquisition pipeline: extract the bundle, read each
// APK's manifest, query the device and classify the package.
package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/quantmind-br/apkaudit/internal/core"
	"github.com/quantmind-br/apkaudit/internal/fsops"
	"github.com/quantmind-br/apkaudit/internal/manifest"
	"github.com/quantmind-br/apkaudit/internal/reconcile"
	"github.com/quantmind-br/apkaudit/internal/ui"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is used when no worker count is configured
const DefaultWorkers = 4

// ErrDuplicatePackage marks an APK whose package already appeared earlier in
// the bundle. Only the first occurrence is audited.
var ErrDuplicatePackage = errors.New("duplicate package in bundle")

// ManifestReader reads the baseline identity of an extracted APK
type ManifestReader interface {
	Read(ctx context.Context, artifact manifest.Artifact) (core.BaselinePackage, error)
}

// DeviceReader reads what the device reports for a package
type DeviceReader interface {
	Read(ctx context.Context, baseline core.BaselinePackage) (core.DevicePackageState, error)
}

// Progress is advanced once per APK
type Progress interface {
	Increment()
}

// Sizer is implemented by progress reporters that need the APK count
type Sizer interface {
	SetTotal(n int)
}

// Skipped is a bundle entry whose manifest could not be read
type Skipped struct {
	Entry string
	Err   error
}

// Result is the outcome of one audit run
type Result struct {
	Entries    []core.AuditEntry // archive order
	Skipped    []Skipped
	Filtered   int    // APKs left out by the package filter
	ScratchDir string // extracted APKs, referenced by install operations

	fs afero.Fs
}

// Cleanup removes the extracted APKs
func (r *Result) Cleanup() error {
	if r == nil || r.ScratchDir == "" || r.fs == nil {
		return nil
	}
	if err := r.fs.RemoveAll(r.ScratchDir); err != nil {
		return fmt.Errorf("remove scratch dir: %w", err)
	}
	return nil
}

// Runner drives one audit
type Runner struct {
	fs        afero.Fs
	manifests ManifestReader
	devices   DeviceReader
	progress  Progress
	log       *zerolog.Logger
}

// NewRunner creates a Runner. progress may be nil.
func NewRunner(fs afero.Fs, manifests ManifestReader, devices DeviceReader, progress Progress, log *zerolog.Logger) *Runner {
	return &Runner{
		fs:        fs,
		manifests: manifests,
		devices:   devices,
		progress:  progress,
		log:       log,
	}
}

// slot holds one worker's result at the artifact's archive index
type slot struct {
	entry    core.AuditEntry
	skipped  *Skipped
	filtered bool
}

// Run audits every APK of the bundle.
//
// Per-package failures never abort the run: an unreadable manifest is
// recorded as skipped and a failed device query yields an unknown state.
// Only extraction errors and cancellation are returned.
func (r *Runner) Run(ctx context.Context, bundlePath string, opts core.AuditOptions) (*Result, error) {
	scratch, err := fsops.NewScratchDir(r.fs)
	if err != nil {
		return nil, err
	}
	result := &Result{ScratchDir: scratch, fs: r.fs}

	artifacts, err := manifest.ExtractAPKs(r.fs, bundlePath, scratch)
	if err != nil {
		_ = result.Cleanup()
		return nil, fmt.Errorf("extract bundle: %w", err)
	}

	r.log.Info().
		Str("bundle", bundlePath).
		Int("apks", len(artifacts)).
		Str("scratch", scratch).
		Msg("extracted baseline bundle")

	if sizer, ok := r.progress.(Sizer); ok {
		sizer.SetTotal(len(artifacts))
	}

	workers := opts.Workers
	if workers < 1 {
		workers = DefaultWorkers
	}
	isExcluded := reconcile.ExclusionSet(opts.ExcludePackages)

	slots := make([]slot, len(artifacts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, artifact := range artifacts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			slots[i] = r.auditOne(gctx, artifact, opts.Only, isExcluded)
			if r.progress != nil {
				r.progress.Increment()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		_ = result.Cleanup()
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		_ = result.Cleanup()
		return nil, err
	}

	firstEntry := make(map[string]string, len(slots))
	for _, s := range slots {
		switch {
		case s.skipped != nil:
			result.Skipped = append(result.Skipped, *s.skipped)
		case s.filtered:
			result.Filtered++
		default:
			name := s.entry.Baseline.PackageName
			if first, seen := firstEntry[name]; seen {
				r.log.Warn().
					Str("package", name).
					Str("apk", s.entry.Baseline.ArchiveEntry).
					Str("first", first).
					Msg("skipping duplicate package")
				result.Skipped = append(result.Skipped, Skipped{
					Entry: s.entry.Baseline.ArchiveEntry,
					Err:   fmt.Errorf("%w: %s already read from %s", ErrDuplicatePackage, name, first),
				})
				continue
			}
			firstEntry[name] = s.entry.Baseline.ArchiveEntry
			result.Entries = append(result.Entries, s.entry)
		}
	}

	r.log.Info().
		Int("packages", len(result.Entries)).
		Int("skipped", len(result.Skipped)).
		Int("filtered", result.Filtered).
		Msg("audit complete")

	return result, nil
}

func (r *Runner) auditOne(ctx context.Context, artifact manifest.Artifact, only string, isExcluded func(string) bool) slot {
	baseline, err := r.manifests.Read(ctx, artifact)
	if err != nil {
		r.log.Warn().Err(err).Str("apk", artifact.Entry).Msg("skipping APK with unreadable manifest")
		return slot{skipped: &Skipped{Entry: artifact.Entry, Err: err}}
	}

	if !ui.FuzzyMatch(only, baseline.PackageName, artifact.Entry) {
		return slot{filtered: true}
	}

	state, err := r.devices.Read(ctx, baseline)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			r.log.Debug().Str("package", baseline.PackageName).Msg("device query cancelled")
		} else {
			r.log.Warn().Err(err).Str("package", baseline.PackageName).Msg("installed version unknown")
		}
		state = core.DevicePackageState{}
	}

	return slot{entry: core.AuditEntry{
		Baseline:     baseline,
		Device:       state,
		Record:       reconcile.Classify(baseline, state, isExcluded),
		ArtifactPath: artifact.Path,
	}}
}
