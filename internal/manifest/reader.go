package manifest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/quantmind-br/apkaudit/internal/core"
	"github.com/quantmind-br/apkaudit/internal/helpers"
	"github.com/rs/zerolog"
)

// Reader turns extracted APKs into baseline records using aapt2
type Reader struct {
	runner  helpers.CommandRunner
	aapt2   string
	timeout time.Duration
	log     *zerolog.Logger
}

// NewReader creates a Reader. aapt2 is the tool name or path.
func NewReader(runner helpers.CommandRunner, aapt2 string, timeout time.Duration, log *zerolog.Logger) *Reader {
	if aapt2 == "" {
		aapt2 = "aapt2"
	}
	return &Reader{
		runner:  runner,
		aapt2:   aapt2,
		timeout: timeout,
		log:     log,
	}
}

// Tool returns the aapt2 command the reader runs
func (r *Reader) Tool() string {
	return r.aapt2
}

// Read runs `aapt2 dump badging` on one artifact
func (r *Reader) Read(ctx context.Context, artifact Artifact) (core.BaselinePackage, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	output, stderr, err := r.runner.RunCommandWithOutput(ctx, r.aapt2, "dump", "badging", artifact.Path)
	if err != nil {
		// aapt2 exits non-zero for some APKs that still print a package line
		if output == "" {
			var toolErr *helpers.ToolError
			if errors.As(err, &toolErr) || strings.TrimSpace(stderr) == "" {
				return core.BaselinePackage{}, fmt.Errorf("aapt2 badging %s: %w", artifact.Entry, err)
			}
			return core.BaselinePackage{}, fmt.Errorf("aapt2 badging %s: %w: %s", artifact.Entry, err, strings.TrimSpace(stderr))
		}
		r.log.Debug().Err(err).Str("apk", artifact.Entry).Msg("aapt2 returned an error with output, parsing anyway")
	}

	pkg, err := ParseBadging(output)
	if err != nil {
		return core.BaselinePackage{}, fmt.Errorf("%s: %w", artifact.Entry, err)
	}
	pkg.ArchiveEntry = artifact.Entry

	r.log.Debug().
		Str("apk", artifact.Entry).
		Str("package", pkg.PackageName).
		Int64("version_code", pkg.VersionCode).
		Str("version_name", pkg.VersionName).
		Msg("read baseline package")

	return pkg, nil
}
