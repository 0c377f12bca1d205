package manifest

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/quantmind-br/apkaudit/internal/security"
	"github.com/spf13/afero"
	"github.com/ulikunitz/xz"
)

// Format is the container format of a baseline bundle
type Format string

const (
	FormatZip   Format = "zip"
	FormatTarGz Format = "tar.gz"
	FormatTarXz Format = "tar.xz"
	FormatTar   Format = "tar"
)

// Extraction limits
const (
	MaxExtractedSize = 16 << 30 // 16 GiB
	MaxFileCount     = 20000
)

// ErrUnsupportedFormat is returned for bundles that are not zip or tar archives
var ErrUnsupportedFormat = errors.New("unsupported bundle format")

// Artifact is one APK extracted from a bundle
type Artifact struct {
	Index int    // position among the bundle's APK entries
	Entry string // entry name inside the bundle
	Path  string // extracted location on disk
}

// DetectFormat picks the bundle format from the file name
func DetectFormat(path string) (Format, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return FormatZip, nil
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FormatTarGz, nil
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		return FormatTarXz, nil
	case strings.HasSuffix(lower, ".tar"):
		return FormatTar, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}
}

// BaseName strips the bundle extension, e.g. "/x/baseline.tar.xz" -> "/x/baseline"
func BaseName(path string) string {
	lower := strings.ToLower(path)
	for _, ext := range []string{".tar.gz", ".tar.xz", ".tgz", ".txz", ".tar", ".zip"} {
		if strings.HasSuffix(lower, ext) {
			return path[:len(path)-len(ext)]
		}
	}
	return strings.TrimSuffix(path, filepath.Ext(path))
}

// IsAPKEntry reports whether an archive entry name is an APK
func IsAPKEntry(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".apk")
}

// ExtractAPKs extracts every APK entry of the bundle into destDir, in archive order
func ExtractAPKs(fs afero.Fs, bundlePath, destDir string) ([]Artifact, error) {
	format, err := DetectFormat(bundlePath)
	if err != nil {
		return nil, err
	}

	f, err := fs.Open(bundlePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle: %w", err)
	}
	defer f.Close()

	switch format {
	case FormatZip:
		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat bundle: %w", err)
		}
		return extractZip(fs, f, info.Size(), destDir)
	case FormatTarGz:
		gzr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gzr.Close()
		return extractTar(fs, gzr, destDir)
	case FormatTarXz:
		xzr, err := xz.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to create xz reader: %w", err)
		}
		return extractTar(fs, xzr, destDir)
	default:
		return extractTar(fs, f, destDir)
	}
}

func extractZip(fs afero.Fs, r io.ReaderAt, size int64, destDir string) ([]Artifact, error) {
	zr, err := zip.NewReader(r, size)
	// Insecure names are rejected entry by entry below.
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, fmt.Errorf("failed to open zip: %w", err)
	}

	limiter := newExtractionLimiter()
	var artifacts []Artifact

	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() || !IsAPKEntry(zf.Name) {
			continue
		}

		target, err := security.ScratchPath(destDir, zf.Name)
		if err != nil {
			return nil, fmt.Errorf("invalid path in zip: %w", err)
		}
		if err := limiter.check(int64(zf.UncompressedSize64)); err != nil {
			return nil, err
		}

		if err := extractZipFile(fs, zf, target); err != nil {
			return nil, fmt.Errorf("failed to extract %s: %w", zf.Name, err)
		}

		artifacts = append(artifacts, Artifact{Index: len(artifacts), Entry: zf.Name, Path: target})
	}

	return artifacts, nil
}

func extractZipFile(fs afero.Fs, zf *zip.File, target string) error {
	rc, err := zf.Open()
	if err != nil {
		return fmt.Errorf("failed to open zip file entry: %w", err)
	}
	defer rc.Close()

	return writeFile(fs, rc, target)
}

func extractTar(fs afero.Fs, r io.Reader, destDir string) ([]Artifact, error) {
	tr := tar.NewReader(r)
	limiter := newExtractionLimiter()
	var artifacts []Artifact

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("tar read error: %w", err)
		}

		if header.Typeflag != tar.TypeReg || !IsAPKEntry(header.Name) {
			continue
		}

		target, err := security.ScratchPath(destDir, header.Name)
		if err != nil {
			return nil, fmt.Errorf("invalid path in archive: %w", err)
		}
		if err := limiter.check(header.Size); err != nil {
			return nil, err
		}

		if err := writeFile(fs, tr, target); err != nil {
			return nil, fmt.Errorf("failed to extract file %s: %w", header.Name, err)
		}

		artifacts = append(artifacts, Artifact{Index: len(artifacts), Entry: header.Name, Path: target})
	}

	return artifacts, nil
}

func writeFile(fs afero.Fs, r io.Reader, target string) error {
	if err := fs.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	out, err := fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, io.LimitReader(r, MaxExtractedSize)); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

type extractionLimiter struct {
	total int64
	files int
}

func newExtractionLimiter() *extractionLimiter {
	return &extractionLimiter{}
}

func (l *extractionLimiter) check(size int64) error {
	l.files++
	if l.files > MaxFileCount {
		return fmt.Errorf("file count limit exceeded (%d)", MaxFileCount)
	}
	l.total += size
	if l.total > MaxExtractedSize {
		return fmt.Errorf("extraction size limit exceeded (%d bytes)", int64(MaxExtractedSize))
	}
	return nil
}
