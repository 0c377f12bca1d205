// Package fsops holds the filesystem steps shared by audits and doctor.
// Everything goes through afero so tests can run on a MemMapFs.
package fsops

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// ScratchPrefix names the per-run extraction directories under os.TempDir
const ScratchPrefix = "apkaudit-"

// Directory check failures
var (
	ErrMissing = errors.New("does not exist")
	ErrNotDir  = errors.New("not a directory")
)

// NewScratchDir creates a fresh directory for one run's extracted APKs
func NewScratchDir(afs afero.Fs) (string, error) {
	dir, err := afero.TempDir(afs, os.TempDir(), ScratchPrefix)
	if err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	return dir, nil
}

// Exists checks if a path exists
func Exists(afs afero.Fs, path string) bool {
	_, err := afs.Stat(path)
	return err == nil
}

// CheckDir verifies that path is a writable directory. A missing directory
// is created when create is set and reported as ErrMissing otherwise.
func CheckDir(afs afero.Fs, path string, create bool) error {
	info, err := afs.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err):
		if !create {
			return ErrMissing
		}
		if err := afs.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	case err != nil:
		return err
	case !info.IsDir():
		return ErrNotDir
	}

	probe, err := afero.TempFile(afs, path, ".apkaudit-probe-")
	if err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	probe.Close()
	return afs.Remove(probe.Name())
}

// WriteFileAtomic writes data to a sibling temp file and renames it over
// path, so a reader never sees a half-written report.
func WriteFileAtomic(afs afero.Fs, path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := afs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(afs, dir, "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = afs.Chmod(tmpName, perm)
	}
	if err == nil {
		err = afs.Rename(tmpName, path)
	}
	if err != nil {
		_ = afs.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
