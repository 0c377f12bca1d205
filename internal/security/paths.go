package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsafeEntry marks an archive entry that would land outside the scratch dir
var ErrUnsafeEntry = errors.New("unsafe archive entry")

// ScratchPath maps a bundle entry name to its location under scratchDir.
// Entries with NUL bytes, ".." segments or absolute names are rejected, as is
// anything that still resolves outside scratchDir (zip slip).
func ScratchPath(scratchDir, entry string) (string, error) {
	if strings.ContainsRune(entry, 0) {
		return "", fmt.Errorf("%w: NUL byte in %q", ErrUnsafeEntry, entry)
	}

	name := filepath.FromSlash(entry)
	if filepath.IsAbs(name) || strings.HasPrefix(entry, "/") {
		return "", fmt.Errorf("%w: absolute name %s", ErrUnsafeEntry, entry)
	}
	for _, seg := range strings.Split(filepath.ToSlash(filepath.Clean(name)), "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: parent reference in %s", ErrUnsafeEntry, entry)
		}
	}

	root, err := filepath.Abs(scratchDir)
	if err != nil {
		return "", fmt.Errorf("resolve scratch dir: %w", err)
	}
	target := filepath.Join(root, name)
	if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s escapes %s", ErrUnsafeEntry, entry, scratchDir)
	}

	return target, nil
}
