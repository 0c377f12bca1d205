// Package device queries a device over adb for the installed and factory
// versions of a package.
package device

import (
	"bufio"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/quantmind-br/apkaudit/internal/core"
)

// ErrNoPackageRecord is returned when dumpsys output has no record for the package
var ErrNoPackageRecord = errors.New("no package record in dumpsys output")

const (
	installedSection = "Packages:"
	hiddenSection    = "Hidden system packages:"
)

var (
	codePathRegex    = regexp.MustCompile(`^\s*codePath=(/[^/\s]+)`)
	versionCodeRegex = regexp.MustCompile(`(?:^|\s)versionCode=(\d+)`)
	versionNameRegex = regexp.MustCompile(`^\s*versionName=(\S+)`)
)

// packageBlock is the first package record found in a dumpsys section
type packageBlock struct {
	partition   string
	versionCode int64
	versionName string
}

// ParseDumpsys extracts the installed and pre-installed records from
// `dumpsys package <name>` output.
//
// The "Packages:" section describes the active copy. "Hidden system packages:"
// holds the factory copy; it becomes the pre-installed record when the active
// copy lives on /data, and the installed record otherwise.
func ParseDumpsys(output string) (core.DevicePackageState, error) {
	sections := splitSections(output)

	installed, hasInstalled := parseBlock(sections[installedSection])
	hidden, hasHidden := parseBlock(sections[hiddenSection])

	var state core.DevicePackageState

	if hasInstalled {
		state.Known = true
		state.VersionCode = installed.versionCode
		state.VersionName = installed.versionName
		state.Partition = installed.partition
	}

	if hasHidden {
		if state.OnDataPartition() {
			state.PreInstalled = &core.PreInstalledRecord{
				Partition:   hidden.partition,
				VersionCode: hidden.versionCode,
				VersionName: hidden.versionName,
			}
		} else {
			state.Known = true
			state.VersionCode = hidden.versionCode
			state.VersionName = hidden.versionName
			state.Partition = hidden.partition
		}
	}

	if !state.Known {
		return state, ErrNoPackageRecord
	}

	return state, nil
}

// splitSections groups lines under their top-level (unindented) header
func splitSections(output string) map[string][]string {
	sections := make(map[string][]string)
	current := ""

	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		if line[0] != ' ' && line[0] != '\t' {
			current = strings.TrimSpace(line)
			continue
		}
		if current != "" {
			sections[current] = append(sections[current], line)
		}
	}

	return sections
}

// parseBlock reads the first package record of a section. A record needs a
// code path and a version code; the version name is optional.
func parseBlock(lines []string) (packageBlock, bool) {
	var block packageBlock
	var hasPath, hasCode, started bool

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "Package [") {
			if started {
				break
			}
			started = true
			continue
		}

		if !hasPath {
			if m := codePathRegex.FindStringSubmatch(line); m != nil {
				block.partition = m[1]
				hasPath = true
				continue
			}
		}
		if !hasCode {
			if m := versionCodeRegex.FindStringSubmatch(line); m != nil {
				code, err := strconv.ParseInt(m[1], 10, 64)
				if err == nil {
					block.versionCode = code
					hasCode = true
				}
				continue
			}
		}
		if block.versionName == "" {
			if m := versionNameRegex.FindStringSubmatch(line); m != nil {
				block.versionName = m[1]
			}
		}
	}

	return block, hasPath && hasCode
}

// QueryName is the name passed to dumpsys. Static shared libraries are
// registered as <package>_<versionCode>.
func QueryName(pkg string, versionCode int64, versioned func(string) bool) string {
	if versioned != nil && versioned(pkg) {
		return fmt.Sprintf("%s_%d", pkg, versionCode)
	}
	return pkg
}
