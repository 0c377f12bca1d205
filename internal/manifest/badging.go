// Package manifest reads the baseline bundle: it extracts the APKs and asks
// aapt2 for each one's package identity and version.
package manifest

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/quantmind-br/apkaudit/internal/core"
	"github.com/quantmind-br/apkaudit/internal/security"
)

// ErrBadging is returned when aapt2 output carries no usable package line
var ErrBadging = errors.New("no package identity in badging output")

var badgingPackageRegex = regexp.MustCompile(`(?m)^package: name='([^']*)' versionCode='(\d+)'(?: versionName='([^']*)')?`)

// ParseBadging extracts the package identity from `aapt2 dump badging` output
func ParseBadging(output string) (core.BaselinePackage, error) {
	m := badgingPackageRegex.FindStringSubmatch(output)
	if m == nil {
		return core.BaselinePackage{}, ErrBadging
	}

	name := m[1]
	if err := security.ValidatePackageName(name); err != nil {
		return core.BaselinePackage{}, fmt.Errorf("%w: %v", ErrBadging, err)
	}

	code, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return core.BaselinePackage{}, fmt.Errorf("%w: version code %q: %v", ErrBadging, m[2], err)
	}

	return core.BaselinePackage{
		PackageName: name,
		VersionCode: code,
		VersionName: NormalizeVersionName(m[3]),
	}, nil
}

// NormalizeVersionName keeps the first whitespace-delimited token
func NormalizeVersionName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
