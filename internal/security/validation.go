package security

import (
	"errors"
	"fmt"
	"regexp"
)

// Input validation failures
var (
	ErrInvalidPackage = errors.New("invalid package name")
	ErrInvalidSerial  = errors.New("invalid device serial")
)

var (
	// packageNameRe matches Android application IDs: dot-separated segments
	// that start with a letter. Underscores cover version-qualified names
	// such as com.google.android.trichromelibrary_614600533.
	packageNameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*(\.[A-Za-z][A-Za-z0-9_]*)+$`)

	// serialRe matches adb serials, including host:port for network devices
	serialRe = regexp.MustCompile(`^[A-Za-z0-9._:-]+$`)
)

// ValidatePackageName checks a name read from aapt2 before it reaches adb
func ValidatePackageName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidPackage)
	case len(name) > 255:
		return fmt.Errorf("%w: longer than 255 characters", ErrInvalidPackage)
	case !packageNameRe.MatchString(name):
		return fmt.Errorf("%w %q: expected dot-separated identifiers", ErrInvalidPackage, name)
	}
	return nil
}

// ValidateSerial checks a --serial value. Empty means "pick the device".
func ValidateSerial(serial string) error {
	switch {
	case serial == "":
		return nil
	case len(serial) > 128:
		return fmt.Errorf("%w: longer than 128 characters", ErrInvalidSerial)
	case !serialRe.MatchString(serial):
		return fmt.Errorf("%w %q", ErrInvalidSerial, serial)
	}
	return nil
}
