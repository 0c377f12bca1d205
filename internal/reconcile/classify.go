// Package reconcile compares baseline packages with device state and decides
// which device operations bring a package back to baseline.
//
// Everything in this package is pure: no I/O, no shared state. Callers may
// classify and plan packages from any number of goroutines.
package reconcile

import "github.com/quantmind-br/apkaudit/internal/core"

// ExclusionSet builds an exclusion predicate from a list of package names
func ExclusionSet(names []string) func(string) bool {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return func(pkg string) bool {
		_, ok := set[pkg]
		return ok
	}
}

// Classify compares one baseline package with what the device reports.
// A nil isExcluded excludes nothing.
func Classify(baseline core.BaselinePackage, device core.DevicePackageState, isExcluded func(string) bool) core.ComplianceRecord {
	// Unknown state is never compliant, exclusion included.
	if !device.Known {
		return core.ComplianceRecord{InstalledVersionUnknown: true}
	}

	var record core.ComplianceRecord

	codeMatch := baseline.VersionCode == device.VersionCode
	nameMatch := baseline.VersionName == device.VersionName

	if isExcluded != nil && isExcluded(baseline.PackageName) {
		record.Excluded = true
		record.VersionCodeMatches = true
		record.VersionNameMatches = true
	} else {
		record.VersionCodeMatches = codeMatch
		record.VersionNameMatches = nameMatch
	}

	record.CanUninstall = device.OnDataPartition()
	record.CanUninstallToBaseline = record.CanUninstall &&
		!codeMatch &&
		device.PreInstalled != nil &&
		device.PreInstalled.VersionCode == baseline.VersionCode

	return record
}
