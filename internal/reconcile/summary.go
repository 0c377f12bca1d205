package reconcile

import "github.com/quantmind-br/apkaudit/internal/core"

// Summarize folds the audit entries into the footer counts
func Summarize(entries []core.AuditEntry) core.Summary {
	s := core.Summary{Total: len(entries)}

	for _, e := range entries {
		r := e.Record
		if !r.VersionCodeMatches {
			s.CodeMismatches++
		}
		if !r.VersionNameMatches {
			s.NameMismatches++
		}
		if r.Mismatched() {
			s.Mismatches++
		}
		if e.Device.OnDataPartition() {
			s.OnDataPartition++
		}
		if r.InstalledVersionUnknown {
			s.Unknown++
		}
		if r.Excluded {
			s.Excluded++
		}
		if r.CanUninstallToBaseline {
			s.Revertible++
		}
	}

	return s
}

// HasMismatches reports whether any entry needs remediation
func HasMismatches(entries []core.AuditEntry) bool {
	for _, e := range entries {
		if e.Record.Mismatched() {
			return true
		}
	}
	return false
}

// HasNameMismatches reports whether any entry differs on version name
func HasNameMismatches(entries []core.AuditEntry) bool {
	for _, e := range entries {
		if !e.Record.VersionNameMatches {
			return true
		}
	}
	return false
}
