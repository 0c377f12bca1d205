package reconcile

import "github.com/quantmind-br/apkaudit/internal/core"

// PlanItem is the planner input for one package
type PlanItem struct {
	Record       core.ComplianceRecord
	Baseline     core.BaselinePackage
	ArtifactPath string
}

// Plan turns classified packages into device operations.
//
// Packages keep their input order. Within a package an uninstall always
// precedes the install-overwrite.
func Plan(items []PlanItem) []core.RemediationOperation {
	var ops []core.RemediationOperation

	for _, item := range items {
		if item.Record.Compliant() {
			continue
		}

		pkg := item.Baseline.PackageName
		uninstall := core.RemediationOperation{Kind: core.OpUninstall, PackageName: pkg}
		install := core.RemediationOperation{Kind: core.OpInstallOverwrite, PackageName: pkg, ArtifactPath: item.ArtifactPath}

		switch {
		case item.Record.CanUninstallToBaseline:
			// The factory copy underneath already matches.
			ops = append(ops, uninstall)
		case item.Record.CanUninstall:
			ops = append(ops, uninstall, install)
		default:
			ops = append(ops, install)
		}
	}

	return ops
}

// PlanEntries plans a whole audit run
func PlanEntries(entries []core.AuditEntry) []core.RemediationOperation {
	items := make([]PlanItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, PlanItem{
			Record:       e.Record,
			Baseline:     e.Baseline,
			ArtifactPath: e.ArtifactPath,
		})
	}
	return Plan(items)
}
