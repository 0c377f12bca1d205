package core

import "fmt"

// DataPartition is the user-writable partition. Packages installed here can be uninstalled.
const DataPartition = "/data"

// BaselinePackage represents one package of the baseline bundle
type BaselinePackage struct {
	PackageName  string `json:"package"`
	VersionCode  int64  `json:"version_code"`
	VersionName  string `json:"version_name"`
	ArchiveEntry string `json:"apk"`
}

// PreInstalledRecord is the factory-image copy the platform keeps beneath a user-installed update
type PreInstalledRecord struct {
	Partition   string `json:"partition"`
	VersionCode int64  `json:"version_code"`
	VersionName string `json:"version_name"`
}

// DevicePackageState is what the device reports for a single package
type DevicePackageState struct {
	Known        bool                `json:"known"`
	VersionCode  int64               `json:"installed_version_code,omitempty"`
	VersionName  string              `json:"installed_version_name,omitempty"`
	Partition    string              `json:"installed_partition,omitempty"`
	PreInstalled *PreInstalledRecord `json:"pre_installed,omitempty"`
}

// OnDataPartition reports whether the installed copy lives on the writable partition
func (d DevicePackageState) OnDataPartition() bool {
	return d.Partition == DataPartition
}

// HasHiddenFactoryCopy reports whether a factory copy sits underneath a /data update
func (d DevicePackageState) HasHiddenFactoryCopy() bool {
	return d.PreInstalled != nil && d.OnDataPartition()
}

// ComplianceRecord is the classification of one package against the baseline.
// Records are built once per package per run and never modified.
type ComplianceRecord struct {
	Excluded                bool `json:"excluded"`
	VersionCodeMatches      bool `json:"version_code_matched"`
	VersionNameMatches      bool `json:"version_name_matched"`
	InstalledVersionUnknown bool `json:"installed_version_unknown"`
	CanUninstall            bool `json:"can_uninstall"`
	CanUninstallToBaseline  bool `json:"can_uninstall_to_baseline"`
}

// Compliant reports whether both version dimensions match
func (r ComplianceRecord) Compliant() bool {
	return r.VersionCodeMatches && r.VersionNameMatches
}

// Mismatched is the inverse of Compliant
func (r ComplianceRecord) Mismatched() bool {
	return !r.Compliant()
}

// OperationKind identifies a remediation operation
type OperationKind string

const (
	OpUninstall        OperationKind = "uninstall"
	OpInstallOverwrite OperationKind = "install-overwrite"
)

// RemediationOperation is one device action. ArtifactPath is only set for OpInstallOverwrite.
type RemediationOperation struct {
	Kind         OperationKind `json:"kind"`
	PackageName  string        `json:"package"`
	ArtifactPath string        `json:"artifact_path,omitempty"`
}

// String renders the operation as the adb command line it maps to
func (op RemediationOperation) String() string {
	switch op.Kind {
	case OpUninstall:
		return fmt.Sprintf("adb uninstall %s", op.PackageName)
	case OpInstallOverwrite:
		return fmt.Sprintf("adb install -r %s", op.ArtifactPath)
	default:
		return fmt.Sprintf("unknown operation %q for %s", op.Kind, op.PackageName)
	}
}

// AuditEntry joins everything known about one package in an audit run
type AuditEntry struct {
	Baseline     BaselinePackage    `json:"baseline"`
	Device       DevicePackageState `json:"device"`
	Record       ComplianceRecord   `json:"record"`
	ArtifactPath string             `json:"artifact_path"`
}

// Summary holds the aggregate counts shown in the report footer
type Summary struct {
	Total           int `json:"total"`
	CodeMismatches  int `json:"version_code_mismatches"`
	NameMismatches  int `json:"version_name_mismatches"`
	Mismatches      int `json:"mismatches"`
	OnDataPartition int `json:"on_data_partition"`
	Unknown         int `json:"unknown"`
	Excluded        int `json:"excluded"`
	Revertible      int `json:"revertible"`
}

// Exit codes
const (
	ExitSuccess           = 0
	ExitGeneral           = 1
	ExitInvalidArgs       = 2
	ExitConfig            = 3
	ExitRemediationFailed = 4
	ExitDatabase          = 5
	ExitCommandNotFound   = 8
	ExitInterrupted       = 130
)
