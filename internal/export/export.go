// Package export writes audit results as JSON.
package export

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/quantmind-br/apkaudit/internal/core"
	"github.com/quantmind-br/apkaudit/internal/fsops"
	"github.com/quantmind-br/apkaudit/internal/manifest"
	"github.com/spf13/afero"
)

// App is the exported view of one package, flattened for downstream tools.
// Installed fields are omitted when the device did not report the package.
type App struct {
	APK                     string `json:"apk"`
	Package                 string `json:"package"`
	VersionCode             int64  `json:"versionCode"`
	VersionName             string `json:"versionName"`
	InstalledVersionCode    *int64 `json:"installedVersionCode,omitempty"`
	InstalledVersionName    string `json:"installedVersionName,omitempty"`
	InstalledPartition      string `json:"installedPartition,omitempty"`
	IsPreInstalled          bool   `json:"isPreInstalled"`
	PreInstalledPartition   string `json:"preInstalledPartition,omitempty"`
	PreInstalledVersionCode int64  `json:"preInstalledVersionCode,omitempty"`
	PreInstalledVersionName string `json:"preInstalledVersionName,omitempty"`
	IsOnDataPartition       bool   `json:"isOnDataPartition"`
	Excluded                bool   `json:"excluded"`
	VersionCodeMatched      bool   `json:"versionCodeMatched"`
	VersionNameMatched      bool   `json:"versionNameMatched"`
	InstalledVersionUnknown bool   `json:"installedVersionUnknown"`
	CanUninstall            bool   `json:"canUninstall"`
	CanUninstallToBaseline  bool   `json:"canUninstallToBaseline"`
	ExtractedFilename       string `json:"extractedFilename"`
}

// FromEntry flattens an audit entry
func FromEntry(e core.AuditEntry) App {
	app := App{
		APK:                     filepath.Base(e.Baseline.ArchiveEntry),
		Package:                 e.Baseline.PackageName,
		VersionCode:             e.Baseline.VersionCode,
		VersionName:             e.Baseline.VersionName,
		IsOnDataPartition:       e.Device.OnDataPartition(),
		Excluded:                e.Record.Excluded,
		VersionCodeMatched:      e.Record.VersionCodeMatches,
		VersionNameMatched:      e.Record.VersionNameMatches,
		InstalledVersionUnknown: e.Record.InstalledVersionUnknown,
		CanUninstall:            e.Record.CanUninstall,
		CanUninstallToBaseline:  e.Record.CanUninstallToBaseline,
		ExtractedFilename:       e.ArtifactPath,
	}

	if !e.Record.InstalledVersionUnknown {
		code := e.Device.VersionCode
		app.InstalledVersionCode = &code
		app.InstalledVersionName = e.Device.VersionName
		app.InstalledPartition = e.Device.Partition
	}

	if pre := e.Device.PreInstalled; pre != nil {
		app.IsPreInstalled = true
		app.PreInstalledPartition = pre.Partition
		app.PreInstalledVersionCode = pre.VersionCode
		app.PreInstalledVersionName = pre.VersionName
	}

	return app
}

// DefaultPath is the bundle path with its archive extension replaced by .json
func DefaultPath(bundlePath string) string {
	return manifest.BaseName(bundlePath) + ".json"
}

// Marshal renders entries as an indented JSON array
func Marshal(entries []core.AuditEntry) ([]byte, error) {
	apps := make([]App, 0, len(entries))
	for _, e := range entries {
		apps = append(apps, FromEntry(e))
	}

	data, err := json.MarshalIndent(apps, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal audit results: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteJSON writes entries to path atomically
func WriteJSON(fs afero.Fs, path string, entries []core.AuditEntry) error {
	data, err := Marshal(entries)
	if err != nil {
		return err
	}

	if err := fsops.WriteFileAtomic(fs, path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
