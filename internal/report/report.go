// Package report renders audit results as a terminal table.
package report

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/quantmind-br/apkaudit/internal/core"
	"github.com/quantmind-br/apkaudit/internal/reconcile"
	"github.com/quantmind-br/apkaudit/internal/ui"
)

// UnknownLabel replaces installed versions the device did not report
const UnknownLabel = "Unknown"

// Options controls the table layout
type Options struct {
	// ShowNames forces the baseline version name column. It is shown anyway
	// when any version name mismatches.
	ShowNames bool
}

// rowStyle is the color of each styled cell group. A nil color prints plain.
type rowStyle struct {
	code      *color.Color
	name      *color.Color
	partition *color.Color
}

// styleFor derives a row's colors from its compliance record alone
func styleFor(r core.ComplianceRecord) rowStyle {
	var s rowStyle

	if r.Excluded {
		s.code, s.name, s.partition = ui.StyleExcluded, ui.StyleExcluded, ui.StyleExcluded
	} else {
		s.code, s.name = ui.Success, ui.Success
	}

	if !r.VersionCodeMatches {
		s.code = ui.StyleMismatch
	}
	if !r.VersionNameMatches {
		s.name = ui.StyleMismatch
	}
	if r.CanUninstallToBaseline {
		s.partition = ui.StyleRevertible
	}
	if r.InstalledVersionUnknown {
		s.code, s.name, s.partition = ui.StyleMismatch, ui.StyleMismatch, ui.StyleUnknown
	}

	return s
}

func paint(c *color.Color, s string) string {
	if c == nil {
		return s
	}
	return c.Sprint(s)
}

// PartitionLabel is the installed partition, suffixed with "*" when a
// factory copy sits beneath a /data install
func PartitionLabel(d core.DevicePackageState) string {
	if d.HasHiddenFactoryCopy() {
		return d.Partition + "*"
	}
	return d.Partition
}

// ShowNameColumn reports whether the baseline version name column is needed
func ShowNameColumn(entries []core.AuditEntry, opts Options) bool {
	return opts.ShowNames || reconcile.HasNameMismatches(entries)
}

// Row formats one entry. index is 1-based.
func Row(index int, e core.AuditEntry, showNames bool) []string {
	style := styleFor(e.Record)

	installedCode := strconv.FormatInt(e.Device.VersionCode, 10)
	installedName := e.Device.VersionName
	partition := PartitionLabel(e.Device)
	if e.Record.InstalledVersionUnknown {
		installedCode, installedName, partition = UnknownLabel, UnknownLabel, UnknownLabel
	}

	row := []string{
		fmt.Sprintf("[%d]", index),
		filepath.Base(e.Baseline.ArchiveEntry),
		e.Baseline.PackageName,
		paint(style.code, strconv.FormatInt(e.Baseline.VersionCode, 10)),
		paint(style.code, installedCode),
	}
	if showNames {
		row = append(row, paint(style.name, e.Baseline.VersionName))
	}
	row = append(row,
		paint(style.name, installedName),
		paint(style.partition, partition),
	)

	return row
}

// Header returns the column titles
func Header(showNames bool) []string {
	header := []string{"", "APK Filename", "Package Name", "Version Code", "Installed Version Code"}
	if showNames {
		header = append(header, "Version Name")
	}
	return append(header, "Installed Version Name", "Installed Partition")
}

// Footer formats the summary counts
func Footer(s core.Summary) string {
	return fmt.Sprintf("Total # of apps: %d   Total Mismatches: %d   Version Code Mismatches: %d   Version Name Mismatches: %d   /data: %d   Unknown: %d   Excluded: %d   Revertible: %d",
		s.Total, s.Mismatches, s.CodeMismatches, s.NameMismatches, s.OnDataPartition, s.Unknown, s.Excluded, s.Revertible)
}

// Render writes the compliance table followed by the summary footer
func Render(w io.Writer, entries []core.AuditEntry, opts Options) error {
	showNames := ShowNameColumn(entries, opts)
	header := Header(showNames)

	table := tablewriter.NewTable(w,
		tablewriter.WithHeader(header),
		tablewriter.WithAlignment(tw.MakeAlign(len(header), tw.AlignLeft)),
		tablewriter.WithSymbols(tw.NewSymbols(tw.StyleLight)),
	)

	for i, e := range entries {
		if err := table.Append(Row(i+1, e, showNames)); err != nil {
			return fmt.Errorf("append row: %w", err)
		}
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("render table: %w", err)
	}

	_, err := fmt.Fprintln(w, Footer(reconcile.Summarize(entries)))
	return err
}
