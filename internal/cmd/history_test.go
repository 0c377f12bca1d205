package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/quantmind-br/apkaudit/internal/config"
	"github.com/quantmind-br/apkaudit/internal/core"
	"github.com/quantmind-br/apkaudit/internal/db"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedHistory(t *testing.T, cfg *config.Config) {
	t.Helper()
	ctx := context.Background()

	history, err := db.New(ctx, cfg.Paths.DBFile)
	require.NoError(t, err)
	defer history.Close()

	chrome := core.AuditEntry{
		Baseline: core.BaselinePackage{PackageName: "com.android.chrome", VersionCode: 100, VersionName: "100.0", ArchiveEntry: "apps/Chrome.apk"},
		Device:   core.DevicePackageState{Known: true, VersionCode: 120, VersionName: "120.0", Partition: "/data"},
		Record:   core.ComplianceRecord{CanUninstall: true},
	}

	require.NoError(t, history.CreateRun(ctx, &db.Run{
		RunID:     "1f0c9a52-0000-4000-8000-000000000001",
		Bundle:    "/bundles/tv-2025.zip",
		Serial:    "emulator-5554",
		StartedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Summary:   core.Summary{Total: 1, Mismatches: 1, CodeMismatches: 1, NameMismatches: 1, OnDataPartition: 1},
	}, []core.AuditEntry{chrome}))

	require.NoError(t, history.CreateRun(ctx, &db.Run{
		RunID:     "7b3e44d1-0000-4000-8000-000000000002",
		Bundle:    "/bundles/tv-2026.zip",
		Serial:    "emulator-5554",
		StartedAt: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		Summary:   core.Summary{Total: 1, Mismatches: 1, CodeMismatches: 1, NameMismatches: 1, OnDataPartition: 1},
	}, []core.AuditEntry{chrome}))
	require.NoError(t, history.MarkRemediation(ctx, "7b3e44d1-0000-4000-8000-000000000002", 1))
}

func runHistory(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	captureUI(t, &out)
	logger := zerolog.Nop()

	root := NewRootCmdWithEnv(cfg, &logger, "test", testEnv(t, nil))
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"history"}, args...))

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestHistoryCmd_Empty(t *testing.T) {
	cfg := testConfig(t)

	out, err := runHistory(t, cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "No audit runs recorded")
}

func TestHistoryCmd_List(t *testing.T) {
	cfg := testConfig(t)
	seedHistory(t, cfg)

	out, err := runHistory(t, cfg)
	require.NoError(t, err)

	assert.Contains(t, out, "1f0c9a52")
	assert.Contains(t, out, "7b3e44d1")
	assert.Contains(t, out, "tv-2026.zip")
	assert.Contains(t, out, "applied (1 failed)")
	assert.Less(t, bytes.Index([]byte(out), []byte("7b3e44d1")), bytes.Index([]byte(out), []byte("1f0c9a52")), "newest first")

	out, err = runHistory(t, cfg, "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "7b3e44d1")
	assert.NotContains(t, out, "1f0c9a52")
}

func TestHistoryCmd_Show(t *testing.T) {
	cfg := testConfig(t)
	seedHistory(t, cfg)

	out, err := runHistory(t, cfg, "1f0c")
	require.NoError(t, err)

	assert.Contains(t, out, "Audit run 1f0c9a52-0000-4000-8000-000000000001")
	assert.Contains(t, out, "Bundle: /bundles/tv-2025.zip")
	assert.Contains(t, out, "com.android.chrome")
	assert.Contains(t, out, "Total # of apps: 1")
}

func TestHistoryCmd_Errors(t *testing.T) {
	cfg := testConfig(t)
	seedHistory(t, cfg)

	_, err := runHistory(t, cfg, "ffffffff")
	require.Error(t, err)
	assert.Equal(t, core.ExitInvalidArgs, core.ExitCode(err))

	_, err = runHistory(t, cfg, "--delete")
	require.Error(t, err)
	assert.Equal(t, core.ExitInvalidArgs, core.ExitCode(err))

	bad := testConfig(t)
	bad.Paths.DBFile = ""
	_, err = runHistory(t, bad)
	require.Error(t, err)
	assert.Equal(t, core.ExitDatabase, core.ExitCode(err))
}

func TestHistoryCmd_Delete(t *testing.T) {
	cfg := testConfig(t)
	seedHistory(t, cfg)

	out, err := runHistory(t, cfg, "7b3e", "--delete")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted run 7b3e44d1-0000-4000-8000-000000000002")

	out, err = runHistory(t, cfg)
	require.NoError(t, err)
	assert.NotContains(t, out, "7b3e44d1")
	assert.Contains(t, out, "1f0c9a52")
}

func TestOpenHistory_CreatesDirectory(t *testing.T) {
	cfg := testConfig(t)
	cfg.Paths.DBFile = filepath.Join(t.TempDir(), "nested", "dir", "history.db")

	history, err := openHistory(context.Background(), cfg)
	require.NoError(t, err)
	defer history.Close()
	assert.Equal(t, cfg.Paths.DBFile, history.Path())
}

func TestRemediationStatus(t *testing.T) {
	assert.Equal(t, "-", remediationStatus(db.Run{}))
	assert.Equal(t, "applied", remediationStatus(db.Run{Applied: true}))
	assert.Equal(t, "applied (3 failed)", remediationStatus(db.Run{Applied: true, FailedOps: 3}))
}
