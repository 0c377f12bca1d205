package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/quantmind-br/apkaudit/internal/core"
	_ "modernc.org/sqlite"
)

// Sentinel errors for run lookups
var (
	ErrRunNotFound  = errors.New("audit run not found")
	ErrAmbiguousRun = errors.New("run id prefix matches more than one run")
)

const schemaVersion = 1

// DB represents the database with separate read/write pools
type DB struct {
	write *sql.DB
	read  *sql.DB
	path  string
}

// New creates a new database instance with separate read/write pools
func New(ctx context.Context, dbPath string) (*DB, error) {
	// Connection string with pragmas
	connStr := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", dbPath)

	// Write pool: MUST be 1 connection only
	write, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open write connection: %w", err)
	}
	write.SetMaxOpenConns(1)
	write.SetMaxIdleConns(1)
	write.SetConnMaxIdleTime(time.Minute)
	write.SetConnMaxLifetime(time.Hour)

	// Read pool: Can have multiple connections
	read, err := sql.Open("sqlite", connStr)
	if err != nil {
		write.Close()
		return nil, fmt.Errorf("open read connection: %w", err)
	}
	read.SetMaxOpenConns(10)
	read.SetMaxIdleConns(5)
	read.SetConnMaxIdleTime(time.Minute)
	read.SetConnMaxLifetime(time.Hour)

	db := &DB{
		write: write,
		read:  read,
		path:  dbPath,
	}

	// Initialize schema
	if err := db.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return db, nil
}

// Path returns the database file location
func (db *DB) Path() string {
	return db.path
}

// Close closes both database connections
func (db *DB) Close() error {
	writeErr := db.write.Close()
	readErr := db.read.Close()
	if writeErr != nil {
		return writeErr
	}
	return readErr
}

// initSchema creates the schema if it doesn't exist
func (db *DB) initSchema(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    bundle TEXT NOT NULL,
    serial TEXT,
    started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    total INTEGER NOT NULL DEFAULT 0,
    code_mismatches INTEGER NOT NULL DEFAULT 0,
    name_mismatches INTEGER NOT NULL DEFAULT 0,
    mismatches INTEGER NOT NULL DEFAULT 0,
    on_data INTEGER NOT NULL DEFAULT 0,
    unknown_count INTEGER NOT NULL DEFAULT 0,
    excluded_count INTEGER NOT NULL DEFAULT 0,
    revertible INTEGER NOT NULL DEFAULT 0,
    skipped INTEGER NOT NULL DEFAULT 0,
    applied INTEGER NOT NULL DEFAULT 0,
    failed_ops INTEGER NOT NULL DEFAULT 0,
    metadata TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

CREATE TABLE IF NOT EXISTS records (
    run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
    idx INTEGER NOT NULL,
    archive_entry TEXT NOT NULL,
    artifact_path TEXT,
    package_name TEXT NOT NULL,
    baseline_code INTEGER NOT NULL,
    baseline_name TEXT,
    known INTEGER NOT NULL,
    installed_code INTEGER,
    installed_name TEXT,
    install_partition TEXT,
    factory_partition TEXT,
    factory_code INTEGER,
    factory_name TEXT,
    is_excluded INTEGER NOT NULL,
    code_matches INTEGER NOT NULL,
    name_matches INTEGER NOT NULL,
    is_unknown INTEGER NOT NULL,
    can_uninstall INTEGER NOT NULL,
    can_revert INTEGER NOT NULL,
    PRIMARY KEY (run_id, idx)
);

CREATE INDEX IF NOT EXISTS idx_records_package ON records(package_name);

CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    applied_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    description TEXT
);
	`

	_, err := db.write.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	_, err = db.write.ExecContext(ctx,
		"INSERT OR IGNORE INTO schema_migrations (version, description) VALUES (?, ?)",
		schemaVersion, "audit runs and records")
	if err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	return nil
}

// Run is one stored audit
type Run struct {
	RunID     string
	Bundle    string
	Serial    string
	StartedAt time.Time
	Summary   core.Summary
	Skipped   int
	Applied   bool
	FailedOps int
	Metadata  map[string]interface{}
}

const runColumns = `run_id, bundle, serial, started_at, total, code_mismatches, name_mismatches, mismatches,
    on_data, unknown_count, excluded_count, revertible, skipped, applied, failed_ops, metadata`

// CreateRun stores a run and its per-package records in one transaction
func (db *DB) CreateRun(ctx context.Context, run *Run, entries []core.AuditEntry) error {
	metadataJSON, err := json.Marshal(run.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	tx, err := db.write.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	s := run.Summary
	_, err = tx.ExecContext(ctx, `
INSERT INTO runs (`+runColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.RunID, run.Bundle, run.Serial, run.StartedAt,
		s.Total, s.CodeMismatches, s.NameMismatches, s.Mismatches,
		s.OnDataPartition, s.Unknown, s.Excluded, s.Revertible,
		run.Skipped, run.Applied, run.FailedOps, string(metadataJSON),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO records (run_id, idx, archive_entry, artifact_path, package_name, baseline_code, baseline_name,
    known, installed_code, installed_name, install_partition, factory_partition, factory_code, factory_name,
    is_excluded, code_matches, name_matches, is_unknown, can_uninstall, can_revert)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare record insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range entries {
		var factoryPartition, factoryName sql.NullString
		var factoryCode sql.NullInt64
		if pre := e.Device.PreInstalled; pre != nil {
			factoryPartition = sql.NullString{String: pre.Partition, Valid: true}
			factoryCode = sql.NullInt64{Int64: pre.VersionCode, Valid: true}
			factoryName = sql.NullString{String: pre.VersionName, Valid: true}
		}

		r := e.Record
		_, err := stmt.ExecContext(ctx,
			run.RunID, i, e.Baseline.ArchiveEntry, e.ArtifactPath, e.Baseline.PackageName,
			e.Baseline.VersionCode, e.Baseline.VersionName,
			e.Device.Known, e.Device.VersionCode, e.Device.VersionName, e.Device.Partition,
			factoryPartition, factoryCode, factoryName,
			r.Excluded, r.VersionCodeMatches, r.VersionNameMatches, r.InstalledVersionUnknown,
			r.CanUninstall, r.CanUninstallToBaseline,
		)
		if err != nil {
			return fmt.Errorf("insert record %s: %w", e.Baseline.PackageName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}

	return nil
}

// GetRun retrieves a run by ID or unique ID prefix
func (db *DB) GetRun(ctx context.Context, runID string) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE run_id = ? OR run_id LIKE ? || '%' LIMIT 2`

	rows, err := db.read.QueryContext(ctx, query, runID, runID)
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	defer rows.Close()

	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}

	switch {
	case len(runs) == 0:
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	case len(runs) > 1:
		for i := range runs {
			if runs[i].RunID == runID {
				return &runs[i], nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousRun, runID)
	}

	return &runs[0], nil
}

// ListRuns retrieves the most recent runs, newest first. limit <= 0 means all.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.read.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

func scanRuns(rows *sql.Rows) ([]Run, error) {
	var runs []Run
	for rows.Next() {
		var run Run
		var serial, metadataJSON sql.NullString

		err := rows.Scan(
			&run.RunID,
			&run.Bundle,
			&serial,
			&run.StartedAt,
			&run.Summary.Total,
			&run.Summary.CodeMismatches,
			&run.Summary.NameMismatches,
			&run.Summary.Mismatches,
			&run.Summary.OnDataPartition,
			&run.Summary.Unknown,
			&run.Summary.Excluded,
			&run.Summary.Revertible,
			&run.Skipped,
			&run.Applied,
			&run.FailedOps,
			&metadataJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Serial = serial.String

		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &run.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return runs, nil
}

// Records retrieves a run's per-package entries in archive order
func (db *DB) Records(ctx context.Context, runID string) ([]core.AuditEntry, error) {
	query := `
SELECT archive_entry, artifact_path, package_name, baseline_code, baseline_name,
    known, installed_code, installed_name, install_partition, factory_partition, factory_code, factory_name,
    is_excluded, code_matches, name_matches, is_unknown, can_uninstall, can_revert
FROM records WHERE run_id = ? ORDER BY idx
	`

	rows, err := db.read.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var entries []core.AuditEntry
	for rows.Next() {
		var e core.AuditEntry
		var artifactPath, baselineName, installedName, partition sql.NullString
		var factoryPartition, factoryName sql.NullString
		var installedCode, factoryCode sql.NullInt64

		err := rows.Scan(
			&e.Baseline.ArchiveEntry,
			&artifactPath,
			&e.Baseline.PackageName,
			&e.Baseline.VersionCode,
			&baselineName,
			&e.Device.Known,
			&installedCode,
			&installedName,
			&partition,
			&factoryPartition,
			&factoryCode,
			&factoryName,
			&e.Record.Excluded,
			&e.Record.VersionCodeMatches,
			&e.Record.VersionNameMatches,
			&e.Record.InstalledVersionUnknown,
			&e.Record.CanUninstall,
			&e.Record.CanUninstallToBaseline,
		)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}

		e.ArtifactPath = artifactPath.String
		e.Baseline.VersionName = baselineName.String
		e.Device.VersionCode = installedCode.Int64
		e.Device.VersionName = installedName.String
		e.Device.Partition = partition.String
		if factoryPartition.Valid {
			e.Device.PreInstalled = &core.PreInstalledRecord{
				Partition:   factoryPartition.String,
				VersionCode: factoryCode.Int64,
				VersionName: factoryName.String,
			}
		}

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return entries, nil
}

// MarkRemediation records that remediation ran for a run and how many operations failed
func (db *DB) MarkRemediation(ctx context.Context, runID string, failedOps int) error {
	result, err := db.write.ExecContext(ctx,
		"UPDATE runs SET applied = 1, failed_ops = ? WHERE run_id = ?", failedOps, runID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	return nil
}

// DeleteRun removes a run and its records
func (db *DB) DeleteRun(ctx context.Context, runID string) error {
	result, err := db.write.ExecContext(ctx, "DELETE FROM runs WHERE run_id = ?", runID)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	return nil
}
