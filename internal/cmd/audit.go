package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/quantmind-br/apkaudit/internal/audit"
	"github.com/quantmind-br/apkaudit/internal/config"
	"github.com/quantmind-br/apkaudit/internal/core"
	"github.com/quantmind-br/apkaudit/internal/db"
	"github.com/quantmind-br/apkaudit/internal/device"
	"github.com/quantmind-br/apkaudit/internal/executor"
	"github.com/quantmind-br/apkaudit/internal/export"
	"github.com/quantmind-br/apkaudit/internal/fsops"
	"github.com/quantmind-br/apkaudit/internal/logging"
	"github.com/quantmind-br/apkaudit/internal/manifest"
	"github.com/quantmind-br/apkaudit/internal/reconcile"
	"github.com/quantmind-br/apkaudit/internal/report"
	"github.com/quantmind-br/apkaudit/internal/security"
	"github.com/quantmind-br/apkaudit/internal/ui"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type auditFlags struct {
	update      bool
	yes         bool
	jsonOut     bool
	jsonFile    string
	configPath  string
	serial      string
	only        string
	workers     int
	showNames   bool
	noHistory   bool
	keepScratch bool
	noProgress  bool
}

// NewAuditCmd creates the audit command
func NewAuditCmd(cfg *config.Config, log *zerolog.Logger, env *Env) *cobra.Command {
	var flags auditFlags

	cmd := &cobra.Command{
		Use:   "audit <bundle>",
		Short: "Audit a device against a baseline bundle",
		Long: `Extract every APK of a baseline bundle (.zip, .tar, .tar.gz, .tar.xz), read
its package identity with aapt2 and compare it with what the device reports
through adb dumpsys.

Without -u the remediation commands are only printed. With -u they are run
after confirmation.`,
		Example: `  apkaudit audit baseline.zip
  apkaudit audit -c exclusions.json -j baseline.zip
  apkaudit audit -u --serial emulator-5554 baseline.tar.xz`,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.ExactArgs(1)(cmd, args); err != nil {
				return core.WithExitCode(core.ExitInvalidArgs, err)
			}
			return nil
		},
		ValidArgsFunction: completeBundle,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(cmd, cfg, log, env, args[0], flags)
		},
	}

	cmd.Flags().BoolVarP(&flags.update, "update", "u", false, "update mismatched apps to baseline")
	cmd.Flags().BoolVarP(&flags.yes, "yes", "y", false, "apply without asking for confirmation")
	cmd.Flags().BoolVarP(&flags.jsonOut, "json", "j", false, "write the audit to <bundle>.json")
	cmd.Flags().StringVar(&flags.jsonFile, "json-file", "", "write the audit to this JSON file")
	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "exclusion config file (excludePackages, appendVersionCodeToPackage)")
	cmd.Flags().StringVarP(&flags.serial, "serial", "s", "", "device serial (required when several devices are attached)")
	cmd.Flags().StringVar(&flags.only, "only", "", "audit only packages fuzzy-matching this name")
	cmd.Flags().IntVar(&flags.workers, "workers", 0, "concurrent package lookups (default from config)")
	cmd.Flags().BoolVar(&flags.showNames, "show-names", false, "always show the baseline version name column")
	cmd.Flags().BoolVar(&flags.noHistory, "no-history", false, "do not record the run in the history database")
	cmd.Flags().BoolVar(&flags.keepScratch, "keep-scratch", false, "keep the extracted APKs after the run")
	cmd.Flags().BoolVar(&flags.noProgress, "no-progress", false, "hide the progress bar")
	_ = cmd.RegisterFlagCompletionFunc("serial", completeSerial(cfg, env))
	_ = cmd.MarkFlagFilename("config", "json", "toml", "yaml", "yml")

	return cmd
}

func runAudit(cmd *cobra.Command, cfg *config.Config, log *zerolog.Logger, env *Env, bundlePath string, flags auditFlags) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	// Validate input
	if !fsops.Exists(env.Fs, bundlePath) {
		err := fmt.Errorf("bundle not found: %s", bundlePath)
		ui.PrintError("%v", err)
		return core.WithExitCode(core.ExitInvalidArgs, err)
	}
	if _, err := manifest.DetectFormat(bundlePath); err != nil {
		ui.PrintError("%v", err)
		return core.WithExitCode(core.ExitInvalidArgs, err)
	}
	if flags.serial != "" {
		if err := security.ValidateSerial(flags.serial); err != nil {
			ui.PrintError("%v", err)
			return core.WithExitCode(core.ExitInvalidArgs, err)
		}
	}

	runCfg := *cfg
	if flags.configPath != "" {
		bc, err := config.LoadBaselineConfig(flags.configPath)
		if err != nil {
			ui.PrintError("%v", err)
			return core.WithExitCode(core.ExitConfig, err)
		}
		runCfg.ApplyBaseline(bc)
		log.Debug().
			Str("config", flags.configPath).
			Strs("exclude", bc.ExcludePackages).
			Strs("version_qualified", bc.AppendVersionCodeToPackage).
			Msg("loaded baseline config")
	}

	aapt2 := toolName(runCfg.Tools.Aapt2, "aapt2")
	adb := toolName(runCfg.Tools.Adb, "adb")
	for _, tool := range []string{aapt2, adb} {
		if err := env.Runner.RequireCommand(tool); err != nil {
			ui.PrintError("%s must be in your search path and executable", tool)
			return core.WithExitCode(core.ExitCommandNotFound, err)
		}
	}

	// Pick the device once so every adb call targets the same one
	attached, err := device.ListDevices(ctx, env.Runner, adb)
	if err != nil {
		ui.PrintError("%v", err)
		return err
	}
	target, err := device.Select(attached, flags.serial)
	if err != nil {
		ui.PrintError("%v", err)
		if errors.Is(err, device.ErrMultipleDevices) {
			return core.WithExitCode(core.ExitInvalidArgs, err)
		}
		return err
	}
	serial := target.Serial
	runID := uuid.NewString()
	log = logging.ForRun(log, runID, serial, bundlePath)

	workers := flags.workers
	if workers < 1 {
		workers = runCfg.Audit.Workers
	}
	opts := core.AuditOptions{
		Serial:           serial,
		Workers:          workers,
		ExcludePackages:  runCfg.Audit.ExcludePackages,
		VersionQualified: runCfg.Audit.VersionQualifiedPackages,
		Only:             flags.only,
		KeepScratch:      flags.keepScratch,
	}

	ui.PrintInfo("Analyzing file: %s (device %s)", bundlePath, serial)

	timeout := runCfg.Tools.Timeout()
	bar := ui.NewProgressBar(cmd.ErrOrStderr(), -1, "Auditing", !flags.noProgress)
	runner := audit.NewRunner(env.Fs,
		manifest.NewReader(env.Runner, aapt2, timeout, log),
		device.NewReader(env.Runner, adb, log,
			device.WithSerial(serial),
			device.WithVersionQualified(opts.VersionQualified),
			device.WithTimeout(timeout),
		),
		bar,
		log,
	)

	startedAt := env.Now()
	result, err := runner.Run(ctx, bundlePath, opts)
	_ = bar.Finish()
	if err != nil {
		if ctx.Err() != nil {
			return core.WithExitCode(core.ExitInterrupted, ctx.Err())
		}
		ui.PrintError("Audit failed: %v", err)
		return fmt.Errorf("audit %s: %w", bundlePath, err)
	}
	defer func() {
		if opts.KeepScratch {
			ui.PrintInfo("Extracted APKs kept in %s", result.ScratchDir)
			return
		}
		if err := result.Cleanup(); err != nil {
			log.Warn().Err(err).Str("dir", result.ScratchDir).Msg("failed to remove scratch dir")
		}
	}()

	for _, s := range result.Skipped {
		ui.PrintWarning("Skipped %s: %v", s.Entry, s.Err)
	}

	fmt.Fprintln(out)
	if err := report.Render(out, result.Entries, report.Options{ShowNames: flags.showNames}); err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	if flags.jsonOut || flags.jsonFile != "" {
		jsonPath := flags.jsonFile
		if jsonPath == "" {
			jsonPath = export.DefaultPath(bundlePath)
		}
		if err := export.WriteJSON(env.Fs, jsonPath, result.Entries); err != nil {
			ui.PrintError("Failed to write %s: %v", jsonPath, err)
			return fmt.Errorf("export json: %w", err)
		}
		ui.PrintSuccess("Audit written to %s", jsonPath)
	}

	var history *db.DB
	if !flags.noHistory {
		history = recordRun(ctx, &runCfg, log, &db.Run{
			RunID:     runID,
			Bundle:    absPath(bundlePath),
			Serial:    serial,
			StartedAt: startedAt,
			Summary:   reconcile.Summarize(result.Entries),
			Skipped:   len(result.Skipped),
			Metadata: map[string]interface{}{
				"workers":           workers,
				"only":              flags.only,
				"exclude_packages":  opts.ExcludePackages,
				"version_qualified": opts.VersionQualified,
				"filtered":          result.Filtered,
			},
		}, result.Entries)
		if history != nil {
			defer history.Close()
		}
	}

	ops := reconcile.PlanEntries(result.Entries)
	if len(ops) == 0 {
		if !reconcile.HasMismatches(result.Entries) {
			ui.PrintSuccess("Device matches the baseline")
		}
		return nil
	}

	if !flags.update {
		ui.PrintHeader("Use the -u option to update this device to baseline. The following commands will be run:")
		return executor.Preview(out, ops)
	}

	if !flags.yes {
		ok, err := env.Confirm(fmt.Sprintf("Apply %d operation(s) to device %s", len(ops), serial))
		if err != nil {
			if errors.Is(err, ui.ErrCancelled) {
				return core.WithExitCode(core.ExitInterrupted, err)
			}
			return err
		}
		if !ok {
			ui.PrintInfo("Remediation cancelled")
			return nil
		}
	}

	ui.PrintHeader("Updating device to baseline:")
	exec := executor.New(env.Runner, adb, log,
		executor.WithSerial(serial),
		executor.WithTimeout(timeout),
		executor.WithObserver(func(o executor.Outcome) {
			printOutcome(out, o)
		}),
	)
	outcomes := exec.Apply(ctx, ops)
	failed := executor.Failures(outcomes)

	if history != nil {
		if err := history.MarkRemediation(ctx, runID, failed); err != nil {
			log.Warn().Err(err).Msg("failed to record remediation")
		}
	}

	if ctx.Err() != nil {
		return core.WithExitCode(core.ExitInterrupted, ctx.Err())
	}
	if failed > 0 {
		err := fmt.Errorf("%d of %d remediation operation(s) failed", failed, len(ops))
		ui.PrintError("%v", err)
		return core.WithExitCode(core.ExitRemediationFailed, err)
	}

	ui.PrintSuccess("Device updated to baseline")
	return nil
}

// recordRun stores the run. History is best effort: failures are logged and
// the audit goes on without it.
func recordRun(ctx context.Context, cfg *config.Config, log *zerolog.Logger, run *db.Run, entries []core.AuditEntry) *db.DB {
	if cfg.Paths.DBFile == "" {
		return nil
	}

	history, err := openHistory(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Msg("history unavailable")
		ui.PrintWarning("Run not recorded: %v", err)
		return nil
	}

	if err := history.CreateRun(ctx, run, entries); err != nil {
		history.Close()
		log.Warn().Err(err).Msg("failed to record run")
		ui.PrintWarning("Run not recorded: %v", err)
		return nil
	}

	log.Info().Int("packages", len(entries)).Msg("audit recorded")
	ui.PrintInfo("Run %s recorded", shortID(run.RunID))
	return history
}

func printOutcome(w io.Writer, o executor.Outcome) {
	fmt.Fprintln(w, o.Op.String())
	if output := strings.TrimSpace(o.Output); output != "" {
		fmt.Fprintln(w, output)
	}
	if o.Failed() {
		ui.PrintError("%s %s: %v", o.Op.Kind, o.Op.PackageName, o.Err)
	}
}

func toolName(configured, fallback string) string {
	if configured == "" {
		return fallback
	}
	return configured
}

func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
