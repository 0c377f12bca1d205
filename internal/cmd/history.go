package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/quantmind-br/apkaudit/internal/config"
	"github.com/quantmind-br/apkaudit/internal/core"
	"github.com/quantmind-br/apkaudit/internal/db"
	"github.com/quantmind-br/apkaudit/internal/report"
	"github.com/quantmind-br/apkaudit/internal/ui"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// NewHistoryCmd creates the history command
func NewHistoryCmd(cfg *config.Config, log *zerolog.Logger) *cobra.Command {
	var limit int
	var remove bool

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded audit runs",
		Long: `List recorded audit runs, newest first. With a run ID (or a unique prefix of
one) show that run's packages.`,
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: completeRunID(cfg),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if remove && len(args) == 0 {
				return core.WithExitCode(core.ExitInvalidArgs, errors.New("--delete needs a run id"))
			}

			history, err := openHistory(ctx, cfg)
			if err != nil {
				ui.PrintError("Cannot open history: %v", err)
				return core.WithExitCode(core.ExitDatabase, err)
			}
			defer history.Close()

			if len(args) == 0 {
				runs, err := history.ListRuns(ctx, limit)
				if err != nil {
					return core.WithExitCode(core.ExitDatabase, err)
				}
				if len(runs) == 0 {
					ui.PrintInfo("No audit runs recorded")
					return nil
				}
				return renderRuns(out, runs)
			}

			run, err := history.GetRun(ctx, args[0])
			if err != nil {
				ui.PrintError("%v", err)
				if errors.Is(err, db.ErrRunNotFound) || errors.Is(err, db.ErrAmbiguousRun) {
					return core.WithExitCode(core.ExitInvalidArgs, err)
				}
				return core.WithExitCode(core.ExitDatabase, err)
			}

			if remove {
				if err := history.DeleteRun(ctx, run.RunID); err != nil {
					return core.WithExitCode(core.ExitDatabase, err)
				}
				log.Info().Str("run_id", run.RunID).Msg("deleted audit run")
				ui.PrintSuccess("Deleted run %s", run.RunID)
				return nil
			}

			entries, err := history.Records(ctx, run.RunID)
			if err != nil {
				return core.WithExitCode(core.ExitDatabase, err)
			}

			printRun(run)
			fmt.Fprintln(out)
			return report.Render(out, entries, report.Options{})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to list (0 for all)")
	cmd.Flags().BoolVar(&remove, "delete", false, "delete the given run")

	return cmd
}

// openHistory opens the run database, creating its directory
func openHistory(ctx context.Context, cfg *config.Config) (*db.DB, error) {
	if cfg.Paths.DBFile == "" {
		return nil, errors.New("no database file configured")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Paths.DBFile), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	return db.New(ctx, cfg.Paths.DBFile)
}

func renderRuns(w io.Writer, runs []db.Run) error {
	header := []string{"Run", "Started", "Bundle", "Device", "Apps", "Mismatches", "Unknown", "Remediation"}

	table := tablewriter.NewTable(w,
		tablewriter.WithHeader(header),
		tablewriter.WithAlignment(tw.MakeAlign(len(header), tw.AlignLeft)),
		tablewriter.WithSymbols(tw.NewSymbols(tw.StyleLight)),
	)

	for _, run := range runs {
		row := []string{
			shortID(run.RunID),
			run.StartedAt.Local().Format("2006-01-02 15:04"),
			filepath.Base(run.Bundle),
			run.Serial,
			strconv.Itoa(run.Summary.Total),
			strconv.Itoa(run.Summary.Mismatches),
			strconv.Itoa(run.Summary.Unknown),
			remediationStatus(run),
		}
		if err := table.Append(row); err != nil {
			return fmt.Errorf("append row: %w", err)
		}
	}

	return table.Render()
}

func remediationStatus(run db.Run) string {
	switch {
	case !run.Applied:
		return "-"
	case run.FailedOps > 0:
		return fmt.Sprintf("applied (%d failed)", run.FailedOps)
	default:
		return "applied"
	}
}

func printRun(run *db.Run) {
	ui.PrintHeader("Audit run " + run.RunID)
	ui.PrintKeyValue("Bundle", run.Bundle)
	ui.PrintKeyValue("Device", run.Serial)
	ui.PrintKeyValue("Started", run.StartedAt.Local().Format("2006-01-02 15:04:05"))
	ui.PrintKeyValue("Skipped APKs", strconv.Itoa(run.Skipped))
	if run.FailedOps > 0 {
		ui.PrintKeyValueColor("Remediation", remediationStatus(*run), ui.Error)
	} else {
		ui.PrintKeyValue("Remediation", remediationStatus(*run))
	}
}
