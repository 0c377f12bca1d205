package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/quantmind-br/apkaudit/internal/config"
	"github.com/quantmind-br/apkaudit/internal/device"
	"github.com/quantmind-br/apkaudit/internal/fsops"
	"github.com/quantmind-br/apkaudit/internal/ui"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// NewDoctorCmd creates the doctor command
func NewDoctorCmd(cfg *config.Config, log *zerolog.Logger, env *Env) *cobra.Command {
	var fix bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check tools, devices and directories",
		Long:  `Check that aapt2 and adb are available, list attached devices, and verify the data, log, database and scratch directories.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			ui.PrintHeader("System Diagnostics")
			fmt.Fprintln(ui.Stdout)

			var issues []string
			var warnings []string

			// 1. Required tools
			ui.PrintSubheader("Required Tools")
			aapt2 := toolName(cfg.Tools.Aapt2, "aapt2")
			adb := toolName(cfg.Tools.Adb, "adb")
			tools := []struct {
				command string
				purpose string
			}{
				{aapt2, "read APK manifests"},
				{adb, "query and update the device"},
			}

			adbFound := false
			for _, tool := range tools {
				if env.Runner.CommandExists(tool.command) {
					ui.PrintSuccess("%s: found", tool.command)
					if tool.command == adb {
						adbFound = true
					}
				} else {
					ui.PrintError("%s: NOT FOUND", tool.command)
					issues = append(issues, fmt.Sprintf("Missing required tool: %s (%s)", tool.command, tool.purpose))
				}
			}

			fmt.Fprintln(ui.Stdout)

			// 2. Devices
			ui.PrintSubheader("Devices")
			if adbFound {
				attached, err := device.ListDevices(ctx, env.Runner, adb)
				switch {
				case err != nil:
					ui.PrintError("adb devices: %v", err)
					issues = append(issues, fmt.Sprintf("Cannot list devices: %v", err))
				case len(attached) == 0:
					ui.PrintWarning("No device attached")
					warnings = append(warnings, "No device attached")
				default:
					for _, d := range attached {
						if d.Ready() {
							ui.PrintSuccess("%s: %s", d.Serial, d.State)
						} else {
							ui.PrintWarning("%s: %s", d.Serial, d.State)
							warnings = append(warnings, fmt.Sprintf("Device %s is %s", d.Serial, d.State))
						}
					}
				}
			} else {
				ui.PrintInfo("Skipped (adb not found)")
			}

			fmt.Fprintln(ui.Stdout)

			// 3. Directories
			ui.PrintSubheader("Directory Structure")
			dirs := []struct {
				path string
				name string
			}{
				{cfg.Paths.DataDir, "Data directory"},
				{filepath.Dir(cfg.Paths.DBFile), "Database directory"},
				{filepath.Dir(cfg.Paths.LogFile), "Log directory"},
				{os.TempDir(), "Scratch directory"},
			}

			for _, dir := range dirs {
				if dir.path == "" || dir.path == "." {
					continue
				}
				if err := fsops.CheckDir(env.Fs, dir.path, fix); err != nil {
					ui.PrintError("%s: %s (%v)", dir.name, dir.path, err)
					issues = append(issues, fmt.Sprintf("Directory not accessible: %s", dir.path))
				} else {
					ui.PrintSuccess("%s: %s", dir.name, dir.path)
				}
			}

			fmt.Fprintln(ui.Stdout)

			// 4. History database
			ui.PrintSubheader("Database")
			if cfg.Paths.DBFile == "" {
				ui.PrintInfo("History disabled (no db_file configured)")
			} else if history, err := openHistory(ctx, cfg); err != nil {
				ui.PrintError("Database: NOT ACCESSIBLE")
				issues = append(issues, fmt.Sprintf("Cannot open database: %v", err))
			} else {
				ui.PrintSuccess("Database: accessible (%s)", history.Path())
				runs, err := history.ListRuns(ctx, 0)
				if err != nil {
					ui.PrintWarning("Cannot list runs: %v", err)
					warnings = append(warnings, "Cannot list recorded runs")
				} else {
					ui.PrintInfo("Recorded runs: %d", len(runs))
				}
				history.Close()
			}

			fmt.Fprintln(ui.Stdout)

			// 5. Environment
			ui.PrintSubheader("Environment")
			checkEnvironment()

			// Summary
			ui.PrintHeader("Summary")
			fmt.Fprintln(ui.Stdout)

			if len(issues) == 0 {
				ui.PrintSuccess("All critical checks passed!")
			} else {
				ui.PrintError("Found %d issue(s):", len(issues))
				ui.PrintList(issues)
				fmt.Fprintln(ui.Stdout)
			}

			if len(warnings) > 0 {
				ui.PrintWarning("Found %d warning(s):", len(warnings))
				ui.PrintList(warnings)
			}

			log.Debug().Int("issues", len(issues)).Int("warnings", len(warnings)).Msg("doctor finished")

			if len(issues) > 0 {
				return fmt.Errorf("system check failed with %d issue(s)", len(issues))
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&fix, "fix", false, "create missing directories")

	return cmd
}

// checkEnvironment reports the variables adb and the Android SDK read
func checkEnvironment() {
	for _, name := range []string{"ANDROID_SERIAL", "ANDROID_HOME", "ANDROID_SDK_ROOT", "ADB_SERVER_SOCKET"} {
		if value := os.Getenv(name); value != "" {
			ui.PrintSuccess("%s: %s", name, value)
		} else {
			ui.PrintInfo("%s: not set", name)
		}
	}
}
