package cmd

import (
	"github.com/quantmind-br/apkaudit/internal/config"
	"github.com/quantmind-br/apkaudit/internal/core"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command
func NewRootCmd(cfg *config.Config, log *zerolog.Logger, version string) *cobra.Command {
	return NewRootCmdWithEnv(cfg, log, version, DefaultEnv())
}

// NewRootCmdWithEnv creates the root command with explicit collaborators
func NewRootCmdWithEnv(cfg *config.Config, log *zerolog.Logger, version string, env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apkaudit",
		Short: "Android baseline audit utility",
		Long: `Compare the APKs of a baseline bundle with what an Android device reports
over adb, and optionally bring the device back to the baseline.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return core.WithExitCode(core.ExitInvalidArgs, err)
	})

	// Add subcommands
	cmd.AddCommand(NewAuditCmd(cfg, log, env))
	cmd.AddCommand(NewHistoryCmd(cfg, log))
	cmd.AddCommand(NewDoctorCmd(cfg, log, env))
	cmd.AddCommand(NewCompletionCmd(cfg, log))
	cmd.AddCommand(NewVersionCmd(version))

	return cmd
}
