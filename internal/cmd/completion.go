package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/quantmind-br/apkaudit/internal/config"
	"github.com/quantmind-br/apkaudit/internal/device"
	"github.com/quantmind-br/apkaudit/internal/ui"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// NewCompletionCmd creates the completion command
func NewCompletionCmd(_ *config.Config, log *zerolog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for apkaudit.

To load completions:

Bash:
  $ source <(apkaudit completion bash)

  # To load completions for each session, execute once:
  $ apkaudit completion bash > /etc/bash_completion.d/apkaudit

Zsh:
  $ apkaudit completion zsh > "${fpath[1]}/_apkaudit"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ apkaudit completion fish | source

  # To load completions for each session, execute once:
  $ apkaudit completion fish > ~/.config/fish/completions/apkaudit.fish

PowerShell:
  PS> apkaudit completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			shell := args[0]
			out := cmd.OutOrStdout()

			var err error
			switch shell {
			case "bash":
				err = cmd.Root().GenBashCompletion(out)
			case "zsh":
				err = cmd.Root().GenZshCompletion(out)
			case "fish":
				err = cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				err = cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			if err != nil {
				ui.PrintError("Failed to generate %s completion: %v", shell, err)
				return err
			}

			log.Debug().Str("shell", shell).Msg("generated shell completion")
			return nil
		},
	}

	return cmd
}

// bundleExtensions limits bundle argument completion to supported archives
var bundleExtensions = []string{"zip", "tar", "gz", "tgz", "xz", "txz"}

func completeBundle(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return bundleExtensions, cobra.ShellCompDirectiveFilterFileExt
}

// completeSerial offers the serials adb currently reports, with their state
func completeSerial(cfg *config.Config, env *Env) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(cmd *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		devices, err := device.ListDevices(commandContext(cmd), env.Runner, toolName(cfg.Tools.Adb, "adb"))
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		out := make([]string, 0, len(devices))
		for _, d := range devices {
			out = append(out, d.Serial+"\t"+d.State)
		}
		return out, cobra.ShellCompDirectiveNoFileComp
	}
}

// completeRunID offers recorded run IDs, newest first
func completeRunID(cfg *config.Config) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(cmd *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 || cfg.Paths.DBFile == "" {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		ctx := commandContext(cmd)
		history, err := openHistory(ctx, cfg)
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		defer history.Close()

		runs, err := history.ListRuns(ctx, 50)
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		out := make([]string, 0, len(runs))
		for _, r := range runs {
			out = append(out, fmt.Sprintf("%s\t%s %s", r.RunID, r.StartedAt.Local().Format("2006-01-02 15:04"), filepath.Base(r.Bundle)))
		}
		return out, cobra.ShellCompDirectiveNoFileComp
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
