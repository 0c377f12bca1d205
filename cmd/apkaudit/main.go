package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/quantmind-br/apkaudit/internal/cmd"
	"github.com/quantmind-br/apkaudit/internal/config"
	"github.com/quantmind-br/apkaudit/internal/core"
	"github.com/quantmind-br/apkaudit/internal/logging"
	"github.com/quantmind-br/apkaudit/internal/ui"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the command line and returns the process exit code
func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return core.ExitConfig
	}

	ui.InitColors(cfg.Logging.Color)

	log := logging.NewLogger(logging.Config{
		Level:        cfg.Logging.Level,
		ConsoleLevel: cfg.Logging.ConsoleLevel,
		LogFile:      cfg.Paths.LogFile,
		NoColor:      cfg.Logging.Color == ui.ColorNever,
	})

	rootCmd := cmd.NewRootCmd(cfg, log, version)
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		code := core.ExitCode(err)
		if ctx.Err() != nil {
			code = core.ExitInterrupted
		}
		log.Error().Err(err).Int("exit_code", code).Msg("command failed")
		return code
	}

	return core.ExitSuccess
}
