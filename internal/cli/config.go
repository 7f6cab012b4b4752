package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kestrelhq/chorus/internal/config"
	"github.com/kestrelhq/chorus/internal/configwatch"
	"github.com/kestrelhq/chorus/internal/workspace"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and watch the project registry",
}

var configWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch chorus.json for edits and report validation results live",
	Args:  cobra.NoArgs,
	RunE:  runConfigWatch,
}

func init() {
	configCmd.AddCommand(configWatchCmd)
}

func runConfigWatch(cmd *cobra.Command, args []string) error {
	stateDir, err := stateDirFlag(cmd)
	if err != nil {
		return err
	}
	if ok, err := workspace.IsInitialized(stateDir); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("workspace %s is not initialized, run a command that writes to it first", stateDir)
	}

	out := cmd.OutOrStdout()
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))

	w, err := configwatch.New(workspace.ConfigPath(stateDir), logger, func(cfg *config.Config, err error) {
		if err != nil {
			fmt.Fprintf(out, "chorus.json reload failed: %v\n", err)
			return
		}
		fmt.Fprintf(out, "chorus.json reloaded: %d project(s)\n", len(cfg.Projects))
	})
	if err != nil {
		return fmt.Errorf("failed to start config watcher: %w", err)
	}
	defer w.Close()

	ctx := cmd.Context()
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(out, "watching %s, press ctrl-c to stop\n", workspace.ConfigPath(stateDir))
	<-sigCtx.Done()
	return nil
}
