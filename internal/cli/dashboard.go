package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kestrelhq/chorus/internal/dashboard"
	"github.com/kestrelhq/chorus/internal/workspace"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Open a read-only live view of sessions and jobs",
	Args:  cobra.NoArgs,
	RunE:  runDashboard,
}

func runDashboard(cmd *cobra.Command, args []string) error {
	stateDir, err := stateDirFlag(cmd)
	if err != nil {
		return err
	}
	if ok, err := workspace.IsInitialized(stateDir); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("workspace %s is not initialized, run a command that writes to it first", stateDir)
	}

	return dashboard.Run(workspace.EventLogPath(stateDir), cmd.InOrStdin(), cmd.OutOrStdout())
}
