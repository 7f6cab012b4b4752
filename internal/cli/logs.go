package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kestrelhq/chorus/internal/joblog"
	"github.com/kestrelhq/chorus/internal/workspace"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "List retained per-job transcript logs",
	Args:  cobra.NoArgs,
	RunE:  runLogs,
}

func runLogs(cmd *cobra.Command, args []string) error {
	stateDir, err := stateDirFlag(cmd)
	if err != nil {
		return err
	}

	logs, err := joblog.ListLogs(workspace.JobLogDir(stateDir))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(logs) == 0 {
		fmt.Fprintln(out, "no job logs retained")
		return nil
	}
	for _, l := range logs {
		fmt.Fprintf(out, "%s\t%s\t%d bytes\t%s\n", l.JobID, l.Path, l.Size, l.ModTime.Format("2006-01-02T15:04:05Z07:00"))
	}
	return nil
}
