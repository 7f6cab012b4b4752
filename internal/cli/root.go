// Package cli implements the chorusctl command-line surface. Every
// invocation opens the workspace's event log, performs one operation
// (synchronously running jobs to completion when that operation enqueues
// work), persists, and exits — there is no separate long-running daemon.
package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chorusctl",
	Short: "Operate a chorus single-operator code-agent orchestrator",
	Long: `chorusctl manages chorus workspaces: per-thread job queues that
dispatch prompts to one of three external coding-assistant CLIs and record
every state transition in a durable, replayable event log.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("state-dir", "s", ".chorus", "Path to the chorus state directory")

	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(toolCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dashboardCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func stateDirFlag(cmd *cobra.Command) (string, error) {
	return cmd.Flags().GetString("state-dir")
}
