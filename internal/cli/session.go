package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kestrelhq/chorus/internal/config"
	"github.com/kestrelhq/chorus/internal/protocol"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage per-thread sessions",
}

var sessionOpenCmd = &cobra.Command{
	Use:   "open <thread-id>",
	Short: "Bind a thread to a project, creating its session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionOpen,
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List open sessions",
	Args:  cobra.NoArgs,
	RunE:  runSessionList,
}

func init() {
	sessionOpenCmd.Flags().String("project", "", "Project name to bind the thread to")
	sessionOpenCmd.Flags().String("tool", "", "Tool to use for this session (defaults to the project's default_tool)")
	_ = sessionOpenCmd.MarkFlagRequired("project")

	sessionCmd.AddCommand(sessionOpenCmd)
	sessionCmd.AddCommand(sessionListCmd)
}

func runSessionOpen(cmd *cobra.Command, args []string) error {
	stateDir, err := stateDirFlag(cmd)
	if err != nil {
		return err
	}
	e, err := openEngine(stateDir)
	if err != nil {
		return err
	}
	defer e.close()

	threadID := args[0]
	if e.state.Session(threadID) != nil {
		return fmt.Errorf("thread %s already has a session", threadID)
	}

	projectName, err := cmd.Flags().GetString("project")
	if err != nil {
		return err
	}
	project, ok := e.cfg.Projects[projectName]
	if !ok {
		return fmt.Errorf("project %q not found", projectName)
	}

	toolRaw, err := cmd.Flags().GetString("tool")
	if err != nil {
		return err
	}
	tool := project.DefaultTool
	if toolRaw != "" {
		tool = protocol.Tool(strings.ToUpper(toolRaw))
	}
	if !toolEnabled(project, tool) {
		return fmt.Errorf("tool %s is not enabled for project %q", tool, projectName)
	}

	if _, err := e.log.Append(protocol.EventSessionCreated, &protocol.SessionCreatedPayload{
		ThreadID:    threadID,
		ProjectName: projectName,
		Tool:        tool,
	}); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "thread %s bound to project %q (tool %s)\n", threadID, projectName, tool)
	return nil
}

func runSessionList(cmd *cobra.Command, args []string) error {
	stateDir, err := stateDirFlag(cmd)
	if err != nil {
		return err
	}
	e, err := openEngine(stateDir)
	if err != nil {
		return err
	}
	defer e.close()

	sessions := e.state.Sessions()
	if len(sessions) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no open sessions")
		return nil
	}
	for threadID, sess := range sessions {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\tproject=%s\ttool=%s\tqueued=%d\trunning=%s\n",
			threadID, sess.ProjectName, sess.Tool, len(sess.Queue), sess.RunningJobID)
	}
	return nil
}

func toolEnabled(p *config.ProjectConfig, tool protocol.Tool) bool {
	for _, t := range p.EnabledTools {
		if t == tool {
			return true
		}
	}
	return false
}
