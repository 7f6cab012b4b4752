package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kestrelhq/chorus/internal/codes"
	"github.com/kestrelhq/chorus/internal/protocol"
)

var toolCmd = &cobra.Command{
	Use:   "tool <thread-id> <tool>",
	Short: "Switch a thread's tool (A, B, or C)",
	Args:  cobra.ExactArgs(2),
	RunE:  runTool,
}

func runTool(cmd *cobra.Command, args []string) error {
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
	newTool := protocol.Tool(strings.ToUpper(args[1]))
	if !newTool.Valid() {
		return fmt.Errorf("unknown tool %q", args[1])
	}

	sess := e.state.Session(threadID)
	if sess == nil {
		return fmt.Errorf("thread %s has no session", threadID)
	}

	project, ok := e.cfg.Projects[sess.ProjectName]
	if !ok {
		return fmt.Errorf("project %q not found", sess.ProjectName)
	}
	if !toolEnabled(project, newTool) {
		return codes.Newf(codes.EToolNotEnabled, "tool %s is not enabled for project %q", newTool, sess.ProjectName)
	}

	if _, err := e.log.Append(protocol.EventToolChanged, &protocol.ToolChangedPayload{
		ThreadID: threadID,
		Tool:     newTool,
	}); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "thread %s switched to tool %s\n", threadID, newTool)
	return nil
}
