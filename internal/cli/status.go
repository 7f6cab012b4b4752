package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kestrelhq/chorus/internal/protocol"
)

var statusCmd = &cobra.Command{
	Use:   "status [thread-id]",
	Short: "Show session and job status",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	stateDir, err := stateDirFlag(cmd)
	if err != nil {
		return err
	}
	e, err := openEngine(stateDir)
	if err != nil {
		return err
	}
	defer e.close()

	out := cmd.OutOrStdout()

	if len(args) == 1 {
		threadID := args[0]
		sess := e.state.Session(threadID)
		if sess == nil {
			return fmt.Errorf("thread %s has no session", threadID)
		}
		fmt.Fprintf(out, "thread:          %s\n", threadID)
		fmt.Fprintf(out, "project:         %s\n", sess.ProjectName)
		fmt.Fprintf(out, "tool:            %s\n", sess.Tool)
		fmt.Fprintf(out, "queued jobs:     %d\n", len(sess.Queue))
		fmt.Fprintf(out, "running job:     %s\n", orNone(sess.RunningJobID))
		fmt.Fprintf(out, "last job:        %s\n", orNone(sess.LastJobID))
		if sess.LastJobID != "" {
			if job := e.state.Job(sess.LastJobID); job != nil {
				fmt.Fprintf(out, "last job state:  %s\n", job.State)
				if hint := retryHint(job.State); hint != "" {
					fmt.Fprintf(out, "retry_hint:      %s\n", hint)
				}
			}
		}
		return nil
	}

	sessions := e.state.Sessions()
	if len(sessions) == 0 {
		fmt.Fprintln(out, "no open sessions")
		return nil
	}
	for threadID, sess := range sessions {
		retryHintSuffix := ""
		if sess.LastJobID != "" {
			if job := e.state.Job(sess.LastJobID); job != nil {
				if hint := retryHint(job.State); hint != "" {
					retryHintSuffix = "\tretry_hint=" + hint
				}
			}
		}
		fmt.Fprintf(out, "%s\tproject=%s\ttool=%s\tqueued=%d\trunning=%s%s\n",
			threadID, sess.ProjectName, sess.Tool, len(sess.Queue), orNone(sess.RunningJobID), retryHintSuffix)
	}
	return nil
}

// retryHint reports the chorusctl invocation that can re-enqueue a job
// left in a retryable state, or "" if the job's state is not retryable.
func retryHint(state protocol.JobState) string {
	if state != protocol.JobFailed && state != protocol.JobUnknownAfterCrash {
		return ""
	}
	return "chorusctl retry <job-id>"
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
