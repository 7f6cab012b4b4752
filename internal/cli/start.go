package cli

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kestrelhq/chorus/internal/protocol"
	"github.com/kestrelhq/chorus/internal/scheduler"
)

var startCmd = &cobra.Command{
	Use:   "start <thread-id> <prompt>",
	Short: "Enqueue a prompt on a thread and run it to completion",
	Args:  cobra.ExactArgs(2),
	RunE:  runStart,
}

func init() {
	startCmd.Flags().String("message-id", "", "Idempotency key for this prompt (defaults to a generated id)")
}

func runStart(cmd *cobra.Command, args []string) error {
	stateDir, err := stateDirFlag(cmd)
	if err != nil {
		return err
	}
	e, err := openEngine(stateDir)
	if err != nil {
		return err
	}
	defer e.close()

	threadID, prompt := args[0], args[1]
	sess := e.state.Session(threadID)
	if sess == nil {
		return fmt.Errorf("thread %s has no open session; run 'chorusctl session open' first", threadID)
	}

	messageID, err := cmd.Flags().GetString("message-id")
	if err != nil {
		return err
	}
	if messageID == "" {
		messageID = uuid.NewString()
	}

	if existingJobID, dup := scheduler.CheckDedup(e.state, threadID, messageID); dup {
		fmt.Fprintf(cmd.OutOrStdout(), "message already enqueued as job %s\n", existingJobID)
		return nil
	}
	if err := scheduler.CheckBackpressure(e.state, threadID); err != nil {
		return err
	}

	jobID := uuid.NewString()
	if _, err := e.log.Append(protocol.EventJobEnqueued, &protocol.JobEnqueuedPayload{
		ThreadID:         threadID,
		JobID:            jobID,
		DiscordMessageID: messageID,
		Prompt:           prompt,
		Tool:             sess.Tool,
		Attempt:          1,
	}); err != nil {
		return err
	}

	coord := e.newCoordinator()
	coord.NotifyNewWork()
	if err := coord.WaitForIdle(context.Background()); err != nil {
		return fmt.Errorf("failed waiting for job %s to finish: %w", jobID, err)
	}

	job := e.state.Job(jobID)
	out := cmd.OutOrStdout()
	switch job.State {
	case protocol.JobSuccess:
		fmt.Fprintf(out, "job %s succeeded:\n%s\n", jobID, job.ResultExcerpt)
	case protocol.JobFailed:
		fmt.Fprintf(out, "job %s failed: %s (%s)\n", jobID, job.ErrorCode, job.ErrorMessage)
	default:
		fmt.Fprintf(out, "job %s ended in unexpected state %s\n", jobID, job.State)
	}
	return nil
}
