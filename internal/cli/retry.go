package cli

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kestrelhq/chorus/internal/codes"
	"github.com/kestrelhq/chorus/internal/idempotency"
	"github.com/kestrelhq/chorus/internal/protocol"
	"github.com/kestrelhq/chorus/internal/scheduler"
)

var retryCmd = &cobra.Command{
	Use:   "retry <job-id>",
	Short: "Re-enqueue a failed or crash-interrupted job",
	Args:  cobra.ExactArgs(1),
	RunE:  runRetry,
}

func runRetry(cmd *cobra.Command, args []string) error {
	stateDir, err := stateDirFlag(cmd)
	if err != nil {
		return err
	}
	e, err := openEngine(stateDir)
	if err != nil {
		return err
	}
	defer e.close()

	jobID := args[0]
	job := e.state.Job(jobID)
	if job == nil {
		return fmt.Errorf("job %s not found", jobID)
	}
	if job.State != protocol.JobFailed && job.State != protocol.JobUnknownAfterCrash {
		return codes.Newf(codes.EJobNotRetryable, "job %s is in state %s, not failed or unknown_after_crash", jobID, job.State)
	}
	if err := scheduler.CheckBackpressure(e.state, job.ThreadID); err != nil {
		return err
	}

	newJobID := uuid.NewString()

	var adapterState map[string]any
	if sess := e.state.Session(job.ThreadID); sess != nil {
		adapterState = sess.AdapterState
	}
	fingerprint, err := idempotency.RetryFingerprint(string(job.Tool), job.Prompt, adapterState)
	if err != nil {
		return fmt.Errorf("failed to compute retry fingerprint: %w", err)
	}
	e.logger.Info("retrying job", "old_job_id", jobID, "new_job_id", newJobID, "retry_fingerprint", fingerprint)

	if _, err := e.log.Append(protocol.EventJobEnqueued, &protocol.JobEnqueuedPayload{
		ThreadID:         job.ThreadID,
		JobID:            newJobID,
		DiscordMessageID: fmt.Sprintf("retry:%s:%s", jobID, newJobID),
		Prompt:           job.Prompt,
		Tool:             job.Tool,
		Attempt:          job.Attempt + 1,
	}); err != nil {
		return err
	}

	coord := e.newCoordinator()
	coord.NotifyNewWork()
	if err := coord.WaitForIdle(context.Background()); err != nil {
		return fmt.Errorf("failed waiting for job %s to finish: %w", newJobID, err)
	}

	retried := e.state.Job(newJobID)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "job %s re-enqueued as %s (attempt %d)\n", jobID, newJobID, job.Attempt+1)
	switch retried.State {
	case protocol.JobSuccess:
		fmt.Fprintf(out, "job %s succeeded:\n%s\n", newJobID, retried.ResultExcerpt)
	case protocol.JobFailed:
		fmt.Fprintf(out, "job %s failed: %s (%s)\n", newJobID, retried.ErrorCode, retried.ErrorMessage)
	}
	return nil
}
