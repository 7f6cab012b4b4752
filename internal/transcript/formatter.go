// Package transcript formats event-log envelopes for human-readable
// console display, used by the CLI's status and watch commands.
package transcript

import (
	"fmt"

	"github.com/kestrelhq/chorus/internal/protocol"
)

// Formatter renders envelopes as one-line console entries.
type Formatter struct{}

// NewFormatter creates a new transcript formatter.
func NewFormatter() *Formatter {
	return &Formatter{}
}

// FormatEnvelope formats one envelope for console display.
func (f *Formatter) FormatEnvelope(env protocol.Envelope) string {
	ts := env.Ts.Format("15:04:05")

	switch p := env.Payload.(type) {
	case *protocol.ProjectCreatedPayload:
		return fmt.Sprintf("%s seq=%d [%s] project %q registered at %s", ts, env.Seq, env.Type, p.ProjectName, p.Path)

	case *protocol.SessionCreatedPayload:
		return fmt.Sprintf("%s seq=%d [%s] thread %s bound to project %q (tool %s)", ts, env.Seq, env.Type, p.ThreadID, p.ProjectName, p.Tool)

	case *protocol.ToolChangedPayload:
		return fmt.Sprintf("%s seq=%d [%s] thread %s switched to tool %s", ts, env.Seq, env.Type, p.ThreadID, p.Tool)

	case *protocol.JobEnqueuedPayload:
		return fmt.Sprintf("%s seq=%d [%s] job %s queued on thread %s: %s", ts, env.Seq, env.Type, p.JobID, p.ThreadID, truncate(p.Prompt, 60))

	case *protocol.JobStartedPayload:
		return fmt.Sprintf("%s seq=%d [%s] job %s started on thread %s", ts, env.Seq, env.Type, p.JobID, p.ThreadID)

	case *protocol.JobProgressPayload:
		return fmt.Sprintf("%s seq=%d [%s] job %s progress on thread %s", ts, env.Seq, env.Type, p.JobID, p.ThreadID)

	case *protocol.JobCompletedPayload:
		return fmt.Sprintf("%s seq=%d [%s] job %s completed on thread %s: %s", ts, env.Seq, env.Type, p.JobID, p.ThreadID, truncate(p.ResultExcerpt, 80))

	case *protocol.JobFailedPayload:
		return fmt.Sprintf("%s seq=%d [%s] job %s failed on thread %s: %s (%s)", ts, env.Seq, env.Type, p.JobID, p.ThreadID, p.ErrorCode, p.ErrorMessage)

	case *protocol.JobMarkedUnknownAfterCrashPayload:
		return fmt.Sprintf("%s seq=%d [%s] job %s on thread %s marked unknown after crash", ts, env.Seq, env.Type, p.JobID, p.ThreadID)

	default:
		return fmt.Sprintf("%s seq=%d [%s]", ts, env.Seq, env.Type)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
