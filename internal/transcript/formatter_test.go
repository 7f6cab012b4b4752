package transcript

import (
	"strings"
	"testing"
	"time"

	"github.com/kestrelhq/chorus/internal/protocol"
)

func TestFormatEnvelopeJobEnqueued(t *testing.T) {
	f := NewFormatter()
	env := protocol.Envelope{
		Seq:  2,
		Ts:   time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		Type: protocol.EventJobEnqueued,
		Payload: &protocol.JobEnqueuedPayload{
			ThreadID: "t1",
			JobID:    "job-1",
			Prompt:   "fix the bug",
			Tool:     protocol.ToolA,
		},
	}

	line := f.FormatEnvelope(env)
	for _, want := range []string{"job-1", "t1", "fix the bug", "JobEnqueued"} {
		if !strings.Contains(line, want) {
			t.Errorf("FormatEnvelope() = %q, want it to contain %q", line, want)
		}
	}
}

func TestFormatEnvelopeJobFailedIncludesErrorCode(t *testing.T) {
	f := NewFormatter()
	env := protocol.Envelope{
		Seq:  4,
		Type: protocol.EventJobFailed,
		Payload: &protocol.JobFailedPayload{
			ThreadID:     "t1",
			JobID:        "job-1",
			ErrorCode:    "E_CLI_TIMEOUT",
			ErrorMessage: "process did not exit within 900s",
		},
	}

	line := f.FormatEnvelope(env)
	if !strings.Contains(line, "E_CLI_TIMEOUT") {
		t.Errorf("FormatEnvelope() = %q, want it to contain E_CLI_TIMEOUT", line)
	}
}

func TestFormatEnvelopeTruncatesLongPrompt(t *testing.T) {
	f := NewFormatter()
	longPrompt := strings.Repeat("x", 200)
	env := protocol.Envelope{
		Seq:  1,
		Type: protocol.EventJobEnqueued,
		Payload: &protocol.JobEnqueuedPayload{
			ThreadID: "t1",
			JobID:    "job-1",
			Prompt:   longPrompt,
		},
	}

	line := f.FormatEnvelope(env)
	if strings.Contains(line, longPrompt) {
		t.Error("FormatEnvelope() included the full untruncated prompt")
	}
	if !strings.Contains(line, "...") {
		t.Errorf("FormatEnvelope() = %q, want a truncation marker", line)
	}
}

func TestFormatEnvelopeUnknownPayloadStillFormats(t *testing.T) {
	f := NewFormatter()
	env := protocol.Envelope{Seq: 9, Type: protocol.EventProjectCreated, Payload: &protocol.ProjectCreatedPayload{ProjectName: "demo", Path: "/home/x/demo"}}

	line := f.FormatEnvelope(env)
	if !strings.Contains(line, "demo") {
		t.Errorf("FormatEnvelope() = %q, want it to mention the project name", line)
	}
}
