package runstate

import (
	"testing"
	"time"

	"github.com/kestrelhq/chorus/internal/protocol"
)

func mustApply(t *testing.T, s *State, env protocol.Envelope) {
	t.Helper()
	if err := s.Apply(env); err != nil {
		t.Fatalf("Apply(%s) error = %v", env.Type, err)
	}
}

func TestApplySessionAndJobLifecycle(t *testing.T) {
	s := New()
	now := time.Now().UTC()

	mustApply(t, s, protocol.Envelope{
		Seq: 1, Ts: now, Type: protocol.EventSessionCreated,
		Payload: &protocol.SessionCreatedPayload{ThreadID: "t1", ProjectName: "proj", Tool: protocol.ToolA},
	})

	sess := s.Session("t1")
	if sess == nil {
		t.Fatal("session t1 not found after SessionCreated")
	}
	if sess.Tool != protocol.ToolA {
		t.Errorf("tool = %v, want A", sess.Tool)
	}
	if len(sess.Queue) != 0 {
		t.Errorf("queue = %v, want empty", sess.Queue)
	}

	mustApply(t, s, protocol.Envelope{
		Seq: 2, Ts: now.Add(time.Second), Type: protocol.EventJobEnqueued,
		Payload: &protocol.JobEnqueuedPayload{ThreadID: "t1", JobID: "j1", DiscordMessageID: "m1", Prompt: "hi", Tool: protocol.ToolA, Attempt: 1},
	})

	job := s.Job("j1")
	if job == nil || job.State != protocol.JobQueued {
		t.Fatalf("job j1 = %v, want queued", job)
	}
	sess = s.Session("t1")
	if len(sess.Queue) != 1 || sess.Queue[0] != "j1" {
		t.Errorf("queue = %v, want [j1]", sess.Queue)
	}
	if id, ok := s.DedupJobID("t1:m1"); !ok || id != "j1" {
		t.Errorf("dedupe[t1:m1] = %v,%v want j1,true", id, ok)
	}

	mustApply(t, s, protocol.Envelope{
		Seq: 3, Ts: now.Add(2 * time.Second), Type: protocol.EventJobStarted,
		Payload: &protocol.JobStartedPayload{ThreadID: "t1", JobID: "j1"},
	})

	job = s.Job("j1")
	if job.State != protocol.JobRunning {
		t.Errorf("job state = %v, want running", job.State)
	}
	sess = s.Session("t1")
	if sess.RunningJobID != "j1" {
		t.Errorf("running_job_id = %v, want j1", sess.RunningJobID)
	}
	if len(sess.Queue) != 0 {
		t.Errorf("queue = %v, want empty after start", sess.Queue)
	}

	mustApply(t, s, protocol.Envelope{
		Seq: 4, Ts: now.Add(3 * time.Second), Type: protocol.EventJobCompleted,
		Payload: &protocol.JobCompletedPayload{ThreadID: "t1", JobID: "j1", ResultExcerpt: "done", AdapterState: map[string]any{"session_key": "abc"}},
	})

	job = s.Job("j1")
	if job.State != protocol.JobSuccess || job.ResultExcerpt != "done" {
		t.Errorf("job = %+v, want success/done", job)
	}
	sess = s.Session("t1")
	if sess.RunningJobID != "" {
		t.Errorf("running_job_id = %v, want empty", sess.RunningJobID)
	}
	if sess.LastJobID != "j1" {
		t.Errorf("last_job_id = %v, want j1", sess.LastJobID)
	}
	if sess.AdapterState["session_key"] != "abc" {
		t.Errorf("adapter_state[session_key] = %v, want abc", sess.AdapterState["session_key"])
	}

	if s.Seq() != 4 {
		t.Errorf("Seq() = %d, want 4", s.Seq())
	}
}

func TestApplyJobFailedMergesAdapterState(t *testing.T) {
	s := New()
	mustApply(t, s, protocol.Envelope{Seq: 1, Type: protocol.EventSessionCreated,
		Payload: &protocol.SessionCreatedPayload{ThreadID: "t1", Tool: protocol.ToolB}})
	mustApply(t, s, protocol.Envelope{Seq: 2, Type: protocol.EventJobEnqueued,
		Payload: &protocol.JobEnqueuedPayload{ThreadID: "t1", JobID: "j1", DiscordMessageID: "m1"}})
	mustApply(t, s, protocol.Envelope{Seq: 3, Type: protocol.EventJobStarted,
		Payload: &protocol.JobStartedPayload{ThreadID: "t1", JobID: "j1"}})
	mustApply(t, s, protocol.Envelope{Seq: 4, Type: protocol.EventJobFailed,
		Payload: &protocol.JobFailedPayload{ThreadID: "t1", JobID: "j1", ErrorCode: "E_CLI_TIMEOUT", ErrorMessage: "timed out"}})

	job := s.Job("j1")
	if job.State != protocol.JobFailed || job.ErrorCode != "E_CLI_TIMEOUT" {
		t.Errorf("job = %+v, want failed/E_CLI_TIMEOUT", job)
	}
}

func TestApplyJobMarkedUnknownAfterCrash(t *testing.T) {
	s := New()
	mustApply(t, s, protocol.Envelope{Seq: 1, Type: protocol.EventSessionCreated,
		Payload: &protocol.SessionCreatedPayload{ThreadID: "t1", Tool: protocol.ToolA}})
	mustApply(t, s, protocol.Envelope{Seq: 2, Type: protocol.EventJobEnqueued,
		Payload: &protocol.JobEnqueuedPayload{ThreadID: "t1", JobID: "j1", DiscordMessageID: "m1"}})
	mustApply(t, s, protocol.Envelope{Seq: 3, Type: protocol.EventJobStarted,
		Payload: &protocol.JobStartedPayload{ThreadID: "t1", JobID: "j1"}})
	mustApply(t, s, protocol.Envelope{Seq: 4, Type: protocol.EventJobMarkedUnknownAfterCrash,
		Payload: &protocol.JobMarkedUnknownAfterCrashPayload{ThreadID: "t1", JobID: "j1"}})

	job := s.Job("j1")
	if job.State != protocol.JobUnknownAfterCrash {
		t.Errorf("job state = %v, want unknown_after_crash", job.State)
	}
	sess := s.Session("t1")
	if sess.RunningJobID != "" {
		t.Errorf("running_job_id = %v, want empty", sess.RunningJobID)
	}
}

func TestSnapshotAccessorsAreDeepCopies(t *testing.T) {
	s := New()
	mustApply(t, s, protocol.Envelope{Seq: 1, Type: protocol.EventSessionCreated,
		Payload: &protocol.SessionCreatedPayload{ThreadID: "t1", Tool: protocol.ToolA}})
	mustApply(t, s, protocol.Envelope{Seq: 2, Type: protocol.EventJobEnqueued,
		Payload: &protocol.JobEnqueuedPayload{ThreadID: "t1", JobID: "j1", DiscordMessageID: "m1"}})

	sess := s.Session("t1")
	sess.Queue[0] = "tampered"
	sess.AdapterState["x"] = "y"

	fresh := s.Session("t1")
	if fresh.Queue[0] != "j1" {
		t.Errorf("internal queue mutated via handed-out snapshot: %v", fresh.Queue)
	}
	if _, ok := fresh.AdapterState["x"]; ok {
		t.Errorf("internal adapter_state mutated via handed-out snapshot")
	}
}

func TestApplyUnknownSessionReturnsError(t *testing.T) {
	s := New()
	err := s.Apply(protocol.Envelope{Seq: 1, Type: protocol.EventJobEnqueued,
		Payload: &protocol.JobEnqueuedPayload{ThreadID: "ghost", JobID: "j1"}})
	if err == nil {
		t.Fatal("expected error enqueuing into a nonexistent session, got nil")
	}
}

func TestReplayIsDeterministic(t *testing.T) {
	envs := []protocol.Envelope{
		{Seq: 1, Type: protocol.EventSessionCreated, Payload: &protocol.SessionCreatedPayload{ThreadID: "t1", Tool: protocol.ToolA}},
		{Seq: 2, Type: protocol.EventJobEnqueued, Payload: &protocol.JobEnqueuedPayload{ThreadID: "t1", JobID: "j1", DiscordMessageID: "m1"}},
		{Seq: 3, Type: protocol.EventJobStarted, Payload: &protocol.JobStartedPayload{ThreadID: "t1", JobID: "j1"}},
		{Seq: 4, Type: protocol.EventJobCompleted, Payload: &protocol.JobCompletedPayload{ThreadID: "t1", JobID: "j1", ResultExcerpt: "ok"}},
	}

	a := New()
	for _, e := range envs {
		mustApply(t, a, e)
	}

	b := New()
	for _, e := range envs {
		mustApply(t, b, e)
	}

	if a.Job("j1").State != b.Job("j1").State {
		t.Errorf("two independent replays of the same event stream diverged")
	}
}
