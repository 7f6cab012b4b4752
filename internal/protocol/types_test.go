package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestEnvelopeSerialization(t *testing.T) {
	ts := time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC)

	env := Envelope{
		Seq:  7,
		Ts:   ts,
		Type: EventJobEnqueued,
		Payload: JobEnqueuedPayload{
			ThreadID:         "thread-1",
			JobID:            "job-7",
			DiscordMessageID: "msg-7",
			Prompt:           "fix the flaky test",
			Tool:             ToolA,
			Attempt:          1,
		},
	}

	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded struct {
		Seq     int64           `json:"seq"`
		Ts      time.Time       `json:"ts"`
		Type    EventType       `json:"type"`
		Payload JobEnqueuedPayload `json:"payload"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	want := JobEnqueuedPayload{
		ThreadID:         "thread-1",
		JobID:            "job-7",
		DiscordMessageID: "msg-7",
		Prompt:           "fix the flaky test",
		Tool:             ToolA,
		Attempt:          1,
	}
	if diff := cmp.Diff(want, decoded.Payload); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
	if decoded.Seq != 7 || decoded.Type != EventJobEnqueued {
		t.Errorf("envelope header mismatch: seq=%d type=%s", decoded.Seq, decoded.Type)
	}
}

func TestToolValid(t *testing.T) {
	for _, tool := range []Tool{ToolA, ToolB, ToolC} {
		if !tool.Valid() {
			t.Errorf("Tool(%q).Valid() = false, want true", tool)
		}
	}
	if Tool("D").Valid() {
		t.Error(`Tool("D").Valid() = true, want false`)
	}
}

func TestSessionCloneIsDeep(t *testing.T) {
	s := &Session{
		ThreadID:     "t1",
		AdapterState: map[string]any{"session_id": "abc"},
		Queue:        []string{"job-1", "job-2"},
	}

	clone := s.Clone()
	clone.Queue[0] = "mutated"
	clone.AdapterState["session_id"] = "mutated"

	if s.Queue[0] != "job-1" {
		t.Errorf("original queue mutated via clone: %v", s.Queue)
	}
	if s.AdapterState["session_id"] != "abc" {
		t.Errorf("original adapter state mutated via clone: %v", s.AdapterState)
	}
}

func TestJobClone(t *testing.T) {
	j := &Job{JobID: "job-1", State: JobQueued}
	clone := j.Clone()
	clone.State = JobRunning

	if j.State != JobQueued {
		t.Errorf("original job mutated via clone: %v", j.State)
	}
}
