package ledger

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/kestrelhq/chorus/internal/ndjson"
	"github.com/kestrelhq/chorus/internal/protocol"
)

func writeEnvelopes(t *testing.T, path string, envs []protocol.Envelope) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	enc := ndjson.NewEncoder(f, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	for _, env := range envs {
		if err := enc.Encode(env); err != nil {
			t.Fatal(err)
		}
	}
}

func sampleEnvelopes() []protocol.Envelope {
	return []protocol.Envelope{
		{Seq: 1, Type: protocol.EventSessionCreated, Payload: &protocol.SessionCreatedPayload{ThreadID: "t1", ProjectName: "demo", Tool: protocol.ToolA}},
		{Seq: 2, Type: protocol.EventJobEnqueued, Payload: &protocol.JobEnqueuedPayload{ThreadID: "t1", JobID: "job-1", Prompt: "hi", Tool: protocol.ToolA}},
		{Seq: 3, Type: protocol.EventJobStarted, Payload: &protocol.JobStartedPayload{ThreadID: "t1", JobID: "job-1"}},
		{Seq: 4, Type: protocol.EventJobCompleted, Payload: &protocol.JobCompletedPayload{ThreadID: "t1", JobID: "job-1", ResultExcerpt: "done"}},
	}
}

func TestReadParsesEveryEnvelope(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.ndjson")
	writeEnvelopes(t, path, sampleEnvelopes())

	l, err := Read(path)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(l.Envelopes) != 4 {
		t.Fatalf("len(Envelopes) = %d, want 4", len(l.Envelopes))
	}
	if l.LastSeq() != 4 {
		t.Errorf("LastSeq() = %d, want 4", l.LastSeq())
	}
}

func TestForThreadFiltersByThreadID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.ndjson")
	envs := sampleEnvelopes()
	envs = append(envs, protocol.Envelope{Seq: 5, Type: protocol.EventSessionCreated, Payload: &protocol.SessionCreatedPayload{ThreadID: "t2", ProjectName: "demo", Tool: protocol.ToolB}})
	writeEnvelopes(t, path, envs)

	l, err := Read(path)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	forT1 := l.ForThread("t1")
	if len(forT1) != 4 {
		t.Errorf("ForThread(t1) = %d envelopes, want 4", len(forT1))
	}
	forT2 := l.ForThread("t2")
	if len(forT2) != 1 {
		t.Errorf("ForThread(t2) = %d envelopes, want 1", len(forT2))
	}
}

func TestForJobFiltersByJobID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.ndjson")
	writeEnvelopes(t, path, sampleEnvelopes())

	l, err := Read(path)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	forJob := l.ForJob("job-1")
	if len(forJob) != 3 {
		t.Errorf("ForJob(job-1) = %d envelopes, want 3 (enqueued/started/completed)", len(forJob))
	}
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing.ndjson"))
	if err == nil {
		t.Fatal("Read() error = nil, want error for missing file")
	}
}

func TestLastSeqOnEmptyLedger(t *testing.T) {
	l := &Ledger{}
	if got := l.LastSeq(); got != 0 {
		t.Errorf("LastSeq() = %d, want 0", got)
	}
}
