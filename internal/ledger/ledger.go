// Package ledger reads an event log back into memory for inspection
// tooling (CLI status/watch commands, debugging) without going through the
// runtime-state projection in internal/runstate.
package ledger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/kestrelhq/chorus/internal/ndjson"
	"github.com/kestrelhq/chorus/internal/protocol"
)

// Ledger is every envelope in an event log, in on-disk order.
type Ledger struct {
	Envelopes []protocol.Envelope
}

// Read parses every line of an events.ndjson file into a Ledger.
func Read(path string) (*Ledger, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	defer file.Close()

	decoder := ndjson.NewDecoder(file, slog.New(slog.NewTextHandler(io.Discard, nil)))
	l := &Ledger{}

	for {
		var env protocol.Envelope
		if err := decoder.Decode(&env); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("line %d: %w", decoder.LineNum(), err)
		}
		l.Envelopes = append(l.Envelopes, env)
	}

	return l, nil
}

// ForThread returns every envelope touching threadID, in log order. Events
// with no thread_id field in their payload (ProjectCreated) are never
// matched.
func (l *Ledger) ForThread(threadID string) []protocol.Envelope {
	var out []protocol.Envelope
	for _, env := range l.Envelopes {
		if tid, ok := threadIDOf(env); ok && tid == threadID {
			out = append(out, env)
		}
	}
	return out
}

// ForJob returns every envelope touching jobID, in log order.
func (l *Ledger) ForJob(jobID string) []protocol.Envelope {
	var out []protocol.Envelope
	for _, env := range l.Envelopes {
		if jid, ok := jobIDOf(env); ok && jid == jobID {
			out = append(out, env)
		}
	}
	return out
}

// LastSeq returns the sequence number of the last envelope, or 0 if the
// ledger is empty.
func (l *Ledger) LastSeq() int64 {
	if len(l.Envelopes) == 0 {
		return 0
	}
	return l.Envelopes[len(l.Envelopes)-1].Seq
}

func threadIDOf(env protocol.Envelope) (string, bool) {
	switch p := env.Payload.(type) {
	case *protocol.SessionCreatedPayload:
		return p.ThreadID, true
	case *protocol.ToolChangedPayload:
		return p.ThreadID, true
	case *protocol.JobEnqueuedPayload:
		return p.ThreadID, true
	case *protocol.JobStartedPayload:
		return p.ThreadID, true
	case *protocol.JobProgressPayload:
		return p.ThreadID, true
	case *protocol.JobCompletedPayload:
		return p.ThreadID, true
	case *protocol.JobFailedPayload:
		return p.ThreadID, true
	case *protocol.JobMarkedUnknownAfterCrashPayload:
		return p.ThreadID, true
	default:
		return "", false
	}
}

func jobIDOf(env protocol.Envelope) (string, bool) {
	switch p := env.Payload.(type) {
	case *protocol.JobEnqueuedPayload:
		return p.JobID, true
	case *protocol.JobStartedPayload:
		return p.JobID, true
	case *protocol.JobProgressPayload:
		return p.JobID, true
	case *protocol.JobCompletedPayload:
		return p.JobID, true
	case *protocol.JobFailedPayload:
		return p.JobID, true
	case *protocol.JobMarkedUnknownAfterCrashPayload:
		return p.JobID, true
	default:
		return "", false
	}
}
