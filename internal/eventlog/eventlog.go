// Package eventlog implements the durable append-only event log (C1): every
// state-changing fact in the engine is appended here before it takes effect
// in memory, and the whole runtime state can be rebuilt by replaying it from
// scratch.
package eventlog

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kestrelhq/chorus/internal/ndjson"
	"github.com/kestrelhq/chorus/internal/protocol"
	"github.com/kestrelhq/chorus/internal/runstate"
	"github.com/kestrelhq/chorus/internal/snapshot"
)

// Tunables per the spec's concurrency/durability model.
const (
	SnapshotEveryEvents = 50
	SnapshotEveryWall   = 5 * time.Second
)

// EventLog appends events to an NDJSON file, fsyncing before the in-memory
// projection is updated, and periodically snapshots that projection so
// startup replay only has to stream the log's tail.
type EventLog struct {
	mu sync.Mutex

	file    *os.File
	encoder *ndjson.Encoder
	logger  *slog.Logger

	snapshotPath string
	state        *runstate.State

	nextSeq             int64
	eventsSinceSnapshot int
	lastSnapshotAt      time.Time
}

// Open replays logPath (from snapshotPath's checkpoint forward, if a valid
// snapshot exists) and returns an EventLog ready to accept new Append calls,
// along with the resulting runtime state. Any job still "running" after
// replay is transitioned to unknown_after_crash, since no process can have
// survived the restart that produced this call.
func Open(logPath, snapshotPath string, logger *slog.Logger) (*EventLog, *runstate.State, error) {
	dir := filepath.Dir(logPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, nil, fmt.Errorf("failed to create event log directory: %w", err)
	}

	snap, err := snapshot.Load(snapshotPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var state *runstate.State
	if snap != nil {
		state = runstate.FromSnapshot(snap)
	} else {
		state = runstate.New()
	}

	if err := replay(logPath, state, logger); err != nil {
		return nil, nil, fmt.Errorf("failed to replay event log: %w", err)
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open event log for append: %w", err)
	}

	el := &EventLog{
		file:           file,
		encoder:        ndjson.NewEncoder(file, logger),
		logger:         logger,
		snapshotPath:   snapshotPath,
		state:          state,
		nextSeq:        state.Seq() + 1,
		lastSnapshotAt: time.Now(),
	}

	if err := el.recoverCrashedJobs(); err != nil {
		return nil, nil, fmt.Errorf("failed to record crash recovery events: %w", err)
	}

	return el, state, nil
}

// replay streams every envelope in logPath and applies it to state in order,
// failing fast if the sequence is not exactly contiguous after the
// snapshot's checkpoint — a gap or duplicate means the log was corrupted or
// hand-edited, and continuing would silently produce a wrong projection.
func replay(logPath string, state *runstate.State, logger *slog.Logger) error {
	file, err := os.Open(logPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open event log for replay: %w", err)
	}
	defer file.Close()

	decoder := ndjson.NewDecoder(file, logger)
	baseSeq := state.Seq()
	expected := baseSeq + 1

	for {
		var env protocol.Envelope
		if err := decoder.Decode(&env); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("failed to decode event at line %d: %w", decoder.LineNum(), err)
		}
		if env.Seq <= baseSeq {
			// Already folded into the loaded snapshot; skip without
			// advancing `expected`.
			continue
		}
		if env.Seq != expected {
			return fmt.Errorf("sequence gap at line %d: expected seq %d, got %d", decoder.LineNum(), expected, env.Seq)
		}
		if err := state.Apply(env); err != nil {
			return fmt.Errorf("failed to apply event at seq %d: %w", env.Seq, err)
		}
		expected++
	}

	return nil
}

// recoverCrashedJobs finalizes any job left in the running state by the
// prior process, since its subprocess cannot have survived the restart. The
// transition goes through the normal Append path so it is durably recorded
// in the log itself, not just applied in memory — otherwise the next
// restart's replay would see a seq the log never actually wrote.
func (l *EventLog) recoverCrashedJobs() error {
	for jobID, job := range l.state.Jobs() {
		if job.State != protocol.JobRunning {
			continue
		}
		if _, err := l.Append(protocol.EventJobMarkedUnknownAfterCrash, &protocol.JobMarkedUnknownAfterCrashPayload{
			ThreadID: job.ThreadID,
			JobID:    jobID,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Append assigns the next sequence number to an event, fsyncs it to disk,
// and only then applies it to the in-memory projection — the durability
// barrier that makes the log authoritative over memory. It returns the
// envelope actually written, including its assigned seq and timestamp.
func (l *EventLog) Append(eventType protocol.EventType, payload any) (protocol.Envelope, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	env := protocol.Envelope{
		Seq:     l.nextSeq,
		Ts:      time.Now().UTC(),
		Type:    eventType,
		Payload: payload,
	}

	if err := l.encoder.Encode(env); err != nil {
		return protocol.Envelope{}, fmt.Errorf("failed to encode event: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return protocol.Envelope{}, fmt.Errorf("failed to fsync event log: %w", err)
	}

	if err := l.state.Apply(env); err != nil {
		return protocol.Envelope{}, fmt.Errorf("event committed to disk but failed to apply: %w", err)
	}

	l.nextSeq++
	l.eventsSinceSnapshot++

	if l.shouldSnapshotLocked() {
		if err := l.snapshotLocked(); err != nil {
			l.logger.Error("failed to write snapshot", "error", err)
		}
	}

	return env, nil
}

func (l *EventLog) shouldSnapshotLocked() bool {
	if l.eventsSinceSnapshot == 0 {
		return false
	}
	if l.eventsSinceSnapshot >= SnapshotEveryEvents {
		return true
	}
	return time.Since(l.lastSnapshotAt) >= SnapshotEveryWall
}

func (l *EventLog) snapshotLocked() error {
	snap, err := l.state.ToSnapshot()
	if err != nil {
		return fmt.Errorf("failed to build snapshot: %w", err)
	}
	if err := snapshot.Save(snap, l.snapshotPath); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	l.eventsSinceSnapshot = 0
	l.lastSnapshotAt = time.Now()
	return nil
}

// Snapshot forces an immediate snapshot write regardless of the usual
// trigger thresholds, for callers that want a checkpoint before shutting
// down cleanly.
func (l *EventLog) Snapshot() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

// Close flushes a final snapshot and closes the underlying file.
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.snapshotLocked(); err != nil {
		l.logger.Error("failed to write final snapshot on close", "error", err)
	}
	return l.file.Close()
}
