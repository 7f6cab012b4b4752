// Package runstate holds the engine's in-memory runtime-state projection
// (C2): sessions, jobs, and the dedup index, mutated only by replaying
// events. The mutation is pure — (prior state, event) -> next state — which
// is what makes replay equivalence (P2) hold.
package runstate

import (
	"fmt"
	"time"

	"github.com/kestrelhq/chorus/internal/protocol"
	"github.com/kestrelhq/chorus/internal/snapshot"
)

// State is the single in-memory structure described in spec §4.2: three
// maps plus the last-applied seq. No external mutator exists other than
// Apply; everything else is a read-only, deep-copied accessor.
type State struct {
	seq      int64
	sessions map[string]*protocol.Session
	jobs     map[string]*protocol.Job
	dedupe   map[string]string
}

// New returns an empty runtime state.
func New() *State {
	return &State{
		sessions: make(map[string]*protocol.Session),
		jobs:     make(map[string]*protocol.Job),
		dedupe:   make(map[string]string),
	}
}

// FromSnapshot rebuilds a runtime state from a loaded snapshot.
func FromSnapshot(s *snapshot.Snapshot) *State {
	st := New()
	st.seq = s.Seq
	for k, v := range s.Sessions {
		st.sessions[k] = v
	}
	for k, v := range s.Jobs {
		st.jobs[k] = v
	}
	for k, v := range s.Dedupe {
		st.dedupe[k] = v
	}
	return st
}

// Seq returns the sequence number of the last event applied.
func (s *State) Seq() int64 {
	return s.seq
}

// Session returns a deep-copied snapshot of the named session, or nil if it
// does not exist.
func (s *State) Session(threadID string) *protocol.Session {
	sess, ok := s.sessions[threadID]
	if !ok {
		return nil
	}
	return sess.Clone()
}

// Job returns a deep-copied snapshot of the named job, or nil if it does not
// exist.
func (s *State) Job(jobID string) *protocol.Job {
	j, ok := s.jobs[jobID]
	if !ok {
		return nil
	}
	return j.Clone()
}

// DedupJobID returns the job id already associated with a dedup key, if any.
func (s *State) DedupJobID(key string) (string, bool) {
	id, ok := s.dedupe[key]
	return id, ok
}

// Sessions returns a deep-copied map of all sessions, keyed by thread id.
func (s *State) Sessions() map[string]*protocol.Session {
	out := make(map[string]*protocol.Session, len(s.sessions))
	for k, v := range s.sessions {
		out[k] = v.Clone()
	}
	return out
}

// Jobs returns a deep-copied map of all jobs, keyed by job id.
func (s *State) Jobs() map[string]*protocol.Job {
	out := make(map[string]*protocol.Job, len(s.jobs))
	for k, v := range s.jobs {
		out[k] = v.Clone()
	}
	return out
}

// ToSnapshot captures the current projection as a durable snapshot.
func (s *State) ToSnapshot() (*snapshot.Snapshot, error) {
	dedupeCopy := make(map[string]string, len(s.dedupe))
	for k, v := range s.dedupe {
		dedupeCopy[k] = v
	}
	return snapshot.New(s.seq, s.Sessions(), s.Jobs(), dedupeCopy)
}

// Apply mutates state in response to a single event, per the canonical
// event->state table in spec §4.5. It is the only mutator of State and is
// never called concurrently by design (a single run-loop task owns it).
func (s *State) Apply(env protocol.Envelope) error {
	switch env.Type {
	case protocol.EventProjectCreated:
		// Informational only; project config lives in a separate durable
		// file (internal/config). This event is an audit trail.

	case protocol.EventSessionCreated:
		p := env.Payload.(*protocol.SessionCreatedPayload)
		adapterState := p.AdapterState
		if adapterState == nil {
			adapterState = make(map[string]any)
		}
		s.sessions[p.ThreadID] = &protocol.Session{
			ThreadID:       p.ThreadID,
			ProjectName:    p.ProjectName,
			Tool:           p.Tool,
			AdapterState:   adapterState,
			Queue:          []string{},
			CreatedAt:      env.Ts,
			UpdatedAt:      env.Ts,
			LastActivityAt: env.Ts,
		}

	case protocol.EventToolChanged:
		p := env.Payload.(*protocol.ToolChangedPayload)
		sess, ok := s.sessions[p.ThreadID]
		if !ok {
			return fmt.Errorf("ToolChanged: session %s not found", p.ThreadID)
		}
		sess.Tool = p.Tool
		sess.UpdatedAt = env.Ts

	case protocol.EventJobEnqueued:
		p := env.Payload.(*protocol.JobEnqueuedPayload)
		sess, ok := s.sessions[p.ThreadID]
		if !ok {
			return fmt.Errorf("JobEnqueued: session %s not found", p.ThreadID)
		}
		s.jobs[p.JobID] = &protocol.Job{
			JobID:            p.JobID,
			ThreadID:         p.ThreadID,
			DiscordMessageID: p.DiscordMessageID,
			State:            protocol.JobQueued,
			Prompt:           p.Prompt,
			Tool:             p.Tool,
			Attempt:          p.Attempt,
		}
		sess.Queue = append(sess.Queue, p.JobID)
		sess.LastActivityAt = env.Ts
		sess.UpdatedAt = env.Ts
		s.dedupe[p.ThreadID+":"+p.DiscordMessageID] = p.JobID

	case protocol.EventJobStarted:
		p := env.Payload.(*protocol.JobStartedPayload)
		job, ok := s.jobs[p.JobID]
		if !ok {
			return fmt.Errorf("JobStarted: job %s not found", p.JobID)
		}
		sess, ok := s.sessions[p.ThreadID]
		if !ok {
			return fmt.Errorf("JobStarted: session %s not found", p.ThreadID)
		}
		job.State = protocol.JobRunning
		job.StartedAt = env.Ts
		sess.RunningJobID = p.JobID
		sess.Queue = removeHead(sess.Queue, p.JobID)
		sess.UpdatedAt = env.Ts

	case protocol.EventJobProgress:
		// Informational only; may be elided from the log to keep it compact.

	case protocol.EventJobCompleted:
		p := env.Payload.(*protocol.JobCompletedPayload)
		if err := s.finishJob(p.ThreadID, p.JobID, protocol.JobSuccess, env.Ts, p.ResultExcerpt, "", "", p.AdapterState); err != nil {
			return err
		}

	case protocol.EventJobFailed:
		p := env.Payload.(*protocol.JobFailedPayload)
		if err := s.finishJob(p.ThreadID, p.JobID, protocol.JobFailed, env.Ts, "", p.ErrorCode, p.ErrorMessage, p.AdapterState); err != nil {
			return err
		}

	case protocol.EventJobMarkedUnknownAfterCrash:
		p := env.Payload.(*protocol.JobMarkedUnknownAfterCrashPayload)
		job, ok := s.jobs[p.JobID]
		if !ok {
			return fmt.Errorf("JobMarkedUnknownAfterCrash: job %s not found", p.JobID)
		}
		sess, ok := s.sessions[p.ThreadID]
		if !ok {
			return fmt.Errorf("JobMarkedUnknownAfterCrash: session %s not found", p.ThreadID)
		}
		job.State = protocol.JobUnknownAfterCrash
		sess.RunningJobID = ""
		sess.LastJobID = p.JobID
		sess.UpdatedAt = env.Ts

	default:
		return fmt.Errorf("apply: unknown event type %s", env.Type)
	}

	s.seq = env.Seq
	return nil
}

func (s *State) finishJob(threadID, jobID string, state protocol.JobState, ts time.Time, resultExcerpt, errorCode, errorMessage string, adapterState map[string]any) error {
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("finishJob: job %s not found", jobID)
	}
	sess, ok := s.sessions[threadID]
	if !ok {
		return fmt.Errorf("finishJob: session %s not found", threadID)
	}

	job.State = state
	job.FinishedAt = ts
	job.ResultExcerpt = resultExcerpt
	job.ErrorCode = errorCode
	job.ErrorMessage = errorMessage

	sess.RunningJobID = ""
	sess.LastJobID = jobID
	sess.UpdatedAt = ts

	if adapterState != nil {
		for k, v := range adapterState {
			sess.AdapterState[k] = v
		}
	}

	return nil
}

func removeHead(queue []string, jobID string) []string {
	if len(queue) > 0 && queue[0] == jobID {
		return queue[1:]
	}
	// Defensive: job wasn't at the head. Remove it wherever it is rather
	// than leaving a stale entry, but this should never happen in a valid
	// history (JobStarted always follows picking the session's head job).
	out := make([]string, 0, len(queue))
	for _, id := range queue {
		if id != jobID {
			out = append(out, id)
		}
	}
	return out
}
