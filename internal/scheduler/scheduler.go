// Package scheduler implements the per-thread FIFO job queue (C3): each
// thread's jobs run strictly in arrival order, while the engine as a whole
// runs at most GlobalMaxRunning jobs concurrently across all threads.
package scheduler

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kestrelhq/chorus/internal/codes"
	"github.com/kestrelhq/chorus/internal/protocol"
)

// Tunables per the spec's concurrency model.
const (
	GlobalMaxRunning   = 2
	MaxQueuePerSession = 20
)

// View is the minimal slice of runtime state the scheduler needs to make a
// pick-next decision. It is satisfied by *runstate.State.
type View interface {
	Sessions() map[string]*protocol.Session
	Jobs() map[string]*protocol.Job
	DedupJobID(key string) (string, bool)
}

// Scheduler decides which queued job, if any, should start next. It holds no
// durable state of its own — everything it reasons about comes from the
// runtime-state projection handed to Pick, so its decisions are always
// derived from the same source of truth the event log produces.
type Scheduler struct {
	mu      sync.Mutex
	running map[string]struct{} // job ids currently executing
}

// New returns a scheduler with no jobs running.
func New() *Scheduler {
	return &Scheduler{running: make(map[string]struct{})}
}

// RunningCount reports how many jobs the scheduler currently considers
// in-flight, for enforcing the global concurrency cap.
func (s *Scheduler) RunningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// MarkRunning records that jobID has started, counting against the global
// cap until MarkDone is called.
func (s *Scheduler) MarkRunning(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[jobID] = struct{}{}
}

// MarkDone releases jobID's slot in the global cap.
func (s *Scheduler) MarkDone(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, jobID)
}

// CheckDedup reports the job id already enqueued for (threadID, messageID),
// if any. The scheduler's at-most-once guarantee rests entirely on this
// check happening before a new job is appended to the log.
func CheckDedup(view View, threadID, messageID string) (string, bool) {
	return view.DedupJobID(threadID + ":" + messageID)
}

// CheckBackpressure returns E_QUEUE_FULL if threadID's session already has
// MaxQueuePerSession jobs queued (not counting the one currently running).
func CheckBackpressure(view View, threadID string) error {
	sess, ok := view.Sessions()[threadID]
	if !ok {
		return codes.New(codes.ESessionNotFound, fmt.Sprintf("session %s not found", threadID))
	}
	if len(sess.Queue) >= MaxQueuePerSession {
		return codes.Newf(codes.EQueueFull, "session %s already has %d jobs queued", threadID, len(sess.Queue))
	}
	return nil
}

// candidate is a thread eligible to start its next job.
type candidate struct {
	threadID       string
	jobID          string
	lastActivityAt int64 // unix nanos, for deterministic ordering
}

// PickNext selects the next job to start, per the spec's deterministic
// policy: among threads with no job currently running and a non-empty
// queue, prefer the one whose session was least recently active, breaking
// ties lexicographically by thread id. It returns ("", "", false) if no
// thread is eligible or the global cap is already saturated.
func (s *Scheduler) PickNext(view View) (threadID, jobID string, ok bool) {
	if s.RunningCount() >= GlobalMaxRunning {
		return "", "", false
	}

	var candidates []candidate
	for tid, sess := range view.Sessions() {
		if sess.RunningJobID != "" || len(sess.Queue) == 0 {
			continue
		}
		// A job admitted via MarkRunning stays at the head of its queue until
		// its JobStarted event is applied; it is already running.
		s.mu.Lock()
		_, admitted := s.running[sess.Queue[0]]
		s.mu.Unlock()
		if admitted {
			continue
		}
		candidates = append(candidates, candidate{
			threadID:       tid,
			jobID:          sess.Queue[0],
			lastActivityAt: sess.LastActivityAt.UnixNano(),
		})
	}
	if len(candidates) == 0 {
		return "", "", false
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].lastActivityAt != candidates[j].lastActivityAt {
			return candidates[i].lastActivityAt < candidates[j].lastActivityAt
		}
		return candidates[i].threadID < candidates[j].threadID
	})

	chosen := candidates[0]
	return chosen.threadID, chosen.jobID, true
}
