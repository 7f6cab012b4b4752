package scheduler

import (
	"testing"
	"time"

	"github.com/kestrelhq/chorus/internal/protocol"
)

type fakeView struct {
	sessions map[string]*protocol.Session
	dedupe   map[string]string
}

func (v fakeView) Sessions() map[string]*protocol.Session { return v.sessions }
func (v fakeView) Jobs() map[string]*protocol.Job          { return nil }
func (v fakeView) DedupJobID(key string) (string, bool) {
	id, ok := v.dedupe[key]
	return id, ok
}

func TestPickNextPrefersOldestLastActivity(t *testing.T) {
	now := time.Now()
	view := fakeView{sessions: map[string]*protocol.Session{
		"t1": {ThreadID: "t1", Queue: []string{"j1"}, LastActivityAt: now},
		"t2": {ThreadID: "t2", Queue: []string{"j2"}, LastActivityAt: now.Add(-time.Minute)},
	}}

	s := New()
	tid, jid, ok := s.PickNext(view)
	if !ok {
		t.Fatal("PickNext() = false, want a candidate")
	}
	if tid != "t2" || jid != "j2" {
		t.Errorf("PickNext() = (%s, %s), want (t2, j2) — least recently active thread", tid, jid)
	}
}

func TestPickNextTieBreaksLexicographically(t *testing.T) {
	now := time.Now()
	view := fakeView{sessions: map[string]*protocol.Session{
		"zeta":  {ThreadID: "zeta", Queue: []string{"j1"}, LastActivityAt: now},
		"alpha": {ThreadID: "alpha", Queue: []string{"j2"}, LastActivityAt: now},
	}}

	s := New()
	tid, _, ok := s.PickNext(view)
	if !ok {
		t.Fatal("PickNext() = false, want a candidate")
	}
	if tid != "alpha" {
		t.Errorf("PickNext() thread = %s, want alpha on a last-activity tie", tid)
	}
}

func TestPickNextSkipsThreadsAlreadyRunning(t *testing.T) {
	view := fakeView{sessions: map[string]*protocol.Session{
		"t1": {ThreadID: "t1", Queue: []string{"j1"}, RunningJobID: "j0"},
	}}

	s := New()
	_, _, ok := s.PickNext(view)
	if ok {
		t.Error("PickNext() picked a thread that already has a running job")
	}
}

func TestPickNextRespectsGlobalCap(t *testing.T) {
	view := fakeView{sessions: map[string]*protocol.Session{
		"t1": {ThreadID: "t1", Queue: []string{"j1"}},
		"t2": {ThreadID: "t2", Queue: []string{"j2"}},
		"t3": {ThreadID: "t3", Queue: []string{"j3"}},
	}}

	s := New()
	s.MarkRunning("running-a")
	s.MarkRunning("running-b")

	_, _, ok := s.PickNext(view)
	if ok {
		t.Error("PickNext() returned a candidate despite the global cap being saturated")
	}

	s.MarkDone("running-a")
	_, _, ok = s.PickNext(view)
	if !ok {
		t.Error("PickNext() found no candidate after a slot freed up")
	}
}

func TestCheckDedupFindsExistingJob(t *testing.T) {
	view := fakeView{dedupe: map[string]string{"t1:m1": "j1"}}

	id, ok := CheckDedup(view, "t1", "m1")
	if !ok || id != "j1" {
		t.Errorf("CheckDedup() = (%s, %v), want (j1, true)", id, ok)
	}

	_, ok = CheckDedup(view, "t1", "m2")
	if ok {
		t.Error("CheckDedup() found a match for an unseen message id")
	}
}

func TestCheckBackpressureAtLimit(t *testing.T) {
	queue := make([]string, MaxQueuePerSession)
	for i := range queue {
		queue[i] = "job"
	}
	view := fakeView{sessions: map[string]*protocol.Session{
		"t1": {ThreadID: "t1", Queue: queue},
	}}

	if err := CheckBackpressure(view, "t1"); err == nil {
		t.Error("CheckBackpressure() = nil, want E_QUEUE_FULL at the limit")
	}
}

func TestCheckBackpressureBelowLimit(t *testing.T) {
	view := fakeView{sessions: map[string]*protocol.Session{
		"t1": {ThreadID: "t1", Queue: []string{"j1"}},
	}}

	if err := CheckBackpressure(view, "t1"); err != nil {
		t.Errorf("CheckBackpressure() = %v, want nil below the limit", err)
	}
}
