package dashboard

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kestrelhq/chorus/internal/protocol"
	"github.com/kestrelhq/chorus/internal/runstate"
)

var errBoom = errors.New("boom")

func stateWithSessions(t *testing.T) *runstate.State {
	t.Helper()
	state := runstate.New()
	envelopes := []protocol.Envelope{
		{Seq: 1, Type: protocol.EventProjectCreated, Ts: time.Now(), Payload: &protocol.ProjectCreatedPayload{
			ProjectName: "demo", Path: "/tmp/demo",
		}},
		{Seq: 2, Type: protocol.EventSessionCreated, Ts: time.Now(), Payload: &protocol.SessionCreatedPayload{
			ThreadID: "t1", ProjectName: "demo", Tool: protocol.ToolA,
		}},
		{Seq: 3, Type: protocol.EventJobEnqueued, Ts: time.Now(), Payload: &protocol.JobEnqueuedPayload{
			ThreadID: "t1", JobID: "j1", DiscordMessageID: "m1", Prompt: "hello", Tool: protocol.ToolA, Attempt: 1,
		}},
	}
	for _, env := range envelopes {
		if err := state.Apply(env); err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}
	return state
}

func TestSessionRowsReflectQueueDepth(t *testing.T) {
	state := stateWithSessions(t)
	rows := sessionRows(state)
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1", len(rows))
	}
	row := rows[0]
	if row[0] != "t1" || row[1] != "demo" || row[2] != "A" {
		t.Errorf("row = %v, want thread/project/tool t1/demo/A", row)
	}
	if row[3] != "1" {
		t.Errorf("queue depth = %q, want 1 (job enqueued but not yet started)", row[3])
	}
	if row[4] != "-" {
		t.Errorf("running job = %q, want '-' since nothing has started yet", row[4])
	}
}

func TestSessionRowsOnNilStateIsEmpty(t *testing.T) {
	if rows := sessionRows(nil); rows != nil {
		t.Errorf("sessionRows(nil) = %v, want nil", rows)
	}
}

func TestJobRowsShowsErrorPlaceholder(t *testing.T) {
	state := stateWithSessions(t)
	rows := jobRows(state)
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1", len(rows))
	}
	if rows[0][0] != "j1" || rows[0][2] != string(protocol.JobQueued) {
		t.Errorf("row = %v, want job j1 in queued state", rows[0])
	}
	if rows[0][4] != "-" {
		t.Errorf("error column = %q, want '-' for a job with no error", rows[0][4])
	}
}

func TestViewRendersSessionsAndJobsSections(t *testing.T) {
	m := New("/tmp/does-not-matter/events.ndjson")
	m.state = stateWithSessions(t)
	m.sessions.SetRows(sessionRows(m.state))
	m.jobs.SetRows(jobRows(m.state))

	out := m.View()
	if !strings.Contains(out, "Sessions") || !strings.Contains(out, "Recent jobs") {
		t.Errorf("View() = %q, want both section headers", out)
	}
}

func TestQuitKeyReturnsQuitCommand(t *testing.T) {
	m := New("/tmp/does-not-matter/events.ndjson")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected a non-nil command for the quit key")
	}
}

func TestTabSwitchesFocusBetweenTables(t *testing.T) {
	m := New("/tmp/does-not-matter/events.ndjson")
	if !m.sessions.Focused() {
		t.Fatal("sessions table should start focused")
	}
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	mm, ok := updated.(Model)
	if !ok {
		t.Fatalf("expected Model, got %T", updated)
	}
	if mm.sessions.Focused() {
		t.Error("sessions table should lose focus after tab")
	}
	if !mm.jobs.Focused() {
		t.Error("jobs table should gain focus after tab")
	}
}

func TestStateMsgWithErrorSetsLastErr(t *testing.T) {
	m := New("/tmp/does-not-matter/events.ndjson")
	updated, _ := m.Update(stateMsg{Err: errBoom})
	mm := updated.(Model)
	if mm.lastErr == nil {
		t.Fatal("expected lastErr to be set after a failed reload")
	}
	if !strings.Contains(mm.renderStatusBar(), "reload failed") {
		t.Errorf("status bar = %q, want it to mention the reload failure", mm.renderStatusBar())
	}
}
