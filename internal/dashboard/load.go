package dashboard

import (
	"fmt"

	"github.com/kestrelhq/chorus/internal/ledger"
	"github.com/kestrelhq/chorus/internal/runstate"
)

// loadState rebuilds a runstate.State by replaying the event log at path
// in memory, the same projection eventlog.Open performs on startup, but
// without taking the append-mode file handle or running crash recovery —
// the dashboard is a read-only observer and must never write to a
// workspace another chorusctl invocation may also have open.
func loadState(path string) (*runstate.State, error) {
	l, err := ledger.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read event log: %w", err)
	}
	state := runstate.New()
	for _, env := range l.Envelopes {
		if err := state.Apply(env); err != nil {
			return nil, fmt.Errorf("failed to apply seq %d: %w", env.Seq, err)
		}
	}
	return state, nil
}
