package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/kestrelhq/chorus/internal/config"
	"github.com/kestrelhq/chorus/internal/coordinator"
	"github.com/kestrelhq/chorus/internal/eventlog"
	"github.com/kestrelhq/chorus/internal/runstate"
	"github.com/kestrelhq/chorus/internal/supervisor"
	"github.com/kestrelhq/chorus/internal/workspace"
)

// engine bundles everything a subcommand needs to read or mutate one
// chorus workspace. Every invocation opens one, does its work, and closes
// it — there is no long-running daemon to hand a shared engine to.
type engine struct {
	stateDir string
	cfg      *config.Config
	log      *eventlog.EventLog
	state    *runstate.State
	logger   *slog.Logger
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// openEngine initializes stateDir if needed, loads (or bootstraps) its
// config, and opens its event log.
func openEngine(stateDir string) (*engine, error) {
	logger := newLogger()

	if err := workspace.Initialize(stateDir); err != nil {
		return nil, fmt.Errorf("failed to initialize workspace: %w", err)
	}

	cfgPath := workspace.ConfigPath(stateDir)
	cfg, err := config.LoadFromFile(cfgPath)
	if err != nil {
		if !os.IsNotExist(unwrapNotExist(err)) {
			return nil, err
		}
		cfg = config.GenerateDefault()
	}

	log, state, err := eventlog.Open(workspace.EventLogPath(stateDir), workspace.SnapshotPath(stateDir), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}

	return &engine{stateDir: stateDir, cfg: cfg, log: log, state: state, logger: logger}, nil
}

func unwrapNotExist(err error) error {
	type unwrapper interface{ Unwrap() error }
	for {
		u, ok := err.(unwrapper)
		if !ok {
			return err
		}
		err = u.Unwrap()
	}
}

// saveConfig persists the in-memory config back to chorus.json.
func (e *engine) saveConfig() error {
	return e.cfg.SaveToFile(workspace.ConfigPath(e.stateDir))
}

// close flushes a final snapshot and releases the event log's file handle.
func (e *engine) close() error {
	return e.log.Close()
}

// newCoordinator builds a Coordinator over this engine's state using a
// real subprocess spawner.
func (e *engine) newCoordinator() *coordinator.Coordinator {
	spawner := supervisor.ExecSpawner{Logger: e.logger}
	return coordinator.New(e.log, e.state, e.cfg, spawner, e.stateDir, e.logger)
}
