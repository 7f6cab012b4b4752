// Package coordinator implements the job-processing run loop (C5): it
// drains the scheduler's pick-next decisions, invokes the right tool
// adapter for each job, and records the outcome back through the event
// log. There is no separate daemon process — every chorus invocation that
// needs work done constructs a Coordinator, kicks it, and waits for idle.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/kestrelhq/chorus/internal/adapter"
	"github.com/kestrelhq/chorus/internal/codes"
	"github.com/kestrelhq/chorus/internal/config"
	"github.com/kestrelhq/chorus/internal/eventlog"
	"github.com/kestrelhq/chorus/internal/joblog"
	"github.com/kestrelhq/chorus/internal/protocol"
	"github.com/kestrelhq/chorus/internal/runstate"
	"github.com/kestrelhq/chorus/internal/scheduler"
	"github.com/kestrelhq/chorus/internal/supervisor"
)

// idlePollInterval is how often WaitForIdle checks for completion.
const idlePollInterval = 10 * time.Millisecond

// Hooks are callbacks fired as processJob moves through a job's lifecycle.
// Any of them may be nil.
type Hooks struct {
	OnJobStarted  func(threadID, jobID string)
	OnJobProgress func(threadID, jobID string, p adapter.Progress)
	OnJobFinished func(threadID, jobID string, state protocol.JobState)
}

// Coordinator owns the run loop: it is the only caller of the scheduler's
// PickNext and the only writer of JobStarted/JobCompleted/JobFailed events.
type Coordinator struct {
	log       *eventlog.EventLog
	state     *runstate.State
	scheduler *scheduler.Scheduler
	cfg       *config.Config
	spawner   supervisor.CommandSpawner
	stateDir  string
	logger    *slog.Logger

	mu      sync.Mutex
	kicking bool
	hooks   Hooks
}

// New builds a Coordinator over an already-open event log and its runtime
// state, a project registry, and a subprocess spawner. stateDir is the
// workspace root under which job logs are written.
func New(log *eventlog.EventLog, state *runstate.State, cfg *config.Config, spawner supervisor.CommandSpawner, stateDir string, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		log:       log,
		state:     state,
		scheduler: scheduler.New(),
		cfg:       cfg,
		spawner:   spawner,
		stateDir:  stateDir,
		logger:    logger,
	}
}

// SetHooks installs callbacks for job lifecycle events. Not safe to call
// concurrently with NotifyNewWork.
func (c *Coordinator) SetHooks(h Hooks) {
	c.hooks = h
}

// NotifyNewWork is the edge-triggered kick: it is always safe to call
// redundantly. If a kick is already draining the queue, this call is a
// no-op — the in-flight kick (and each job's completion) will pick up any
// work this call would have found.
func (c *Coordinator) NotifyNewWork() {
	c.mu.Lock()
	if c.kicking {
		c.mu.Unlock()
		return
	}
	c.kicking = true
	c.mu.Unlock()

	c.kick()
}

// kick admits as many runnable jobs as the global cap allows, spawning each
// as a background task, then returns — it never blocks on a job finishing.
func (c *Coordinator) kick() {
	for {
		threadID, jobID, ok := c.scheduler.PickNext(c.state)
		if !ok {
			break
		}
		c.scheduler.MarkRunning(jobID)
		go c.runJob(threadID, jobID)
	}

	c.mu.Lock()
	c.kicking = false
	c.mu.Unlock()
}

// runJob drives one job through processJob and, regardless of outcome,
// releases its slot and re-kicks so the next eligible job (in this thread
// or another) gets picked up. A processJob error is logged, never panicked.
func (c *Coordinator) runJob(threadID, jobID string) {
	defer func() {
		c.scheduler.MarkDone(jobID)
		c.NotifyNewWork()
	}()

	if err := c.processJob(threadID, jobID); err != nil {
		c.logger.Error("processJob failed", "thread_id", threadID, "job_id", jobID, "error", err)
	}
}

// WaitForIdle blocks until no job is running and every session's queue is
// empty, or ctx is canceled first.
func (c *Coordinator) WaitForIdle(ctx context.Context) error {
	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()

	for {
		if c.isIdle() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Coordinator) isIdle() bool {
	if c.scheduler.RunningCount() > 0 {
		return false
	}
	for _, sess := range c.state.Sessions() {
		if sess.RunningJobID != "" || len(sess.Queue) > 0 {
			return false
		}
	}
	return true
}

// processJob runs a single job from admission to completion, per the
// canonical event sequence: JobStarted, then exactly one of JobCompleted or
// JobFailed.
func (c *Coordinator) processJob(threadID, jobID string) error {
	if _, err := c.log.Append(protocol.EventJobStarted, &protocol.JobStartedPayload{
		ThreadID: threadID,
		JobID:    jobID,
	}); err != nil {
		return fmt.Errorf("failed to append JobStarted: %w", err)
	}
	if c.hooks.OnJobStarted != nil {
		c.hooks.OnJobStarted(threadID, jobID)
	}

	sess := c.state.Session(threadID)
	job := c.state.Job(jobID)
	if sess == nil || job == nil {
		return c.failJob(threadID, jobID, codes.EAdapterParse, "session or job missing immediately after JobStarted", nil)
	}

	project, ok := c.cfg.Projects[sess.ProjectName]
	if !ok {
		return c.failJob(threadID, jobID, codes.EProjectNotFound, fmt.Sprintf("project %q not found", sess.ProjectName), nil)
	}

	a, err := adapter.ForTool(job.Tool, c.spawner)
	if err != nil {
		return c.failJob(threadID, jobID, codes.EInvalidToolset, err.Error(), nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), supervisor.CLITimeout)
	defer cancel()

	result, err := a.Run(ctx, adapter.Input{
		Prompt:    job.Prompt,
		Cwd:       project.Path,
		ResumeKey: resumeKeyFor(job.Tool, sess.AdapterState),
		OnProgress: func(p adapter.Progress) {
			if _, err := c.log.Append(protocol.EventJobProgress, &protocol.JobProgressPayload{
				ThreadID: threadID,
				JobID:    jobID,
				Extra: map[string]any{
					"type":     p.Type,
					"text":     p.Text,
					"activity": string(p.Activity),
					"label":    p.Label,
				},
			}); err != nil {
				c.logger.Error("failed to append JobProgress", "job_id", jobID, "error", err)
			}
			if c.hooks.OnJobProgress != nil {
				c.hooks.OnJobProgress(threadID, jobID, p)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("adapter run failed: %w", err)
	}

	jobLogDir := filepath.Join(c.stateDir, "logs", "job")
	if _, err := joblog.Write(jobLogDir, jobID, result.StdoutLines, result.StderrLines, result.DiagnosticLogs); err != nil {
		c.logger.Error("failed to write job log", "job_id", jobID, "error", err)
	}

	if result.OK {
		return c.completeJob(threadID, jobID, result)
	}
	return c.failJob(threadID, jobID, codes.Code(result.ErrorCode), result.ErrorMessage, result.AdapterState)
}

const resultExcerptLimit = 400

func (c *Coordinator) completeJob(threadID, jobID string, result *adapter.Result) error {
	excerpt := result.AssistantText
	if len(excerpt) > resultExcerptLimit {
		excerpt = excerpt[:resultExcerptLimit]
	}

	_, err := c.log.Append(protocol.EventJobCompleted, &protocol.JobCompletedPayload{
		ThreadID:      threadID,
		JobID:         jobID,
		ResultExcerpt: excerpt,
		AdapterState:  result.AdapterState,
	})
	if c.hooks.OnJobFinished != nil {
		c.hooks.OnJobFinished(threadID, jobID, protocol.JobSuccess)
	}
	if err != nil {
		return fmt.Errorf("failed to append JobCompleted: %w", err)
	}
	return nil
}

func (c *Coordinator) failJob(threadID, jobID string, errorCode codes.Code, errorMessage string, adapterState map[string]any) error {
	_, err := c.log.Append(protocol.EventJobFailed, &protocol.JobFailedPayload{
		ThreadID:     threadID,
		JobID:        jobID,
		ErrorCode:    string(errorCode),
		ErrorMessage: errorMessage,
		AdapterState: adapterState,
	})
	if c.hooks.OnJobFinished != nil {
		c.hooks.OnJobFinished(threadID, jobID, protocol.JobFailed)
	}
	if err != nil {
		return fmt.Errorf("failed to append JobFailed: %w", err)
	}
	return nil
}

// resumeKeyFor extracts the tool-specific resume token from a session's
// adapter state: tool B keys its conversation by thread_id, tools A and C
// by session_id. A missing or non-string value means "start fresh".
func resumeKeyFor(tool protocol.Tool, adapterState map[string]any) string {
	field := "session_id"
	if tool == protocol.ToolB {
		field = "thread_id"
	}
	v, ok := adapterState[field]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
