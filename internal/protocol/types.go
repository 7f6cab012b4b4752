// Package protocol defines the durable event envelope and the domain
// entities (projects, sessions, jobs) that the event log persists and the
// runtime state projects.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Tool identifies one of the three supported external coding assistants.
type Tool string

const (
	ToolA Tool = "A"
	ToolB Tool = "B"
	ToolC Tool = "C"
)

// Valid reports whether t is one of the known tools.
func (t Tool) Valid() bool {
	switch t {
	case ToolA, ToolB, ToolC:
		return true
	default:
		return false
	}
}

// JobState is a job's position in its one-way state machine.
type JobState string

const (
	JobQueued             JobState = "queued"
	JobRunning            JobState = "running"
	JobSuccess            JobState = "success"
	JobFailed             JobState = "failed"
	JobUnknownAfterCrash  JobState = "unknown_after_crash"
)

// EventType is the closed set of event types the log may contain.
type EventType string

const (
	EventProjectCreated              EventType = "ProjectCreated"
	EventSessionCreated              EventType = "SessionCreated"
	EventToolChanged                 EventType = "ToolChanged"
	EventJobEnqueued                 EventType = "JobEnqueued"
	EventJobStarted                  EventType = "JobStarted"
	EventJobProgress                 EventType = "JobProgress"
	EventJobCompleted                EventType = "JobCompleted"
	EventJobFailed                   EventType = "JobFailed"
	EventJobMarkedUnknownAfterCrash  EventType = "JobMarkedUnknownAfterCrash"
)

// Envelope is the on-disk unit of the event log: one JSON object per line.
type Envelope struct {
	Seq     int64     `json:"seq"`
	Ts      time.Time `json:"ts"`
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// UnmarshalJSON decodes Payload into its typed struct for Type instead of
// leaving it as a generic map[string]any, so state projection never has to
// re-decode payloads by hand.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var shadow struct {
		Seq     int64           `json:"seq"`
		Ts      time.Time       `json:"ts"`
		Type    EventType       `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &shadow); err != nil {
		return err
	}

	e.Seq = shadow.Seq
	e.Ts = shadow.Ts
	e.Type = shadow.Type

	payload, err := decodePayload(shadow.Type, shadow.Payload)
	if err != nil {
		return err
	}
	e.Payload = payload
	return nil
}

func decodePayload(t EventType, raw json.RawMessage) (any, error) {
	var target any
	switch t {
	case EventProjectCreated:
		target = &ProjectCreatedPayload{}
	case EventSessionCreated:
		target = &SessionCreatedPayload{}
	case EventToolChanged:
		target = &ToolChangedPayload{}
	case EventJobEnqueued:
		target = &JobEnqueuedPayload{}
	case EventJobStarted:
		target = &JobStartedPayload{}
	case EventJobProgress:
		target = &JobProgressPayload{}
	case EventJobCompleted:
		target = &JobCompletedPayload{}
	case EventJobFailed:
		target = &JobFailedPayload{}
	case EventJobMarkedUnknownAfterCrash:
		target = &JobMarkedUnknownAfterCrashPayload{}
	default:
		return nil, fmt.Errorf("unknown event type: %s", t)
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return nil, fmt.Errorf("decode payload for %s: %w", t, err)
	}
	return target, nil
}

// Payload types, one per EventType. Fields match §6 of the event taxonomy.

type ProjectCreatedPayload struct {
	ProjectName  string   `json:"project_name"`
	Path         string   `json:"path"`
	EnabledTools []string `json:"enabled_tools"`
}

type SessionCreatedPayload struct {
	ThreadID     string         `json:"thread_id"`
	ProjectName  string         `json:"project_name"`
	Tool         Tool           `json:"tool"`
	AdapterState map[string]any `json:"adapter_state"`
}

type ToolChangedPayload struct {
	ThreadID string `json:"thread_id"`
	Tool     Tool   `json:"tool"`
}

type JobEnqueuedPayload struct {
	ThreadID          string `json:"thread_id"`
	JobID             string `json:"job_id"`
	DiscordMessageID  string `json:"discord_message_id"`
	Prompt            string `json:"prompt"`
	Tool              Tool   `json:"tool"`
	Attempt           int    `json:"attempt"`
}

type JobStartedPayload struct {
	ThreadID string `json:"thread_id"`
	JobID    string `json:"job_id"`
}

type JobProgressPayload struct {
	ThreadID string         `json:"thread_id"`
	JobID    string         `json:"job_id"`
	Extra    map[string]any `json:"extra,omitempty"`
}

type JobCompletedPayload struct {
	ThreadID      string         `json:"thread_id"`
	JobID         string         `json:"job_id"`
	ResultExcerpt string         `json:"result_excerpt"`
	AdapterState  map[string]any `json:"adapter_state"`
}

type JobFailedPayload struct {
	ThreadID     string         `json:"thread_id"`
	JobID        string         `json:"job_id"`
	ErrorCode    string         `json:"error_code"`
	ErrorMessage string         `json:"error_message"`
	AdapterState map[string]any `json:"adapter_state,omitempty"`
}

type JobMarkedUnknownAfterCrashPayload struct {
	ThreadID string `json:"thread_id"`
	JobID    string `json:"job_id"`
}

// Session is a conversational context bound 1:1 to a chat thread.
type Session struct {
	ThreadID       string         `json:"thread_id"`
	ProjectName    string         `json:"project_name"`
	Tool           Tool           `json:"tool"`
	AdapterState   map[string]any `json:"adapter_state"`
	Queue          []string       `json:"queue"`
	RunningJobID   string         `json:"running_job_id,omitempty"`
	LastJobID      string         `json:"last_job_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	LastActivityAt time.Time      `json:"last_activity_at"`
}

// Job is one enqueued prompt plus its execution outcome.
type Job struct {
	JobID             string    `json:"job_id"`
	ThreadID          string    `json:"thread_id"`
	DiscordMessageID  string    `json:"discord_message_id"`
	State             JobState  `json:"state"`
	Prompt            string    `json:"prompt"`
	Tool              Tool      `json:"tool"`
	Attempt           int       `json:"attempt"`
	ErrorCode         string    `json:"error_code,omitempty"`
	ErrorMessage      string    `json:"error_message,omitempty"`
	StartedAt         time.Time `json:"started_at,omitempty"`
	FinishedAt        time.Time `json:"finished_at,omitempty"`
	ResultExcerpt     string    `json:"result_excerpt,omitempty"`
}

// Clone returns a deep copy of j so handed-out snapshots cannot be mutated
// by the caller.
func (j *Job) Clone() *Job {
	c := *j
	return &c
}

// Clone returns a deep copy of s, including its queue slice and adapter
// state map, so handed-out snapshots cannot be mutated by the caller.
func (s *Session) Clone() *Session {
	c := *s
	c.Queue = append([]string(nil), s.Queue...)
	c.AdapterState = make(map[string]any, len(s.AdapterState))
	for k, v := range s.AdapterState {
		c.AdapterState[k] = v
	}
	return &c
}
