// Package adapter implements the three tool-adapter dialects (C4): each
// wraps a one-shot CLI subprocess, stream-parses its heterogeneous
// line-delimited JSON output, and normalizes the result into a common
// shape the coordinator can act on regardless of which tool produced it.
package adapter

import (
	"context"
	"strings"

	"github.com/kestrelhq/chorus/internal/codes"
	"github.com/kestrelhq/chorus/internal/protocol"
	"github.com/kestrelhq/chorus/internal/supervisor"
)

// Activity is an introspective signal surfaced while a tool is working.
type Activity string

const (
	ActivityThinking Activity = "thinking"
	ActivityTool     Activity = "tool"
)

// Progress is one unit of streaming feedback from a running adapter.
type Progress struct {
	Type     string // "assistant_text" or "activity"
	Text     string
	Activity Activity
	Label    string
}

// Input is what the coordinator hands an adapter to start a run.
type Input struct {
	Prompt     string
	Cwd        string
	ResumeKey  string
	OnProgress func(Progress)
}

// Result is the common outcome shape every adapter produces, regardless of
// the tool's own wire format.
type Result struct {
	OK            bool
	AssistantText string
	AdapterState  map[string]any
	DiagnosticLogs []string
	StdoutLines   []string
	StderrLines   []string
	ErrorCode     string
	ErrorMessage  string
}

// Adapter is the capability every tool dialect implements.
type Adapter interface {
	Run(ctx context.Context, in Input) (*Result, error)
}

// ForTool resolves the adapter responsible for tool, dispatching on the
// static tool -> adapter mapping.
func ForTool(tool protocol.Tool, spawner supervisor.CommandSpawner) (Adapter, error) {
	switch tool {
	case protocol.ToolA:
		return &AdapterA{Spawner: spawner}, nil
	case protocol.ToolB:
		return &AdapterB{Spawner: spawner}, nil
	case protocol.ToolC:
		return &AdapterC{Spawner: spawner}, nil
	default:
		return nil, codes.Newf(codes.EInvalidToolset, "unknown tool %q", tool)
	}
}

// looksLikeJSONObject is the heuristic shared by all three adapters: a
// trimmed line that opens and closes like a JSON object is attempted as
// one; everything else is a diagnostic line.
func looksLikeJSONObject(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")
}

// appendAssistantText appends chunk to text unless it exactly repeats the
// most recently appended chunk — several tools emit both a delta and a
// final consolidated block carrying the same text.
func appendAssistantText(chunks []string, chunk string) []string {
	if chunk == "" {
		return chunks
	}
	if len(chunks) > 0 && chunks[len(chunks)-1] == chunk {
		return chunks
	}
	return append(chunks, chunk)
}

// genericTextExtract pulls a text-like value out of a decoded JSON object by
// trying a fixed set of common field names in order, used by adapter C when
// no single canonical field is guaranteed present.
func genericTextExtract(obj map[string]any, fields ...string) (string, bool) {
	for _, f := range fields {
		if v, ok := obj[f]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// containsTransientHint reports whether text (already lowercased by the
// caller) mentions one of the transient-failure hints that justify a retry.
func containsTransientHint(lowered string) bool {
	hints := []string{"quota", "retry", "rate limit", "429", "temporarily unavailable"}
	for _, h := range hints {
		if strings.Contains(lowered, h) {
			return true
		}
	}
	return false
}

func errExitNonzero(err error) *codes.Error {
	return codes.Newf(codes.ECLIExitNonzero, "process exited with error: %v", err)
}
