package adapter

import (
	"context"
	"encoding/json"
	"os"
	"path"
	"strings"

	"github.com/kestrelhq/chorus/internal/codes"
	"github.com/kestrelhq/chorus/internal/supervisor"
)

// AdapterB wraps tool B's "exec --json" CLI, which wraps every event in an
// item.started/item.completed envelope.
type AdapterB struct {
	Spawner supervisor.CommandSpawner
}

type adapterBItem struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Text    string `json:"text"`
}

type adapterBLine struct {
	Type     string       `json:"type"`
	Item     adapterBItem `json:"item"`
	ThreadID string       `json:"thread_id"`
}

func (a *AdapterB) argv(in Input) []string {
	if in.ResumeKey != "" {
		return []string{"exec", "--dangerously-bypass-approvals-and-sandbox", "resume", in.ResumeKey, "--json", in.Prompt}
	}
	return []string{"exec", "--dangerously-bypass-approvals-and-sandbox", "--json", in.Prompt}
}

// Run executes one invocation of tool B.
func (a *AdapterB) Run(ctx context.Context, in Input) (*Result, error) {
	res := &Result{AdapterState: map[string]any{}}

	onLine := func(stream, line string) {
		if stream != "stdout" {
			return
		}
		if !looksLikeJSONObject(line) {
			res.DiagnosticLogs = append(res.DiagnosticLogs, line)
			return
		}
		var parsed adapterBLine
		if err := json.Unmarshal([]byte(line), &parsed); err != nil {
			res.DiagnosticLogs = append(res.DiagnosticLogs, line)
			return
		}
		emitAdapterBProgress(in.OnProgress, parsed)
	}

	runRes, err := supervisor.Run(ctx, a.Spawner, a.argv(in), in.Cwd, os.Environ(), onLine)
	if err != nil {
		ce := errExitNonzero(err)
		res.ErrorCode = string(ce.Code)
		res.ErrorMessage = ce.Message
		return res, nil
	}
	res.StdoutLines = runRes.Stdout
	res.StderrLines = runRes.Stderr

	if runRes.TimedOut {
		res.ErrorCode = string(codes.ECLITimeout)
		res.ErrorMessage = "tool B timed out"
		return res, nil
	}

	var assistantChunks []string
	var threadID string
	for _, line := range runRes.Stdout {
		if !looksLikeJSONObject(line) {
			continue
		}
		var parsed adapterBLine
		if err := json.Unmarshal([]byte(line), &parsed); err != nil {
			continue
		}
		if parsed.ThreadID != "" {
			threadID = parsed.ThreadID
		}
		if parsed.Item.Type == "agent_message" && parsed.Item.Text != "" {
			assistantChunks = appendAssistantText(assistantChunks, parsed.Item.Text)
		}
	}

	if runRes.ExitErr != nil {
		res.ErrorCode = string(codes.ECLIExitNonzero)
		res.ErrorMessage = runRes.ExitErr.Error()
		return res, nil
	}

	if threadID == "" {
		res.ErrorCode = string(codes.EAdapterSessionKeyMissing)
		res.ErrorMessage = "tool B produced no thread_id"
		return res, nil
	}

	res.OK = true
	res.AssistantText = joinChunks(assistantChunks)
	res.AdapterState["thread_id"] = threadID
	return res, nil
}

func emitAdapterBProgress(onProgress func(Progress), parsed adapterBLine) {
	if onProgress == nil {
		return
	}
	if parsed.Type != "item.started" && parsed.Type != "item.completed" {
		return
	}
	switch parsed.Item.Type {
	case "agent_message":
		if parsed.Item.Text != "" {
			onProgress(Progress{Type: "assistant_text", Text: parsed.Item.Text})
		}
	case "reasoning":
		onProgress(Progress{Type: "activity", Activity: ActivityThinking, Label: "reasoning"})
	case "command_execution":
		onProgress(Progress{Type: "activity", Activity: ActivityTool, Label: commandExecutionLabel(parsed.Item.Command)})
	}
}

func commandExecutionLabel(command string) string {
	if strings.Contains(command, "/bin/zsh") || strings.Contains(command, "/bin/bash") {
		return "bash"
	}
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "tool"
	}
	base := path.Base(fields[0])
	if base == "" {
		return "tool"
	}
	return base
}
