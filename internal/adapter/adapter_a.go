package adapter

import (
	"context"
	"encoding/json"
	"os"

	"github.com/kestrelhq/chorus/internal/codes"
	"github.com/kestrelhq/chorus/internal/supervisor"
)

// AdapterA wraps tool A's "-p --output-format stream-json" CLI.
type AdapterA struct {
	Spawner supervisor.CommandSpawner
}

type adapterAContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Name string `json:"name"`
}

type adapterALine struct {
	Type    string `json:"type"`
	Message struct {
		Content []adapterAContentBlock `json:"content"`
	} `json:"message"`
	Result    string `json:"result"`
	SessionID string `json:"session_id"`
}

func (a *AdapterA) argv(in Input) []string {
	argv := []string{"-p", "--dangerously-skip-permissions", "--verbose", "--output-format", "stream-json"}
	if in.ResumeKey != "" {
		argv = append(argv, "-r", in.ResumeKey)
	}
	return append(argv, in.Prompt)
}

// Run executes one invocation of tool A.
func (a *AdapterA) Run(ctx context.Context, in Input) (*Result, error) {
	res := &Result{AdapterState: map[string]any{}}

	onLine := func(stream, line string) {
		if stream != "stdout" || !looksLikeJSONObject(line) {
			if stream == "stdout" {
				res.DiagnosticLogs = append(res.DiagnosticLogs, line)
			}
			return
		}
		var parsed adapterALine
		if err := json.Unmarshal([]byte(line), &parsed); err != nil {
			res.DiagnosticLogs = append(res.DiagnosticLogs, line)
			return
		}
		emitAdapterAProgress(in.OnProgress, parsed)
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
		res.ErrorMessage = "tool A timed out"
		return res, nil
	}

	var assistantChunks []string
	var finalResult string
	var sessionID string
	for _, line := range runRes.Stdout {
		if !looksLikeJSONObject(line) {
			continue
		}
		var parsed adapterALine
		if err := json.Unmarshal([]byte(line), &parsed); err != nil {
			continue
		}
		if parsed.SessionID != "" {
			sessionID = parsed.SessionID
		}
		if parsed.Type == "assistant" {
			for _, block := range parsed.Message.Content {
				if block.Type == "text" {
					assistantChunks = appendAssistantText(assistantChunks, block.Text)
				}
			}
		}
		if parsed.Type == "result" && parsed.Result != "" {
			finalResult = parsed.Result
		}
	}

	if runRes.ExitErr != nil {
		res.ErrorCode = string(codes.ECLIExitNonzero)
		res.ErrorMessage = runRes.ExitErr.Error()
		return res, nil
	}

	if sessionID == "" {
		res.ErrorCode = string(codes.EAdapterSessionKeyMissing)
		res.ErrorMessage = "tool A produced no session_id"
		return res, nil
	}

	res.OK = true
	if finalResult != "" {
		res.AssistantText = finalResult
	} else {
		res.AssistantText = joinChunks(assistantChunks)
	}
	res.AdapterState["session_id"] = sessionID
	return res, nil
}

func emitAdapterAProgress(onProgress func(Progress), parsed adapterALine) {
	if onProgress == nil {
		return
	}
	switch parsed.Type {
	case "assistant":
		for _, block := range parsed.Message.Content {
			switch block.Type {
			case "text":
				onProgress(Progress{Type: "assistant_text", Text: block.Text})
			case "tool_use":
				label := block.Name
				if label == "" {
					label = "tool"
				}
				onProgress(Progress{Type: "activity", Activity: ActivityTool, Label: label})
			case "thinking":
				onProgress(Progress{Type: "activity", Activity: ActivityThinking, Label: "thinking"})
			}
		}
	}
}

func joinChunks(chunks []string) string {
	out := ""
	for _, c := range chunks {
		out += c
	}
	return out
}
