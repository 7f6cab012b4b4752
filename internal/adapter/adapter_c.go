package adapter

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/kestrelhq/chorus/internal/codes"
	"github.com/kestrelhq/chorus/internal/supervisor"
)

// AdapterC wraps tool C's "-p --output-format stream-json" CLI. Unlike A and
// B it auto-retries exactly once on a transient failure.
type AdapterC struct {
	Spawner supervisor.CommandSpawner
}

type adapterCLine struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	Delta     string `json:"delta"`
	Text      string `json:"text"`
	Content   string `json:"content"`
	Message   string `json:"message"`
	Response  string `json:"response"`
	Status    string `json:"status"`
}

func (a *AdapterC) argv(in Input) []string {
	argv := []string{"-p", in.Prompt, "--output-format", "stream-json"}
	if in.ResumeKey != "" {
		argv = append(argv, "--resume", in.ResumeKey)
	}
	return argv
}

// Run executes tool C, retrying exactly once if the first attempt fails
// with output that hints at a transient condition (quota, rate limiting).
func (a *AdapterC) Run(ctx context.Context, in Input) (*Result, error) {
	res, err := a.runOnce(ctx, in)
	if err != nil {
		return nil, err
	}
	if res.OK || !isTransientFailure(res) {
		return res, nil
	}
	return a.runOnce(ctx, in)
}

func isTransientFailure(res *Result) bool {
	if res.ErrorCode != string(codes.ECLIExitNonzero) {
		return false
	}
	combined := strings.ToLower(strings.Join(res.DiagnosticLogs, "\n") + "\n" +
		strings.Join(res.StdoutLines, "\n") + "\n" + strings.Join(res.StderrLines, "\n"))
	return containsTransientHint(combined)
}

// runOnce never propagates a spawn failure as a Go error — supervisor.Run
// failing to start the process at all is captured into the Result exactly
// like a nonzero exit, so the coordinator always sees a JobFailed-shaped
// outcome instead of an exception.
func (a *AdapterC) runOnce(ctx context.Context, in Input) (*Result, error) {
	res := &Result{AdapterState: map[string]any{}}

	onLine := func(stream, line string) {
		if stream != "stdout" || !looksLikeJSONObject(line) {
			if stream == "stdout" {
				res.DiagnosticLogs = append(res.DiagnosticLogs, line)
			}
			return
		}
		var parsed adapterCLine
		if err := json.Unmarshal([]byte(line), &parsed); err != nil {
			res.DiagnosticLogs = append(res.DiagnosticLogs, line)
			return
		}
		if parsed.Type == "message" && parsed.Role == "assistant" && in.OnProgress != nil {
			if text, ok := adapterCMessageText(parsed); ok {
				in.OnProgress(Progress{Type: "assistant_text", Text: text})
			}
		}
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
		res.ErrorMessage = "tool C timed out"
		return res, nil
	}

	var assistantChunks []string
	var sessionID string
	var sawResult bool
	var resultStatus string
	for _, line := range runRes.Stdout {
		if !looksLikeJSONObject(line) {
			continue
		}
		var parsed adapterCLine
		if err := json.Unmarshal([]byte(line), &parsed); err != nil {
			continue
		}
		switch parsed.Type {
		case "init":
			if parsed.SessionID != "" {
				sessionID = parsed.SessionID
			}
		case "message":
			if parsed.Role == "assistant" {
				if text, ok := adapterCMessageText(parsed); ok {
					assistantChunks = appendAssistantText(assistantChunks, text)
				}
			}
		case "result":
			if parsed.Status != "" {
				sawResult = true
				resultStatus = parsed.Status
			}
		}
	}

	if runRes.ExitErr != nil {
		res.ErrorCode = string(codes.ECLIExitNonzero)
		res.ErrorMessage = runRes.ExitErr.Error()
		return res, nil
	}

	if !sawResult {
		res.ErrorCode = string(codes.EAdapterMissingResult)
		res.ErrorMessage = "tool C produced no result event"
		return res, nil
	}
	if resultStatus != "success" {
		res.ErrorCode = string(codes.ECLIExitNonzero)
		res.ErrorMessage = "tool C result status: " + resultStatus
		return res, nil
	}

	res.OK = true
	res.AssistantText = joinChunks(assistantChunks)
	if sessionID != "" {
		res.AdapterState["session_id"] = sessionID
	}
	return res, nil
}

// adapterCMessageText extracts assistant text from a message line: the
// explicit delta field if present, otherwise a generic scan over the
// fields tool C has been observed to use for text content.
func adapterCMessageText(parsed adapterCLine) (string, bool) {
	if parsed.Delta != "" {
		return parsed.Delta, true
	}
	obj := map[string]any{
		"text":     parsed.Text,
		"content":  parsed.Content,
		"message":  parsed.Message,
		"response": parsed.Response,
		"delta":    parsed.Delta,
	}
	return genericTextExtract(obj, "text", "content", "message", "response", "delta")
}
