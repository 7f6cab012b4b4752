// Package joblog writes and lists the per-job transcript files the
// coordinator produces at logs/job/<jobId>.log: every stdout, stderr, and
// diagnostic line from a tool invocation, each tagged with its source.
package joblog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Write creates (or overwrites, on retry) the job log at dir/<jobID>.log,
// prefixing every line with its source stream.
func Write(dir, jobID string, stdout, stderr, diagnostic []string) (string, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create job log directory: %w", err)
	}

	path := filepath.Join(dir, jobID+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return "", fmt.Errorf("failed to open job log %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, line := range stdout {
		fmt.Fprintf(w, "[stdout] %s\n", line)
	}
	for _, line := range stderr {
		fmt.Fprintf(w, "[stderr] %s\n", line)
	}
	for _, line := range diagnostic {
		fmt.Fprintf(w, "[diagnostic] %s\n", line)
	}
	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush job log: %w", err)
	}
	return path, nil
}

// Info describes one retained job log for listing purposes.
type Info struct {
	JobID     string
	Path      string
	Size      int64
	ModTime   time.Time
}

// ListLogs enumerates every job log under dir, most recently modified
// first.
func ListLogs(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read job log directory: %w", err)
	}

	var logs []Info
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat job log %s: %w", e.Name(), err)
		}
		logs = append(logs, Info{
			JobID:   strings.TrimSuffix(e.Name(), ".log"),
			Path:    filepath.Join(dir, e.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(logs, func(i, j int) bool {
		return logs[i].ModTime.After(logs[j].ModTime)
	})

	return logs, nil
}
