// Package snapshot persists compact point-in-time projections of the
// engine's runtime state, so startup replay only has to stream the event
// log tail rather than its entirety.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/kestrelhq/chorus/internal/checksum"
	"github.com/kestrelhq/chorus/internal/fsutil"
	"github.com/kestrelhq/chorus/internal/idempotency"
	"github.com/kestrelhq/chorus/internal/protocol"
)

// Version is the on-disk snapshot schema version.
const Version = 1

// Snapshot is the full runtime-state projection as of Seq, per §6:
// { version: 1, seq, sessions, jobs, dedupe }.
type Snapshot struct {
	SnapVersion int                        `json:"version"`
	Seq         int64                      `json:"seq"`
	Sessions    map[string]*protocol.Session `json:"sessions"`
	Jobs        map[string]*protocol.Job    `json:"jobs"`
	Dedupe      map[string]string          `json:"dedupe"`

	// ContentHash is the SHA256 of the canonical JSON of the fields above,
	// stored alongside them so a later load can detect a truncated or
	// corrupted snapshot write without trusting the file's mere presence.
	ContentHash string `json:"content_hash"`
}

// contentHash computes the snapshot's integrity hash over everything except
// the hash field itself.
func contentHash(s *Snapshot) (string, error) {
	bare := struct {
		SnapVersion int                          `json:"version"`
		Seq         int64                        `json:"seq"`
		Sessions    map[string]*protocol.Session `json:"sessions"`
		Jobs        map[string]*protocol.Job     `json:"jobs"`
		Dedupe      map[string]string            `json:"dedupe"`
	}{s.SnapVersion, s.Seq, s.Sessions, s.Jobs, s.Dedupe}

	canon, err := idempotency.CanonicalJSON(bare)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize snapshot: %w", err)
	}
	return checksum.SHA256Bytes(canon), nil
}

// New builds a Snapshot from a runtime-state projection, stamping its
// content hash.
func New(seq int64, sessions map[string]*protocol.Session, jobs map[string]*protocol.Job, dedupe map[string]string) (*Snapshot, error) {
	s := &Snapshot{
		SnapVersion: Version,
		Seq:         seq,
		Sessions:    sessions,
		Jobs:        jobs,
		Dedupe:      dedupe,
	}
	hash, err := contentHash(s)
	if err != nil {
		return nil, err
	}
	s.ContentHash = hash
	return s, nil
}

// Save writes the snapshot to path atomically: temp file, fsync, rename,
// fsync parent directory.
func Save(s *Snapshot, path string) error {
	return fsutil.AtomicWriteJSON(path, s)
}

// Load reads a snapshot from disk and verifies its content hash. A missing
// hash, or a hash that does not match the stored fields, is treated as an
// absent snapshot rather than a fatal error: the caller should fall back to
// a full replay from seq 0, since the event log remains authoritative.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	want, err := contentHash(&s)
	if err != nil {
		return nil, fmt.Errorf("failed to verify snapshot: %w", err)
	}
	if s.ContentHash == "" || s.ContentHash != want {
		return nil, nil
	}

	return &s, nil
}
