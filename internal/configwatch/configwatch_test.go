package configwatch

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kestrelhq/chorus/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile: %v", err)
	}
}

func waitForReload(t *testing.T, reloads chan error, timeout time.Duration) error {
	t.Helper()
	select {
	case err := <-reloads:
		return err
	case <-time.After(timeout):
		t.Fatal("timed out waiting for config reload")
		return nil
	}
}

func TestWatcherFiresOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chorus.json")
	writeConfig(t, path, config.GenerateDefault())

	reloads := make(chan error, 4)
	w, err := New(path, discardLogger(), func(cfg *config.Config, err error) {
		reloads <- err
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	updated := config.GenerateDefault()
	updated.OwnerID = "operator"
	writeConfig(t, path, updated)

	if err := waitForReload(t, reloads, 2*time.Second); err != nil {
		t.Fatalf("reload reported error: %v", err)
	}
}

func TestWatcherDebouncesBurst(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chorus.json")
	writeConfig(t, path, config.GenerateDefault())

	var fireCount int
	fired := make(chan struct{}, 16)
	w, err := New(path, discardLogger(), func(cfg *config.Config, err error) {
		fired <- struct{}{}
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	for i := 0; i < 5; i++ {
		writeConfig(t, path, config.GenerateDefault())
		time.Sleep(10 * time.Millisecond)
	}

	deadline := time.After(2 * time.Second)
drain:
	for {
		select {
		case <-fired:
			fireCount++
		case <-deadline:
			break drain
		case <-time.After(500 * time.Millisecond):
			break drain
		}
	}

	if fireCount == 0 {
		t.Fatal("expected at least one reload from a burst of writes")
	}
	if fireCount >= 5 {
		t.Errorf("expected debouncing to coalesce the burst, got %d separate reloads", fireCount)
	}
}

func TestWatcherReportsLoadErrorOnInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chorus.json")
	writeConfig(t, path, config.GenerateDefault())

	reloads := make(chan error, 4)
	w, err := New(path, discardLogger(), func(cfg *config.Config, err error) {
		reloads <- err
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("{not valid json"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := waitForReload(t, reloads, 2*time.Second); err == nil {
		t.Fatal("expected reload to report an error for invalid JSON")
	}
}

func TestNewFailsOnMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist", "chorus.json")
	if _, err := New(path, discardLogger(), nil); err == nil {
		t.Fatal("expected New to fail when the containing directory does not exist")
	}
}
