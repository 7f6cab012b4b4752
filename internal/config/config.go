// Package config loads and validates chorus.json: the durable registry of
// projects the engine is allowed to run jobs against, independent of the
// event log.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/kestrelhq/chorus/internal/fsutil"
	"github.com/kestrelhq/chorus/internal/protocol"
)

// CurrentVersion is the config schema version this build writes and expects.
const CurrentVersion = 1

var projectNamePattern = regexp.MustCompile(`^[a-z0-9_-]{1,40}$`)

// fixedArgsByTool are the flags each adapter always passes itself. A
// project's default_args must not collide with these. The adapters in
// internal/adapter build argv without default_args, so this check only
// keeps the stored config free of the fixed flags.
var fixedArgsByTool = map[protocol.Tool][]string{
	protocol.ToolA: {"-p", "--dangerously-skip-permissions", "--verbose", "--output-format", "stream-json", "-r"},
	protocol.ToolB: {"exec", "--dangerously-bypass-approvals-and-sandbox", "--json", "resume"},
	protocol.ToolC: {"-p", "--output-format", "stream-json", "--resume"},
}

// Config is the top-level shape of chorus.json.
type Config struct {
	Version  int                       `json:"version"`
	OwnerID  string                    `json:"owner_id"`
	Projects map[string]*ProjectConfig `json:"projects"`
}

// ProjectConfig is the durable "Project" entity from the data model.
type ProjectConfig struct {
	Name         string                     `json:"name"`
	Path         string                     `json:"path"`
	EnabledTools []protocol.Tool            `json:"enabled_tools"`
	DefaultTool  protocol.Tool              `json:"default_tool"`
	DefaultArgs  map[protocol.Tool][]string `json:"default_args,omitempty"`
	CreatedAt    time.Time                  `json:"created_at"`
	UpdatedAt    time.Time                  `json:"updated_at"`
}

// GenerateDefault returns an empty configuration for a freshly initialized
// workspace: no projects registered yet, owner unset.
func GenerateDefault() *Config {
	return &Config{
		Version:  CurrentVersion,
		Projects: map[string]*ProjectConfig{},
	}
}

// LoadFromFile reads and parses chorus.json. A missing file is returned as
// a wrapped error — callers that want bootstrap semantics should check
// errors.Is(err, fs.ErrNotExist) and fall back to GenerateDefault.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if cfg.Projects == nil {
		cfg.Projects = map[string]*ProjectConfig{}
	}
	return &cfg, nil
}

// SaveToFile writes the configuration as indented JSON with owner-only
// permissions, atomically (temp file, fsync, rename).
func (c *Config) SaveToFile(path string) error {
	if err := fsutil.AtomicWriteJSON(path, c); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// Validate checks every project for internal consistency. It does not
// check for name collisions across processes, and no file lock is taken on
// chorus.json around a write.
func (c *Config) Validate() error {
	if c.Version == 0 {
		return fmt.Errorf("configuration error: missing required field 'version'\n\nHint: Add a version field like:\n  \"version\": %d", CurrentVersion)
	}

	for name, p := range c.Projects {
		if name != p.Name {
			return fmt.Errorf("configuration error: project key %q does not match its own name %q", name, p.Name)
		}
		if err := p.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// Validate checks a single project's fields, including that its
// default_args don't collide with an adapter's own fixed flags.
func (p *ProjectConfig) Validate() error {
	if !projectNamePattern.MatchString(p.Name) {
		return fmt.Errorf("configuration error: invalid project name %q\n\nHint: project names must match [a-z0-9_-]{1,40}", p.Name)
	}

	if p.Path == "" {
		return fmt.Errorf("configuration error: project %q has no 'path'\n\nHint: set an absolute filesystem path:\n  \"path\": \"/home/you/code/%s\"", p.Name, p.Name)
	}
	if info, err := os.Stat(p.Path); err != nil || !info.IsDir() {
		return fmt.Errorf("configuration error: project %q path %q does not exist or is not a directory", p.Name, p.Path)
	}

	if len(p.EnabledTools) == 0 {
		return fmt.Errorf("configuration error: project %q has no 'enabled_tools'\n\nHint: enable at least one of A, B, C:\n  \"enabled_tools\": [\"A\"]", p.Name)
	}
	enabled := make(map[protocol.Tool]bool, len(p.EnabledTools))
	for _, t := range p.EnabledTools {
		if !t.Valid() {
			return fmt.Errorf("configuration error: project %q enables unknown tool %q", p.Name, t)
		}
		enabled[t] = true
	}

	if p.DefaultTool == "" {
		return fmt.Errorf("configuration error: project %q has no 'default_tool'", p.Name)
	}
	if !enabled[p.DefaultTool] {
		return fmt.Errorf("configuration error: project %q default_tool %q is not in enabled_tools", p.Name, p.DefaultTool)
	}

	for tool, args := range p.DefaultArgs {
		if err := validateArgvTemplate(p.Name, tool, args); err != nil {
			return err
		}
	}

	return nil
}

// validateArgvTemplate rejects a project's default_args for tool if any
// entry collides with a flag the adapter always passes itself. default_args
// are stored and validated only; no adapter adds them to a tool's argv.
func validateArgvTemplate(projectName string, tool protocol.Tool, args []string) error {
	fixed, ok := fixedArgsByTool[tool]
	if !ok {
		return fmt.Errorf("configuration error: project %q sets default_args for unknown tool %q", projectName, tool)
	}
	fixedSet := make(map[string]bool, len(fixed))
	for _, f := range fixed {
		fixedSet[f] = true
	}
	for _, a := range args {
		if fixedSet[a] {
			return fmt.Errorf("configuration error: project %q default_args for tool %s set %q, which the adapter always passes itself\n\nHint: remove %q from default_args", projectName, tool, a, a)
		}
	}
	return nil
}
