// Package config implements the watcher's two configuration surfaces:
// a mutable, atomically-written config.json (paused flag, agent caps,
// timeouts) and a static pipeline.toml (stage topology, role->model
// defaults) that operators hand-edit and the watcher only reads.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// Known keys in config.json. Any other key present on disk is pruned on
// load, matching spec.md §4.2 ("unknown keys are pruned on startup").
const (
	KeyPaused         = "paused"
	KeyMaxTotalAgents = "max_total_agents"
	KeyAgentTimeout   = "agent_timeout"
	KeyBaseBranch     = "base_branch"
	KeyUseTmuxWindows = "use_tmux_windows"
	KeyAgentProvider  = "agent_provider"
	KeyRoleModels     = "role_models"
)

// Defaults for keys absent from config.json.
const (
	DefaultMaxTotalAgents = 8
	DefaultAgentTimeout   = 3600
	DefaultAgentProvider  = "claude"
)

// raw is the on-disk shape of config.json.
type raw struct {
	Paused         *bool             `json:"paused,omitempty"`
	MaxTotalAgents *int              `json:"max_total_agents,omitempty"`
	AgentTimeout   *int              `json:"agent_timeout,omitempty"`
	BaseBranch     *string           `json:"base_branch,omitempty"`
	UseTmuxWindows *bool             `json:"use_tmux_windows,omitempty"`
	AgentProvider  *string           `json:"agent_provider,omitempty"`
	RoleModels     map[string]string `json:"role_models,omitempty"`
}

// Store is the process-local key/value config file described in
// spec.md §4.2. All reads go through an in-memory cache refreshed on
// Load; all writes go through atomic temp-file-and-rename.
type Store struct {
	mu   sync.RWMutex
	path string
	data raw
}

// New creates a Store bound to path. Call Load before first use; Load
// is tolerant of a missing file (treated as all-defaults).
func New(path string) *Store {
	return &Store{path: path}
}

// Load re-reads config.json from disk, pruning any unrecognized keys
// by virtue of unmarshaling into the fixed raw struct.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.data = raw{}
			return nil
		}
		return err
	}
	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	s.data = r
	return nil
}

// save persists the current in-memory state atomically. Caller must
// hold s.mu.
func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	return AtomicWriteJSON(s.path, s.data)
}

// Paused reports whether scanning/releasing is currently suspended.
func (s *Store) Paused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Paused != nil && *s.data.Paused
}

// SetPaused persists the paused flag.
func (s *Store) SetPaused(v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Paused = &v
	return s.save()
}

// MaxTotalAgents returns the configured fleet cap, or the default.
func (s *Store) MaxTotalAgents() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data.MaxTotalAgents != nil {
		return *s.data.MaxTotalAgents
	}
	return DefaultMaxTotalAgents
}

// AgentTimeoutSeconds returns the configured per-agent timeout, or the default.
func (s *Store) AgentTimeoutSeconds() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data.AgentTimeout != nil {
		return *s.data.AgentTimeout
	}
	return DefaultAgentTimeout
}

// BaseBranch returns the configured base branch, or "" if unset. Per
// spec.md §4.2, the core refuses non-investigator work until this is set.
func (s *Store) BaseBranch() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data.BaseBranch != nil {
		return *s.data.BaseBranch
	}
	return ""
}

// SetBaseBranch persists the base branch.
func (s *Store) SetBaseBranch(branch string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.BaseBranch = &branch
	return s.save()
}

// UseTmuxWindows reports whether agents should be rendered in tmux
// windows rather than run as detached background processes.
func (s *Store) UseTmuxWindows() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.UseTmuxWindows != nil && *s.data.UseTmuxWindows
}

// SetUseTmuxWindows persists the tmux-mode flag.
func (s *Store) SetUseTmuxWindows(v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.UseTmuxWindows = &v
	return s.save()
}

// AgentProvider returns the configured agent CLI name, or the default.
func (s *Store) AgentProvider() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data.AgentProvider != nil && *s.data.AgentProvider != "" {
		return *s.data.AgentProvider
	}
	return DefaultAgentProvider
}

// SetAgentProvider persists the agent CLI name.
func (s *Store) SetAgentProvider(provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.AgentProvider = &provider
	return s.save()
}

// ModelForRole returns the configured model override for a role, or ""
// if none is set (the agent CLI's own default then applies).
func (s *Store) ModelForRole(role string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.RoleModels[role]
}
