package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/tsturo/debussy/internal/model"
)

// PipelineManifest is the static, hand-edited pipeline topology file
// (pipeline.toml). Unlike config.json, this file is never written by
// the watcher. The watcher reads only the [retry] limits (all but
// min_agent_runtime_seconds) and the [scanner] caps from it; the
// [pipeline] successor tables and [roles] models are not consulted —
// stage successors come from internal/model and per-role models from
// config.json.
type PipelineManifest struct {
	Version int `toml:"version"`

	Pipeline struct {
		Successors         map[string]string `toml:"successors"`
		SecuritySuccessors  map[string]string `toml:"security_successors"`
	} `toml:"pipeline"`

	Roles struct {
		Models map[string]string `toml:"models"`
	} `toml:"roles"`

	Retry struct {
		MaxRejections      int `toml:"max_rejections"`
		MaxRetries         int `toml:"max_retries"`
		MaxTotalSpawns     int `toml:"max_total_spawns"`
		RejectionCooldown  int `toml:"rejection_cooldown_seconds"`
		MinAgentRuntime    int `toml:"min_agent_runtime_seconds"`
	} `toml:"retry"`

	Scanner struct {
		MaxSpawnsPerCycle int `toml:"max_spawns_per_cycle"`
		MaxTotalAgents    int `toml:"max_total_agents"`
	} `toml:"scanner"`
}

// DefaultManifest returns the built-in topology described in spec.md §3,
// used whenever pipeline.toml is absent.
func DefaultManifest() *PipelineManifest {
	m := &PipelineManifest{Version: 1}
	m.Pipeline.Successors = map[string]string{
		string(model.StageDevelopment):    string(model.StageReviewing),
		string(model.StageReviewing):      string(model.StageMerging),
		string(model.StageSecurityReview): string(model.StageMerging),
	}
	m.Pipeline.SecuritySuccessors = map[string]string{
		string(model.StageReviewing): string(model.StageSecurityReview),
	}
	m.Retry.MaxRejections = 5
	m.Retry.MaxRetries = 3
	m.Retry.MaxTotalSpawns = 20
	m.Retry.RejectionCooldown = 60
	m.Retry.MinAgentRuntime = 30
	m.Scanner.MaxSpawnsPerCycle = 2
	m.Scanner.MaxTotalAgents = 8
	return m
}

// LoadPipelineManifest reads pipeline.toml from path, falling back to
// DefaultManifest if the file does not exist.
func LoadPipelineManifest(path string) (*PipelineManifest, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultManifest(), nil
	}

	m := DefaultManifest()
	if _, err := toml.DecodeFile(path, m); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return m, nil
}
