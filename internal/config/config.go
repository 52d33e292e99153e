// Package config holds the kernel-wide tunables a booted Kernel is
// parameterized by, loadable from a YAML file the way infra repos in
// the pack (cuemby-warren) configure long-running daemons.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kestrel-os/kcore/internal/constants"
)

// Config is the top-level kernel configuration.
type Config struct {
	// NumCPUs is the number of simulated per-CPU scheduler shards.
	NumCPUs int `yaml:"num_cpus"`

	// ZoneFrames lists the frame count of each memory zone, in priority
	// order (first zone is searched first by the frame allocator).
	ZoneFrames []uint32 `yaml:"zone_frames"`

	// PriorityLevels is the number of multi-level feedback queue levels.
	PriorityLevels int `yaml:"priority_levels"`

	// Quantum is the time slice granted at the top priority level.
	Quantum time.Duration `yaml:"quantum"`

	// PhoneTableLimit bounds the number of phones a task may hold.
	PhoneTableLimit int `yaml:"phone_table_limit"`

	// FibrilWorkers bounds the number of OS threads backing the fibril
	// runtime's manager pool (resolves the open question in spec §9).
	FibrilWorkers int64 `yaml:"fibril_workers"`

	// SessionCacheSize bounds per-session cached data phones.
	SessionCacheSize int `yaml:"session_cache_size"`
}

// DefaultConfig returns a single-zone, four-CPU configuration suitable
// for tests and examples.
func DefaultConfig() *Config {
	return &Config{
		NumCPUs:          4,
		ZoneFrames:       []uint32{1 << 15},
		PriorityLevels:   constants.NumPriorityLevels,
		Quantum:          constants.DefaultQuantum,
		PhoneTableLimit:  constants.DefaultPhoneTableLimit,
		FibrilWorkers:    constants.DefaultFibrilWorkers,
		SessionCacheSize: constants.DefaultSessionCacheSize,
	}
}

// Load reads a YAML config file and overlays it onto DefaultConfig.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for internally-inconsistent values.
func (c *Config) Validate() error {
	if c.NumCPUs <= 0 {
		return fmt.Errorf("config: num_cpus must be positive, got %d", c.NumCPUs)
	}
	if len(c.ZoneFrames) == 0 {
		return fmt.Errorf("config: at least one zone is required")
	}
	if c.PriorityLevels <= 0 {
		return fmt.Errorf("config: priority_levels must be positive, got %d", c.PriorityLevels)
	}
	if c.FibrilWorkers <= 0 {
		return fmt.Errorf("config: fibril_workers must be positive, got %d", c.FibrilWorkers)
	}
	return nil
}
