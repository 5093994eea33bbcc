package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/ZerkerEOD/hashfleet/internal/version"
	"github.com/ZerkerEOD/hashfleet/pkg/debug"
)

// Tuning holds the scheduler and lifecycle behavior knobs. Values are
// durations in integral units so the TOML file stays obvious; accessor
// methods convert to time.Duration.
type Tuning struct {
	// Chunking
	ChunkDurationSeconds    int   `toml:"chunk_duration_seconds"`
	ChunkFluctuationPercent int   `toml:"chunk_fluctuation_percent"`
	ChunkMinKeyspace        int64 `toml:"chunk_min_keyspace"`
	ChunkMaxKeyspace        int64 `toml:"chunk_max_keyspace"`

	// Leasing
	LeaseDurationSeconds  int `toml:"lease_duration_seconds"`
	HeartbeatGraceSeconds int `toml:"heartbeat_grace_seconds"`
	SweepIntervalSeconds  int `toml:"sweep_interval_seconds"`

	// Retry and eligibility
	MaxTaskRetries        int    `toml:"max_task_retries"`
	BenchmarkMaxAgeHours  int    `toml:"benchmark_max_age_hours"`
	MinSpeedHighPriority  int64  `toml:"min_speed_high_priority"`
	HighPriorityThreshold int    `toml:"high_priority_threshold"`
	RequiredAgentVersion  string `toml:"required_agent_version"`

	// Housekeeping
	RetentionDays            int    `toml:"retention_days"`
	RetentionSchedule        string `toml:"retention_schedule"`
	ResourceHandleTTLSeconds int    `toml:"resource_handle_ttl_seconds"`
}

// DefaultTuning returns the compiled-in defaults
func DefaultTuning() *Tuning {
	return &Tuning{
		ChunkDurationSeconds:     600,
		ChunkFluctuationPercent:  20,
		ChunkMinKeyspace:         1000,
		ChunkMaxKeyspace:         0, // no cap
		LeaseDurationSeconds:     900,
		HeartbeatGraceSeconds:    120,
		SweepIntervalSeconds:     60,
		MaxTaskRetries:           3,
		BenchmarkMaxAgeHours:     168,
		MinSpeedHighPriority:     0, // disabled
		HighPriorityThreshold:    10,
		RequiredAgentVersion:     "default",
		RetentionDays:            90,
		RetentionSchedule:        "0 3 * * *",
		ResourceHandleTTLSeconds: 900,
	}
}

// LoadTuning reads the tuning file over the defaults. An empty path returns
// the defaults unchanged.
func LoadTuning(path string) (*Tuning, error) {
	tuning := DefaultTuning()
	if path == "" {
		return tuning, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tuning file %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, tuning); err != nil {
		return nil, fmt.Errorf("failed to decode tuning file %s: %w", path, err)
	}

	if err := tuning.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tuning file %s: %w", path, err)
	}

	debug.Info("Loaded tuning overrides from %s", path)
	return tuning, nil
}

// Validate rejects values the scheduler cannot operate with
func (t *Tuning) Validate() error {
	if t.ChunkDurationSeconds <= 0 {
		return fmt.Errorf("chunk_duration_seconds must be positive")
	}
	if t.ChunkFluctuationPercent < 0 || t.ChunkFluctuationPercent > 100 {
		return fmt.Errorf("chunk_fluctuation_percent must be in [0, 100]")
	}
	if t.LeaseDurationSeconds <= 0 {
		return fmt.Errorf("lease_duration_seconds must be positive")
	}
	if t.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("sweep_interval_seconds must be positive")
	}
	if t.MaxTaskRetries < 0 {
		return fmt.Errorf("max_task_retries must not be negative")
	}
	if t.ChunkMaxKeyspace > 0 && t.ChunkMaxKeyspace < t.ChunkMinKeyspace {
		return fmt.Errorf("chunk_max_keyspace must not be below chunk_min_keyspace")
	}
	if t.RequiredAgentVersion != "" {
		if _, err := version.ParsePattern(t.RequiredAgentVersion); err != nil {
			return fmt.Errorf("required_agent_version: %w", err)
		}
	}
	return nil
}

// ChunkDuration is the target wall-clock length of one task slice
func (t *Tuning) ChunkDuration() time.Duration {
	return time.Duration(t.ChunkDurationSeconds) * time.Second
}

// LeaseDuration is how long a claim lives without a heartbeat renewal
func (t *Tuning) LeaseDuration() time.Duration {
	return time.Duration(t.LeaseDurationSeconds) * time.Second
}

// HeartbeatGrace is how long an agent may stay silent before it is marked
// disconnected
func (t *Tuning) HeartbeatGrace() time.Duration {
	return time.Duration(t.HeartbeatGraceSeconds) * time.Second
}

// SweepInterval is the period of the lease sweep pass
func (t *Tuning) SweepInterval() time.Duration {
	return time.Duration(t.SweepIntervalSeconds) * time.Second
}

// BenchmarkMaxAge is how old a benchmark may be before the agent must
// re-measure
func (t *Tuning) BenchmarkMaxAge() time.Duration {
	return time.Duration(t.BenchmarkMaxAgeHours) * time.Hour
}

// RetentionWindow is how long fault logs and transition events are kept
func (t *Tuning) RetentionWindow() time.Duration {
	return time.Duration(t.RetentionDays) * 24 * time.Hour
}

// ResourceHandleTTL is the lifetime of presigned resource fetch handles
func (t *Tuning) ResourceHandleTTL() time.Duration {
	return time.Duration(t.ResourceHandleTTLSeconds) * time.Second
}

// AgentVersionPattern is the version constraint agents must satisfy to be
// offered work. Validate has already checked it parses; an unset value
// means no constraint.
func (t *Tuning) AgentVersionPattern() *version.Pattern {
	if t.RequiredAgentVersion == "" {
		return version.MustParsePattern("default")
	}
	return version.MustParsePattern(t.RequiredAgentVersion)
}
