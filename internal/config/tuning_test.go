package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTuningFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tuning.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write tuning file: %v", err)
	}
	return path
}

func TestLoadTuning_EmptyPathReturnsDefaults(t *testing.T) {
	tuning, err := LoadTuning("")
	if err != nil {
		t.Fatalf("LoadTuning failed: %v", err)
	}
	if tuning.ChunkDurationSeconds != 600 {
		t.Errorf("chunk_duration_seconds = %d, want 600", tuning.ChunkDurationSeconds)
	}
	if tuning.LeaseDuration() != 15*time.Minute {
		t.Errorf("lease duration = %s, want 15m", tuning.LeaseDuration())
	}
	if tuning.RequiredAgentVersion != "default" {
		t.Errorf("required_agent_version = %q, want default", tuning.RequiredAgentVersion)
	}
}

func TestLoadTuning_OverridesKeepUnsetDefaults(t *testing.T) {
	path := writeTuningFile(t, `
chunk_duration_seconds = 1200
min_speed_high_priority = 500000
required_agent_version = "1.4.x"
`)

	tuning, err := LoadTuning(path)
	if err != nil {
		t.Fatalf("LoadTuning failed: %v", err)
	}

	if tuning.ChunkDurationSeconds != 1200 {
		t.Errorf("chunk_duration_seconds = %d, want 1200", tuning.ChunkDurationSeconds)
	}
	if tuning.MinSpeedHighPriority != 500000 {
		t.Errorf("min_speed_high_priority = %d, want 500000", tuning.MinSpeedHighPriority)
	}
	if !tuning.AgentVersionPattern().Matches("1.4.9") {
		t.Error("1.4.x pattern must match 1.4.9")
	}
	if tuning.AgentVersionPattern().Matches("1.5.0") {
		t.Error("1.4.x pattern must not match 1.5.0")
	}
	// Untouched knobs keep their defaults.
	if tuning.HeartbeatGraceSeconds != 120 {
		t.Errorf("heartbeat_grace_seconds = %d, want default 120", tuning.HeartbeatGraceSeconds)
	}
	if tuning.RetentionSchedule != "0 3 * * *" {
		t.Errorf("retention_schedule = %q, want default", tuning.RetentionSchedule)
	}
}

func TestLoadTuning_RejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"zero chunk duration", "chunk_duration_seconds = 0"},
		{"fluctuation over 100", "chunk_fluctuation_percent = 150"},
		{"negative retries", "max_task_retries = -1"},
		{"max below min keyspace", "chunk_max_keyspace = 10\nchunk_min_keyspace = 100"},
		{"bad version pattern", `required_agent_version = "latest"`},
		{"malformed toml", "chunk_duration_seconds = "},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeTuningFile(t, tc.body)
			if _, err := LoadTuning(path); err == nil {
				t.Errorf("LoadTuning accepted %q", tc.body)
			}
		})
	}
}

func TestLoadTuning_MissingFile(t *testing.T) {
	if _, err := LoadTuning(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("missing tuning file must fail loudly, not fall back to defaults")
	}
}
