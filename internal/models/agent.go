package models

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AgentStatus represents the lifecycle state of an agent
type AgentStatus string

const (
	AgentStatusPending      AgentStatus = "pending"
	AgentStatusActive       AgentStatus = "active"
	AgentStatusDisconnected AgentStatus = "disconnected"
	AgentStatusReconnecting AgentStatus = "reconnecting"
	AgentStatusRetired      AgentStatus = "retired"
	AgentStatusError        AgentStatus = "error"
)

// agentTransitions lists the permitted target states per source state.
// Error is reachable from everywhere (fatal fault); pending is the
// recovery target after an operator triggers a re-benchmark.
var agentTransitions = map[AgentStatus][]AgentStatus{
	AgentStatusPending:      {AgentStatusActive, AgentStatusRetired, AgentStatusError},
	AgentStatusActive:       {AgentStatusDisconnected, AgentStatusPending, AgentStatusRetired, AgentStatusError},
	AgentStatusDisconnected: {AgentStatusReconnecting, AgentStatusRetired, AgentStatusError},
	AgentStatusReconnecting: {AgentStatusActive, AgentStatusDisconnected, AgentStatusRetired, AgentStatusError},
	AgentStatusRetired:      {},
	AgentStatusError:        {AgentStatusPending, AgentStatusRetired},
}

// IsValid reports whether the status is a known agent status
func (s AgentStatus) IsValid() bool {
	_, ok := agentTransitions[s]
	return ok
}

// IsLive reports whether the agent can be trusted to be working its claim.
// Non-live agents make their expired claims eligible for the lease sweep.
func (s AgentStatus) IsLive() bool {
	return s == AgentStatusActive || s == AgentStatusReconnecting || s == AgentStatusPending
}

// CanReceiveWork reports whether the scheduler may hand this agent a task
func (s AgentStatus) CanReceiveWork() bool {
	return s == AgentStatusActive
}

// CanTransitionTo reports whether the transition s -> target is permitted.
// Same-state transitions always succeed.
func (s AgentStatus) CanTransitionTo(target AgentStatus) bool {
	if s == target {
		return true
	}
	for _, allowed := range agentTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// ValidateAgentTransition returns an InvalidTransitionError if from -> to is
// not a permitted agent transition.
func ValidateAgentTransition(from, to AgentStatus) error {
	if !from.CanTransitionTo(to) {
		return newInvalidTransition("agent", string(from), string(to))
	}
	return nil
}

// Agent represents a registered worker in the fleet
type Agent struct {
	ID         uuid.UUID      `json:"id"`
	Name       string         `json:"name"`
	Host       string         `json:"host"`
	Signature  string         `json:"-"`
	APIKeyHash string         `json:"-"`
	Status     AgentStatus    `json:"status"`
	Version    string         `json:"version"`
	Devices    DeviceInfo     `json:"devices"`
	LastSeenAt sql.NullTime   `json:"lastSeenAt"`
	LastError  sql.NullString `json:"lastError"`
	IsEnabled  bool           `json:"isEnabled"`
	ProjectIDs []uuid.UUID    `json:"projectIds,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// DeviceInfo describes the compute devices an agent registered with
type DeviceInfo struct {
	CPUs []AgentCPU `json:"cpus,omitempty"`
	GPUs []AgentGPU `json:"gpus,omitempty"`
}

// AgentCPU is one CPU reported by an agent
type AgentCPU struct {
	Model   string `json:"model"`
	Cores   int    `json:"cores"`
	Threads int    `json:"threads"`
}

// AgentGPU is one GPU reported by an agent
type AgentGPU struct {
	Vendor string `json:"vendor"`
	Model  string `json:"model"`
	Memory int64  `json:"memory"`
	Driver string `json:"driver"`
}

// Value returns the JSON encoding of DeviceInfo for database storage
func (d DeviceInfo) Value() (driver.Value, error) {
	return json.Marshal(d)
}

// Scan decodes a JSON-encoded device column into DeviceInfo
func (d *DeviceInfo) Scan(value interface{}) error {
	if value == nil {
		*d = DeviceInfo{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return fmt.Errorf("unsupported type for device info: %T", value)
	}
}

// IsScopedTo reports whether the agent may serve the given project.
// An agent with no explicit scope serves every project.
func (a *Agent) IsScopedTo(projectID uuid.UUID) bool {
	if len(a.ProjectIDs) == 0 {
		return true
	}
	for _, id := range a.ProjectIDs {
		if id == projectID {
			return true
		}
	}
	return false
}

// MarshalJSON implements custom JSON marshalling for Agent to handle the
// sql.Null fields
func (a Agent) MarshalJSON() ([]byte, error) {
	type AgentJSON struct {
		ID         uuid.UUID   `json:"id"`
		Name       string      `json:"name"`
		Host       string      `json:"host"`
		Status     AgentStatus `json:"status"`
		Version    string      `json:"version"`
		Devices    DeviceInfo  `json:"devices"`
		LastSeenAt *time.Time  `json:"lastSeenAt,omitempty"`
		LastError  *string     `json:"lastError,omitempty"`
		IsEnabled  bool        `json:"isEnabled"`
		ProjectIDs []uuid.UUID `json:"projectIds,omitempty"`
		CreatedAt  time.Time   `json:"createdAt"`
		UpdatedAt  time.Time   `json:"updatedAt"`
	}

	temp := AgentJSON{
		ID:         a.ID,
		Name:       a.Name,
		Host:       a.Host,
		Status:     a.Status,
		Version:    a.Version,
		Devices:    a.Devices,
		IsEnabled:  a.IsEnabled,
		ProjectIDs: a.ProjectIDs,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}

	if a.LastSeenAt.Valid {
		temp.LastSeenAt = &a.LastSeenAt.Time
	}
	if a.LastError.Valid {
		temp.LastError = &a.LastError.String
	}

	return json.Marshal(temp)
}

// AgentBenchmark is one measured throughput entry for an agent
type AgentBenchmark struct {
	ID         int64     `json:"id"`
	AgentID    uuid.UUID `json:"agent_id"`
	HashTypeID int       `json:"hash_type_id"`
	Speed      int64     `json:"speed"` // hashes per second
	MeasuredAt time.Time `json:"measured_at"`
}

// BenchmarkMap maps hash type -> measured hashes/sec for one agent
type BenchmarkMap map[int]int64

// CanHandle reports whether the map carries a usable entry for hashTypeID
func (m BenchmarkMap) CanHandle(hashTypeID int) bool {
	speed, ok := m[hashTypeID]
	return ok && speed > 0
}

// SpeedFor returns the measured speed for hashTypeID, or 0 if absent
func (m BenchmarkMap) SpeedFor(hashTypeID int) int64 {
	return m[hashTypeID]
}
