package models

import (
	"time"

	"github.com/google/uuid"
)

// ResourceType classifies attack resources in the catalog
type ResourceType string

const (
	ResourceTypeWordlist ResourceType = "wordlist"
	ResourceTypeRulelist ResourceType = "rulelist"
	ResourceTypeMasklist ResourceType = "masklist"
	ResourceTypeCharset  ResourceType = "charset"
)

// IsValid reports whether the resource type is known
func (t ResourceType) IsValid() bool {
	switch t {
	case ResourceTypeWordlist, ResourceTypeRulelist, ResourceTypeMasklist, ResourceTypeCharset:
		return true
	}
	return false
}

// Resource is one catalog entry for a file agents fetch before running an
// attack. The bytes live in object storage; the coordinator only hands out
// short-lived fetch handles. FileHash is the sha256 of the stored object and
// is returned alongside every handle so agents can verify downloads.
type Resource struct {
	ID          uuid.UUID    `json:"id"`
	ProjectID   *uuid.UUID   `json:"project_id,omitempty"` // nil = shared across projects
	Name        string       `json:"name"`
	Type        ResourceType `json:"resource_type"`
	FilePath    string       `json:"-"` // object key, not exposed to agents
	FileHash    string       `json:"file_hash"`
	FileSize    int64        `json:"file_size"`
	LineCount   *int64       `json:"line_count,omitempty"`
	ContentType string       `json:"content_type"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// FetchHandle is a short-lived, integrity-checked download grant for one
// resource
type FetchHandle struct {
	ResourceID uuid.UUID `json:"resource_id"`
	URL        string    `json:"url"`
	FileHash   string    `json:"file_hash"`
	FileSize   int64     `json:"file_size"`
	ExpiresAt  time.Time `json:"expires_at"`
}
