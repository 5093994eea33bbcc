package models

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// HashListStatus represents the processing status of a hashlist
const (
	HashListStatusUploading  = "uploading"  // Initial state upon ingest start
	HashListStatusProcessing = "processing" // State while lines are validated and inserted
	HashListStatusReady      = "ready"      // Processing complete, list usable by campaigns
	HashListStatusError      = "error"      // Ingest failed
)

// HashList is the target set one or more campaigns run against. Counts are
// maintained by the crack ingestor; CrackedHashes never decreases.
type HashList struct {
	ID            uuid.UUID      `json:"id"`
	ProjectID     uuid.UUID      `json:"project_id"`
	Name          string         `json:"name"`
	HashTypeID    int            `json:"hash_type_id"`
	TotalHashes   int64          `json:"total_hashes"`
	CrackedHashes int64          `json:"cracked_hashes"`
	Status        string         `json:"status"`
	ErrorMessage  sql.NullString `json:"error_message,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// IsFullyCracked reports whether no uncracked items remain
func (h *HashList) IsFullyCracked() bool {
	return h.TotalHashes > 0 && h.CrackedHashes >= h.TotalHashes
}

// HashItem is a single hash within a hashlist. The cracked flag is
// monotonic: once true it never flips back, and PlainText is never
// overwritten by later submissions.
type HashItem struct {
	ID         uuid.UUID  `json:"id"`
	HashListID uuid.UUID  `json:"hashlist_id"`
	HashValue  string     `json:"hash_value"`
	Salt       *string    `json:"salt,omitempty"`
	PlainText  *string    `json:"plain_text,omitempty"`
	Cracked    bool       `json:"cracked"`
	CrackedAt  *time.Time `json:"cracked_at,omitempty"`
	AttackID   *uuid.UUID `json:"attack_id,omitempty"` // attack that cracked it
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// HashType represents a hash algorithm recognized by the system, keyed by
// hashcat mode number.
type HashType struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Example     *string `json:"example,omitempty"`
	IsEnabled   bool    `json:"is_enabled"`
	Slow        bool    `json:"slow"` // computationally expensive algorithm
}

// HashListIngestResult summarizes one batch ingest call
type HashListIngestResult struct {
	Received   int `json:"received"`
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
	Invalid    int `json:"invalid"`
}
