package models

import (
	"time"

	"github.com/google/uuid"
)

// Project is the tenant isolation boundary. Campaigns, hashlists, results
// and (optionally) agents are scoped to exactly one project; nothing crosses
// projects without an explicit export.
type Project struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description,omitempty" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
