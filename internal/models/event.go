package models

import "time"

// Entity types recorded in the transition event feed
const (
	EntityTypeAgent    = "agent"
	EntityTypeCampaign = "campaign"
	EntityTypeAttack   = "attack"
	EntityTypeTask     = "task"
	EntityTypeHashItem = "hash_item"
)

// TransitionEvent is one row in the append-only state transition feed. The
// feed is what the presentation layer renders; the coordinator emits events
// and never reads them back for its own decisions.
type TransitionEvent struct {
	ID         int64     `json:"id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Actor      string    `json:"actor,omitempty"` // agent id, "system", or operator
	Note       string    `json:"note,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
