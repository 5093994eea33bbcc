package models

import (
	"time"

	"github.com/google/uuid"
)

// CrackResult is the immutable attribution record for one recovered hash:
// which agent, running which attack, found which item, and when. At most
// one row exists per hash item; duplicate submissions are absorbed without
// creating another.
type CrackResult struct {
	ID           uuid.UUID `json:"id"`
	HashItemID   uuid.UUID `json:"hash_item_id"`
	AttackID     uuid.UUID `json:"attack_id"`
	AgentID      uuid.UUID `json:"agent_id"`
	PlainText    string    `json:"plain_text"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// CrackSubmission is one crack reported by an agent for a task it holds
type CrackSubmission struct {
	HashValue string `json:"hash_value"`
	PlainText string `json:"plain_text"`
	Salt      string `json:"salt,omitempty"`
}

// CrackIngestResult summarizes one submission batch
type CrackIngestResult struct {
	Accepted         int  `json:"accepted"`
	Duplicates       int  `json:"duplicates"`
	Unknown          int  `json:"unknown"` // hash values not present in the hashlist
	ListFullyCracked bool `json:"list_fully_cracked"`
}
