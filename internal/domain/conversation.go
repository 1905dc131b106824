package domain

import "time"

// Turn is one coalesced burst of messages from a single sender.
type Turn struct {
	SenderKey   string
	DisplayName string
	Message     string
	Fragments   int
}

// Archived turn outcomes.
const (
	TurnAnswered = "answered"
	TurnFailed   = "failed"
)

// TurnRecord is the archived outcome of a resolved turn.
type TurnRecord struct {
	TurnID        string    `json:"turn_id"`
	SenderKey     string    `json:"sender"`
	DisplayName   string    `json:"display_name"`
	Question      string    `json:"question"`
	Answer        string    `json:"answer"`
	PropertyIDs   []string  `json:"property_ids"`
	Fragments     int       `json:"fragments"`
	Status        string    `json:"status"`
	FailureCode   string    `json:"failure_code,omitempty"` // failed turns only
	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// SenderStats aggregates the archived turns of one sender.
type SenderStats struct {
	SenderKey    string    `json:"sender"`
	DisplayName  string    `json:"display_name"`
	Turns        int       `json:"turns"`
	LastActivity time.Time `json:"last_activity"`
}
