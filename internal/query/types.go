package query

import (
	"encoding/json"
	"time"
)

// PolicyRecord is the durable view of one policy. Wei amounts are decimal
// strings. AsOfSequence tells the caller how fresh the read side is
// relative to the engine's event sequence.
type PolicyRecord struct {
	PolicyID     uint64    `json:"policy_id"`
	Holder       string    `json:"holder"`
	Coverage     string    `json:"coverage"`
	Premium      string    `json:"premium"`
	StartAt      time.Time `json:"start_at"`
	EndAt        time.Time `json:"end_at"`
	Resolved     bool      `json:"resolved"`
	Payout       bool      `json:"payout"`
	PayoutAmount string    `json:"payout_amount"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// EventRecord is one row of the event history.
type EventRecord struct {
	Sequence  int64           `json:"sequence"`
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	EmittedAt time.Time       `json:"emitted_at"`
}
