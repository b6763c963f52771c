package event

import (
	"time"

	"github.com/google/uuid"
)

// Type discriminator for pool event payloads.
type Type int32

const (
	TypeUnknown Type = iota
	TypeLiquidityProvided
	TypeLiquidityRemoved
	TypePolicyCreated
	TypePolicyTransferred
	TypePolicyResolved
	TypeParametersUpdated
	TypePaused
	TypeUnpaused
	TypeEmergencyWithdrawn
	TypeFundsReceived
	TypeFundsWithdrawn
)

func (t Type) String() string {
	switch t {
	case TypeLiquidityProvided:
		return "LiquidityProvided"
	case TypeLiquidityRemoved:
		return "LiquidityRemoved"
	case TypePolicyCreated:
		return "PolicyCreated"
	case TypePolicyTransferred:
		return "PolicyTransferred"
	case TypePolicyResolved:
		return "PolicyResolved"
	case TypeParametersUpdated:
		return "ParametersUpdated"
	case TypePaused:
		return "Paused"
	case TypeUnpaused:
		return "Unpaused"
	case TypeEmergencyWithdrawn:
		return "EmergencyWithdrawn"
	case TypeFundsReceived:
		return "FundsReceived"
	case TypeFundsWithdrawn:
		return "FundsWithdrawn"
	default:
		return "Unknown"
	}
}

// Envelope wraps every event the pool emits.
type Envelope struct {
	// Global monotonic sequence assigned by the engine
	Sequence int64

	// Unique event id for idempotent persistence
	EventID uuid.UUID

	// Payload type discriminator
	Type Type

	// Engine clock at emission
	Timestamp time.Time

	// One of the payload structs below
	Payload interface{}
}

// All wei amounts in payloads are decimal strings: big.Int values survive
// JSON round-trips without precision loss that way.

type LiquidityProvided struct {
	LP        string `json:"lp"`
	EthAmount string `json:"eth_amount"`
	Shares    string `json:"shares"`
}

type LiquidityRemoved struct {
	LP        string `json:"lp"`
	EthAmount string `json:"eth_amount"`
	Shares    string `json:"shares"`
}

type PolicyCreated struct {
	PolicyID uint64 `json:"policy_id"`
	Holder   string `json:"holder"`
	Coverage string `json:"coverage"`
	Premium  string `json:"premium"`
	Start    int64  `json:"start"`
	End      int64  `json:"end"`
}

type PolicyTransferred struct {
	PolicyID uint64 `json:"policy_id"`
	From     string `json:"from"`
	To       string `json:"to"`
}

type PolicyResolved struct {
	PolicyID uint64 `json:"policy_id"`
	Payout   bool   `json:"payout"`
	Amount   string `json:"amount"`
}

type ParametersUpdated struct {
	MaxCoverageBps uint64 `json:"max_coverage_bps"`
	PremiumRateBps uint64 `json:"premium_rate_bps"`
	ProtocolFeeBps uint64 `json:"protocol_fee_bps"`
}

type Paused struct {
	By string `json:"by"`
}

type Unpaused struct {
	By string `json:"by"`
}

type EmergencyWithdrawn struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type FundsReceived struct {
	Sender string `json:"sender"`
	Amount string `json:"amount"`
}

type FundsWithdrawn struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}
