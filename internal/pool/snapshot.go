package pool

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"CoverPool/internal/wei"
)

// Snapshot is a point-in-time copy of the engine's durable state. Warm
// restart loads the latest snapshot and replays events from Sequence+1 out
// of the event log. All wei amounts are decimal strings.
type Snapshot struct {
	Sequence     int64             `json:"sequence"`
	NextPolicyID uint64            `json:"next_policy_id"`
	Paused       bool              `json:"paused"`
	Params       Params            `json:"params"`
	TotalAssets  string            `json:"total_assets"`
	HeldBalance  string            `json:"held_balance"`
	Shares       map[string]string `json:"shares"` // LP address hex -> share balance
	Policies     []PolicySnapshot  `json:"policies"`
	CreatedAt    time.Time         `json:"created_at"`
}

// PolicySnapshot is the serializable form of a stored policy.
type PolicySnapshot struct {
	ID       uint64 `json:"id"`
	Coverage string `json:"coverage"`
	Premium  string `json:"premium"`
	Start    int64  `json:"start"`
	End      int64  `json:"end"`
	Resolved bool   `json:"resolved"`
}

// Snapshot captures the engine state under the engine lock.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	shares := make(map[string]string, len(e.vault.shares))
	for addr, s := range e.vault.shares {
		if s.Sign() != 0 {
			shares[addr.Hex()] = s.String()
		}
	}

	policies := make([]PolicySnapshot, 0, len(e.ledger.policies))
	for _, p := range e.ledger.policies {
		policies = append(policies, PolicySnapshot{
			ID:       p.ID,
			Coverage: p.Coverage.String(),
			Premium:  p.Premium.String(),
			Start:    p.Start.Unix(),
			End:      p.End.Unix(),
			Resolved: p.Resolved,
		})
	}

	return Snapshot{
		Sequence:     e.sequence,
		NextPolicyID: e.nextPolicyID,
		Paused:       e.paused,
		Params:       e.params,
		TotalAssets:  e.vault.totalAssets.String(),
		HeldBalance:  e.bank.BalanceOf(e.addr).String(),
		Shares:       shares,
		Policies:     policies,
		CreatedAt:    e.now(),
	}
}

// Restore replaces the engine state with the snapshot's. Only valid on a
// fresh engine: restoring over live state would corrupt the bank ledger.
func (e *Engine) Restore(s Snapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.vault.totalShares.Sign() != 0 || len(e.ledger.policies) != 0 {
		return fmt.Errorf("restore: engine is not fresh")
	}
	if err := s.Params.Validate(); err != nil {
		return err
	}

	totalAssets, err := parseWei(s.TotalAssets)
	if err != nil {
		return fmt.Errorf("restore total_assets: %w", err)
	}
	held, err := parseWei(s.HeldBalance)
	if err != nil {
		return fmt.Errorf("restore held_balance: %w", err)
	}

	vault := NewVault()
	vault.totalAssets = totalAssets
	for hex, raw := range s.Shares {
		bal, err := parseWei(raw)
		if err != nil {
			return fmt.Errorf("restore shares[%s]: %w", hex, err)
		}
		vault.shares[common.HexToAddress(hex)] = bal
		vault.totalShares.Add(vault.totalShares, bal)
	}

	ledger := NewPolicyLedger()
	for _, ps := range s.Policies {
		coverage, err := parseWei(ps.Coverage)
		if err != nil {
			return fmt.Errorf("restore policy %d coverage: %w", ps.ID, err)
		}
		premium, err := parseWei(ps.Premium)
		if err != nil {
			return fmt.Errorf("restore policy %d premium: %w", ps.ID, err)
		}
		p := &Policy{
			ID:       ps.ID,
			Coverage: coverage,
			Premium:  premium,
			Start:    time.Unix(ps.Start, 0).UTC(),
			End:      time.Unix(ps.End, 0).UTC(),
			Resolved: ps.Resolved,
		}
		ledger.policies[p.ID] = p
		if !p.Resolved {
			ledger.totalLockedCoverage.Add(ledger.totalLockedCoverage, p.Coverage)
		}
	}

	if ledger.totalLockedCoverage.Cmp(totalAssets) > 0 {
		return fmt.Errorf("restore: locked coverage %s exceeds total assets %s",
			ledger.totalLockedCoverage, totalAssets)
	}

	e.vault = vault
	e.ledger = ledger
	e.sequence = s.Sequence
	e.nextPolicyID = s.NextPolicyID
	e.paused = s.Paused
	e.params = s.Params
	e.bank.Credit(e.addr, held)

	e.log.Info().
		Int64("sequence", s.Sequence).
		Uint64("next_policy_id", s.NextPolicyID).
		Int("policies", len(s.Policies)).
		Msg("engine state restored from snapshot")

	return nil
}

func parseWei(s string) (*big.Int, error) {
	if s == "" {
		return wei.Zero(), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid wei amount %q", s)
	}
	return v, nil
}
