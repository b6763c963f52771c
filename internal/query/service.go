package query

import (
	"context"
	"database/sql"
	"fmt"
)

// ErrNotFound reports a missing policy row.
var ErrNotFound = fmt.Errorf("query: not found")

// Service provides read-only access to the pool_log projection tables.
// Responses carry as_of_sequence so callers can reason about freshness
// relative to the live engine.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// GetPolicy returns one policy by id.
func (s *Service) GetPolicy(ctx context.Context, policyID uint64) (*PolicyRecord, error) {
	asOf, err := s.watermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT policy_id, holder, coverage, premium, start_at, end_at,
		       resolved, payout, payout_amount
		FROM pool_log.policies
		WHERE policy_id = $1
	`, policyID)

	var p PolicyRecord
	p.AsOfSequence = asOf
	err = row.Scan(
		&p.PolicyID, &p.Holder, &p.Coverage, &p.Premium, &p.StartAt, &p.EndAt,
		&p.Resolved, &p.Payout, &p.PayoutAmount,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPoliciesByHolder returns the policies minted to a holder, newest first.
// The holder column records the original buyer; current token ownership
// lives in the token registry.
func (s *Service) ListPoliciesByHolder(ctx context.Context, holder string, limit int) ([]PolicyRecord, error) {
	asOf, err := s.watermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT policy_id, holder, coverage, premium, start_at, end_at,
		       resolved, payout, payout_amount
		FROM pool_log.policies
		WHERE holder = $1
		ORDER BY policy_id DESC
		LIMIT $2
	`, holder, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPolicies(rows, asOf)
}

// ListOpenPolicies returns unresolved policies ordered by end timestamp, so
// an operator can see what is due for expiry.
func (s *Service) ListOpenPolicies(ctx context.Context, limit int) ([]PolicyRecord, error) {
	asOf, err := s.watermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT policy_id, holder, coverage, premium, start_at, end_at,
		       resolved, payout, payout_amount
		FROM pool_log.policies
		WHERE NOT resolved
		ORDER BY end_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPolicies(rows, asOf)
}

// ListEvents returns the event history from a sequence forward.
func (s *Service) ListEvents(ctx context.Context, fromSequence int64, limit int) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, event_id, event_type, payload, emitted_at
		FROM pool_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRecord
	for rows.Next() {
		var e EventRecord
		if err := rows.Scan(&e.Sequence, &e.EventID, &e.EventType, &e.Payload, &e.EmittedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// watermark returns the highest persisted event sequence.
func (s *Service) watermark(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM pool_log.events`).Scan(&seq); err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

func scanPolicies(rows *sql.Rows, asOf int64) ([]PolicyRecord, error) {
	var policies []PolicyRecord
	for rows.Next() {
		var p PolicyRecord
		p.AsOfSequence = asOf
		if err := rows.Scan(
			&p.PolicyID, &p.Holder, &p.Coverage, &p.Premium, &p.StartAt, &p.EndAt,
			&p.Resolved, &p.Payout, &p.PayoutAmount,
		); err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}
