package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// execer is satisfied by *sql.DB and *sql.Tx so batch writes can run inside
// the worker's flush transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// EventRow is a row in pool_log.events. Payload is the JSON-encoded event
// payload; the sequence is the engine's global event sequence.
type EventRow struct {
	Sequence  int64
	EventID   uuid.UUID
	EventType string
	Payload   []byte
	EmittedAt time.Time
}

// PolicyRow is a row in pool_log.policies, projected from PolicyCreated.
// Wei amounts travel as decimal strings into NUMERIC(78,0) columns.
type PolicyRow struct {
	PolicyID uint64
	Holder   string
	Coverage string
	Premium  string
	StartAt  time.Time
	EndAt    time.Time
}

// ResolutionRow closes a policy row, projected from PolicyResolved.
type ResolutionRow struct {
	PolicyID     uint64
	Payout       bool
	PayoutAmount string
}

// TransferRow moves a policy row's holder, projected from PolicyTransferred.
// The holder column tracks current ownership so warm restarts and history
// queries see who a resolution would pay.
type TransferRow struct {
	PolicyID uint64
	Holder   string
}

// EventLogWriter writes pool events and policy projections to Postgres
// using multi-row INSERT. ON CONFLICT DO NOTHING on the sequence key makes
// replays idempotent; switch to pgx CopyFrom if insert throughput ever
// becomes the bottleneck.
type EventLogWriter struct {
	db *sql.DB
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// WriteEventBatch appends a batch of events to pool_log.events.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, ec execer, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO pool_log.events
		(sequence, event_id, event_type, payload, emitted_at)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*5)

	for i, e := range events {
		base := i * 5
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5,
		))
		args = append(args, e.Sequence, e.EventID, e.EventType, e.Payload, e.EmittedAt)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := ec.ExecContext(ctx, query, args...)
	return err
}

// WritePolicyBatch inserts newly created policies into pool_log.policies.
func (w *EventLogWriter) WritePolicyBatch(ctx context.Context, ec execer, policies []PolicyRow) error {
	if len(policies) == 0 {
		return nil
	}

	query := `INSERT INTO pool_log.policies
		(policy_id, holder, coverage, premium, start_at, end_at)
		VALUES `

	values := make([]string, 0, len(policies))
	args := make([]interface{}, 0, len(policies)*6)

	for i, p := range policies {
		base := i * 6
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
		))
		args = append(args, p.PolicyID, p.Holder, p.Coverage, p.Premium, p.StartAt, p.EndAt)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (policy_id) DO NOTHING"

	_, err := ec.ExecContext(ctx, query, args...)
	return err
}

// WriteResolutionBatch marks policies resolved. An UPDATE per row is fine
// here: resolutions are rare compared to the event volume.
func (w *EventLogWriter) WriteResolutionBatch(ctx context.Context, ec execer, resolutions []ResolutionRow) error {
	for _, r := range resolutions {
		_, err := ec.ExecContext(ctx, `
			UPDATE pool_log.policies
			SET resolved = TRUE, payout = $2, payout_amount = $3
			WHERE policy_id = $1
		`, r.PolicyID, r.Payout, r.PayoutAmount)
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteTransferBatch moves policy rows to their new holders. Transfers in
// one batch apply in order, so the last one wins.
func (w *EventLogWriter) WriteTransferBatch(ctx context.Context, ec execer, transfers []TransferRow) error {
	for _, tr := range transfers {
		_, err := ec.ExecContext(ctx, `
			UPDATE pool_log.policies
			SET holder = $2
			WHERE policy_id = $1
		`, tr.PolicyID, tr.Holder)
		if err != nil {
			return err
		}
	}
	return nil
}
