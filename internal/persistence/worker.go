package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"CoverPool/internal/event"
	"CoverPool/internal/observability"
	"CoverPool/internal/pool"
)

// Worker drains the engine's persist channel and batch-writes to Postgres.
// The engine uses BLOCKING sends on this channel: if the worker falls
// behind, pool operations stall rather than lose events.
type Worker struct {
	writer       *EventLogWriter
	db           *sql.DB
	input        <-chan pool.Output
	batchSize    int
	flushTimeout time.Duration
	log          zerolog.Logger
	metrics      *observability.Metrics
}

func NewWorker(
	db *sql.DB,
	input <-chan pool.Output,
	batchSize int,
	flushTimeout time.Duration,
	log zerolog.Logger,
	metrics *observability.Metrics,
) *Worker {
	return &Worker{
		writer:       NewEventLogWriter(db),
		db:           db,
		input:        input,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		log:          log,
		metrics:      metrics,
	}
}

// batch accumulates one flush worth of rows.
type batch struct {
	events      []EventRow
	policies    []PolicyRow
	transfers   []TransferRow
	resolutions []ResolutionRow
}

func (b *batch) empty() bool { return len(b.events) == 0 }

func (b *batch) reset() {
	b.events = b.events[:0]
	b.policies = b.policies[:0]
	b.transfers = b.transfers[:0]
	b.resolutions = b.resolutions[:0]
}

func (b *batch) add(out pool.Output) error {
	env := out.Envelope

	payload, err := json.Marshal(env.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload for seq %d: %w", env.Sequence, err)
	}

	b.events = append(b.events, EventRow{
		Sequence:  env.Sequence,
		EventID:   env.EventID,
		EventType: env.Type.String(),
		Payload:   payload,
		EmittedAt: env.Timestamp,
	})

	// Policy lifecycle events also project into pool_log.policies.
	switch p := env.Payload.(type) {
	case event.PolicyCreated:
		b.policies = append(b.policies, PolicyRow{
			PolicyID: p.PolicyID,
			Holder:   p.Holder,
			Coverage: p.Coverage,
			Premium:  p.Premium,
			StartAt:  time.Unix(p.Start, 0).UTC(),
			EndAt:    time.Unix(p.End, 0).UTC(),
		})
	case event.PolicyTransferred:
		b.transfers = append(b.transfers, TransferRow{
			PolicyID: p.PolicyID,
			Holder:   p.To,
		})
	case event.PolicyResolved:
		b.resolutions = append(b.resolutions, ResolutionRow{
			PolicyID:     p.PolicyID,
			Payout:       p.Payout,
			PayoutAmount: p.Amount,
		})
	}
	return nil
}

// Run batches incoming events and flushes when the batch fills or the flush
// timeout expires. Blocks until ctx is cancelled or the channel closes; a
// final flush runs on either exit path.
func (w *Worker) Run(ctx context.Context) error {
	b := &batch{events: make([]EventRow, 0, w.batchSize)}

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if !b.empty() {
				if err := w.flush(context.Background(), b); err != nil {
					w.log.Error().Err(err).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case out, ok := <-w.input:
			if !ok {
				if !b.empty() {
					if err := w.flush(context.Background(), b); err != nil {
						w.log.Error().Err(err).Msg("final flush failed")
					}
				}
				return nil
			}

			if err := b.add(out); err != nil {
				w.log.Error().Err(err).Msg("dropping unmarshalable event")
				continue
			}

			if len(b.events) >= w.batchSize {
				w.flushWithRetry(ctx, b)
				b.reset()
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if !b.empty() {
				w.flushWithRetry(ctx, b)
				b.reset()
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff. The worker never drops a
// batch: it retries until the write succeeds or the context is cancelled,
// and on cancellation attempts one last flush with a background context.
func (w *Worker) flushWithRetry(ctx context.Context, b *batch) {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			w.log.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Int("events", len(b.events)).
				Msg("persistence flush retry")
			select {
			case <-ctx.Done():
				if err := w.flush(context.Background(), b); err != nil {
					w.log.Error().Err(err).Msg("final flush on shutdown failed")
				}
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := w.flush(ctx, b)
		if err == nil {
			if attempt > 0 {
				w.log.Info().Int("retries", attempt).Msg("persistence flush recovered")
			}
			return
		}

		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("retry").Inc()
		}
	}
}

// flush writes events, policy projections, holder moves and resolutions in
// one transaction.
func (w *Worker) flush(ctx context.Context, b *batch) error {
	start := time.Now()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("tx_begin").Inc()
		}
		return err
	}
	defer tx.Rollback()

	if err := w.writer.WriteEventBatch(ctx, tx, b.events); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("write_events").Inc()
		}
		return err
	}
	if err := w.writer.WritePolicyBatch(ctx, tx, b.policies); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("write_policies").Inc()
		}
		return err
	}
	if err := w.writer.WriteTransferBatch(ctx, tx, b.transfers); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("write_transfers").Inc()
		}
		return err
	}
	if err := w.writer.WriteResolutionBatch(ctx, tx, b.resolutions); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("write_resolutions").Inc()
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("tx_commit").Inc()
		}
		return err
	}

	if w.metrics != nil {
		w.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		w.metrics.PersistBatchSize.Observe(float64(len(b.events)))
		w.metrics.PersistEventsWritten.Add(float64(len(b.events)))
		w.metrics.PersistLastSequence.Set(float64(b.events[len(b.events)-1].Sequence))
	}

	return nil
}
