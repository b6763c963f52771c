package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"CoverPool/internal/pool"
)

// WireEvent is the JSON shape published to cover.pool.events.{event_type}.
type WireEvent struct {
	Sequence  int64       `json:"sequence"`
	EventID   string      `json:"event_id"`
	EventType string      `json:"event_type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// OutboundPublisher drains the engine's publish channel to JetStream.
// Publishing is best-effort: the engine already drops on a full channel,
// and a failed publish is non-fatal because consumers can read the event
// log from Postgres directly.
type OutboundPublisher struct {
	js    jetstream.JetStream
	input <-chan pool.Output
	log   zerolog.Logger
}

func NewOutboundPublisher(js jetstream.JetStream, input <-chan pool.Output, log zerolog.Logger) *OutboundPublisher {
	return &OutboundPublisher{js: js, input: input, log: log}
}

// Run publishes until ctx is cancelled or the channel closes.
func (p *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-p.input:
			if !ok {
				return nil
			}
			if err := p.publish(ctx, out); err != nil {
				p.log.Warn().
					Err(err).
					Int64("sequence", out.Envelope.Sequence).
					Msg("outbound publish failed")
			}
		}
	}
}

func (p *OutboundPublisher) publish(ctx context.Context, out pool.Output) error {
	env := out.Envelope

	data, err := json.Marshal(WireEvent{
		Sequence:  env.Sequence,
		EventID:   env.EventID.String(),
		EventType: env.Type.String(),
		Payload:   env.Payload,
		Timestamp: env.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", OutboundSubjectPrefix, env.Type.String())
	_, err = p.js.Publish(ctx, subject, data)
	return err
}
