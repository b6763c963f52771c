package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"CoverPool/internal/oracle"
)

// OutcomeMessage is the JSON shape oracle reporters publish on
// cover.oracle.outcomes.
type OutcomeMessage struct {
	PolicyID uint64 `json:"policy_id"`
	Outcome  bool   `json:"outcome"`
}

// OracleSubscriber feeds JetStream outcome reports into the oracle store.
// Messages are written on behalf of the oracle owner; a malformed message
// is acked and dropped (redelivery cannot fix it), a store failure is
// nak'd for redelivery.
type OracleSubscriber struct {
	js       jetstream.JetStream
	store    *oracle.Store
	owner    common.Address
	log      zerolog.Logger
	consumer jetstream.ConsumeContext
}

func NewOracleSubscriber(js jetstream.JetStream, store *oracle.Store, owner common.Address, log zerolog.Logger) *OracleSubscriber {
	return &OracleSubscriber{js: js, store: store, owner: owner, log: log}
}

// Subscribe creates the durable consumer and starts delivery.
func (s *OracleSubscriber) Subscribe(ctx context.Context) error {
	consumer, err := s.js.CreateOrUpdateConsumer(ctx, OracleStream, jetstream.ConsumerConfig{
		Durable:       "pool-oracle-outcomes",
		FilterSubject: OracleSubjectFilter,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create oracle consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		var outcome OutcomeMessage
		if err := json.Unmarshal(msg.Data(), &outcome); err != nil {
			s.log.Warn().Err(err).Str("subject", msg.Subject()).Msg("dropping malformed oracle message")
			msg.Ack()
			return
		}

		if err := s.store.SetEvent(s.owner, outcome.PolicyID, outcome.Outcome); err != nil {
			s.log.Error().Err(err).Uint64("policy_id", outcome.PolicyID).Msg("oracle outcome rejected")
			msg.Nak()
			return
		}

		s.log.Info().
			Uint64("policy_id", outcome.PolicyID).
			Bool("outcome", outcome.Outcome).
			Msg("oracle outcome recorded")
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("consume oracle outcomes: %w", err)
	}

	s.consumer = cc
	return nil
}

// Stop halts delivery.
func (s *OracleSubscriber) Stop() {
	if s.consumer != nil {
		s.consumer.Stop()
	}
}
