// Package oracle records binary policy outcomes. The pool treats it as an
// opaque lookup: it never sees where an outcome came from, only the boolean
// keyed by policy id.
package oracle

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"CoverPool/internal/pool"
)

// Store is the in-memory outcome registry.
type Store struct {
	mu       sync.Mutex
	owner    common.Address
	outcomes map[uint64]bool

	outcomesSet prometheus.Counter
}

func NewStore(owner common.Address) *Store {
	return &Store{
		owner:    owner,
		outcomes: make(map[uint64]bool),
	}
}

// WithCounter attaches a metric incremented on every recorded outcome.
func (s *Store) WithCounter(c prometheus.Counter) *Store {
	s.outcomesSet = c
	return s
}

// SetEvent records the outcome for a policy id. Owner-gated: outcomes are an
// administrative write, whether they arrive over HTTP, NATS or the poller.
func (s *Store) SetEvent(caller common.Address, policyID uint64, outcome bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if caller != s.owner {
		return pool.ErrUnauthorized
	}

	s.outcomes[policyID] = outcome
	if s.outcomesSet != nil {
		s.outcomesSet.Inc()
	}
	return nil
}

// IsEventHappened returns the recorded outcome; absent means false.
func (s *Store) IsEventHappened(policyID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcomes[policyID]
}
