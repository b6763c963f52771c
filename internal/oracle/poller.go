package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

// FeedOutcome is one entry of the external outcome feed.
type FeedOutcome struct {
	PolicyID uint64 `json:"policy_id"`
	Outcome  bool   `json:"outcome"`
}

// Poller periodically fetches settled outcomes from an external HTTP feed
// and records them in the Store. It is optional wiring: when no feed URL is
// configured the service runs on administrative writes alone.
type Poller struct {
	store    *Store
	asOwner  common.Address
	feedURL  string
	interval time.Duration
	client   *http.Client
	log      zerolog.Logger
}

func NewPoller(store *Store, asOwner common.Address, feedURL string, interval time.Duration, log zerolog.Logger) *Poller {
	return &Poller{
		store:    store,
		asOwner:  asOwner,
		feedURL:  feedURL,
		interval: interval,
		client:   newRetryClient().StandardClient(),
		log:      log,
	}
}

// Run polls until ctx is cancelled. Feed errors are logged and retried on
// the next tick; outcomes are idempotent writes so re-reading is harmless.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.pollOnce(ctx); err != nil {
				p.log.Warn().Err(err).Str("feed", p.feedURL).Msg("oracle feed poll failed")
			}
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.feedURL, nil)
	if err != nil {
		return fmt.Errorf("build feed request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	var outcomes []FeedOutcome
	if err := json.NewDecoder(resp.Body).Decode(&outcomes); err != nil {
		return fmt.Errorf("decode feed: %w", err)
	}

	for _, o := range outcomes {
		if err := p.store.SetEvent(p.asOwner, o.PolicyID, o.Outcome); err != nil {
			return fmt.Errorf("record outcome for policy %d: %w", o.PolicyID, err)
		}
	}

	p.log.Debug().Int("outcomes", len(outcomes)).Msg("oracle feed polled")
	return nil
}

func newRetryClient() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 3 * time.Second
	c.Logger = nil
	return c
}
