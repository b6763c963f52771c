package query

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Reader is the read-side interface served to the HTTP layer. Satisfied by
// *Service and *CachedService.
type Reader interface {
	GetPolicy(ctx context.Context, policyID uint64) (*PolicyRecord, error)
	ListPoliciesByHolder(ctx context.Context, holder string, limit int) ([]PolicyRecord, error)
	ListOpenPolicies(ctx context.Context, limit int) ([]PolicyRecord, error)
	ListEvents(ctx context.Context, fromSequence int64, limit int) ([]EventRecord, error)
}

// CachedService wraps Service with a Redis read-through cache. Only the
// per-policy lookup is cached: resolved policies are immutable and open
// policies change rarely, so a short TTL keeps staleness bounded without
// invalidation plumbing.
type CachedService struct {
	primary *Service
	rdb     *redis.Client
	ttl     time.Duration
}

func NewCachedService(primary *Service, rdb *redis.Client, ttl time.Duration) *CachedService {
	return &CachedService{primary: primary, rdb: rdb, ttl: ttl}
}

func (c *CachedService) GetPolicy(ctx context.Context, policyID uint64) (*PolicyRecord, error) {
	data, err := c.rdb.Get(ctx, policyKey(policyID)).Bytes()
	if err == nil {
		var p PolicyRecord
		if json.Unmarshal(data, &p) == nil {
			return &p, nil
		}
	}

	p, err := c.primary.GetPolicy(ctx, policyID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(p); err == nil {
		c.rdb.Set(ctx, policyKey(policyID), data, c.ttl)
	}
	return p, nil
}

// Invalidate drops a policy from the cache. The service loop calls this
// when a PolicyResolved event goes out.
func (c *CachedService) Invalidate(ctx context.Context, policyID uint64) {
	c.rdb.Del(ctx, policyKey(policyID))
}

// --- Passthrough (not cached) ---

func (c *CachedService) ListPoliciesByHolder(ctx context.Context, holder string, limit int) ([]PolicyRecord, error) {
	return c.primary.ListPoliciesByHolder(ctx, holder, limit)
}

func (c *CachedService) ListOpenPolicies(ctx context.Context, limit int) ([]PolicyRecord, error) {
	return c.primary.ListOpenPolicies(ctx, limit)
}

func (c *CachedService) ListEvents(ctx context.Context, fromSequence int64, limit int) ([]EventRecord, error) {
	return c.primary.ListEvents(ctx, fromSequence, limit)
}

func policyKey(id uint64) string { return fmt.Sprintf("policy:%d", id) }
