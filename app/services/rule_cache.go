package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/revivatech/pricing-engine/models"
)

// RuleCache is a short-TTL read-through cache for candidate rule lookups.
// Every rule write bumps a namespace version key, so entries written before
// the mutation can never be read again; the TTL only bounds staleness when
// the version bump itself fails.
type RuleCache interface {
	GetCandidates(ctx context.Context, repairType string, deviceModelID *uint) ([]*models.PricingRule, bool)
	SetCandidates(ctx context.Context, repairType string, deviceModelID *uint, rules []*models.PricingRule)
	Invalidate(ctx context.Context) error
}

// RuleCacheImpl implements RuleCache on Redis. A nil client degrades to a
// pass-through (every read misses, writes are no-ops), so the engine keeps
// serving quotes when the cache is down or disabled.
type RuleCacheImpl struct {
	rc     *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRuleCache creates a rule cache. ttl must be positive; cached prices
// may lag a rule write by at most a few seconds.
func NewRuleCache(rc *redis.Client, prefix string, ttl time.Duration) RuleCache {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &RuleCacheImpl{rc: rc, prefix: prefix, ttl: ttl}
}

func (c *RuleCacheImpl) versionKey() string {
	return fmt.Sprintf("%s:pricing_rules:version", c.prefix)
}

func (c *RuleCacheImpl) candidatesKey(version int64, repairType string, deviceModelID *uint) string {
	device := "generic"
	if deviceModelID != nil {
		device = fmt.Sprintf("d%d", *deviceModelID)
	}
	return fmt.Sprintf("%s:pricing_rules:v%d:%s:%s", c.prefix, version, repairType, device)
}

func (c *RuleCacheImpl) currentVersion(ctx context.Context) (int64, error) {
	v, err := c.rc.Get(ctx, c.versionKey()).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, err
	}
	return v, nil
}

// GetCandidates returns the cached candidate set for a lookup key, if present.
func (c *RuleCacheImpl) GetCandidates(ctx context.Context, repairType string, deviceModelID *uint) ([]*models.PricingRule, bool) {
	if c.rc == nil {
		return nil, false
	}

	version, err := c.currentVersion(ctx)
	if err != nil {
		return nil, false
	}

	bs, err := c.rc.Get(ctx, c.candidatesKey(version, repairType, deviceModelID)).Bytes()
	if err != nil || len(bs) == 0 {
		return nil, false
	}

	var rules []*models.PricingRule
	if err := json.Unmarshal(bs, &rules); err != nil {
		return nil, false
	}
	return rules, true
}

// SetCandidates stores a candidate set under the current namespace version.
// Cache write failures are logged and swallowed; the caller already has the
// authoritative rows.
func (c *RuleCacheImpl) SetCandidates(ctx context.Context, repairType string, deviceModelID *uint, rules []*models.PricingRule) {
	if c.rc == nil {
		return
	}

	version, err := c.currentVersion(ctx)
	if err != nil {
		return
	}

	bs, err := json.Marshal(rules)
	if err != nil {
		return
	}

	if err := c.rc.Set(ctx, c.candidatesKey(version, repairType, deviceModelID), bs, c.ttl).Err(); err != nil {
		log.Printf("rule cache set failed: %v", err)
	}
}

// Invalidate bumps the namespace version so all cached candidate sets become
// unreachable. Called after every successful rule write.
func (c *RuleCacheImpl) Invalidate(ctx context.Context) error {
	if c.rc == nil {
		return nil
	}
	return c.rc.Incr(ctx, c.versionKey()).Err()
}
