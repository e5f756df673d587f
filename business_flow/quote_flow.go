package businessflow

import (
	"context"
	"fmt"
	"time"

	"github.com/revivatech/pricing-engine/app/dto"
	"github.com/revivatech/pricing-engine/app/services"
	"github.com/revivatech/pricing-engine/models"
	"github.com/revivatech/pricing-engine/repository"
	"github.com/revivatech/pricing-engine/utils"
)

// QuoteFlow resolves repair prices from the active rule set.
type QuoteFlow interface {
	ResolvePrice(ctx context.Context, req *dto.QuoteRequest) (*dto.QuoteResponse, error)
	AdminPreviewQuote(ctx context.Context, req *dto.AdminQuotePreviewRequest) (*dto.QuoteResponse, error)
}

type QuoteFlowImpl struct {
	pricingRuleRepo repository.PricingRuleRepository
	deviceModelRepo repository.DeviceModelRepository
	ruleCache       services.RuleCache
}

func NewQuoteFlow(
	pricingRuleRepo repository.PricingRuleRepository,
	deviceModelRepo repository.DeviceModelRepository,
	ruleCache services.RuleCache,
) QuoteFlow {
	return &QuoteFlowImpl{
		pricingRuleRepo: pricingRuleRepo,
		deviceModelRepo: deviceModelRepo,
		ruleCache:       ruleCache,
	}
}

// ResolvePrice resolves the quote for a (device, repair type) pair at the
// current instant. Rule lookups go through the short-TTL cache.
func (f *QuoteFlowImpl) ResolvePrice(ctx context.Context, req *dto.QuoteRequest) (*dto.QuoteResponse, error) {
	return f.resolveAt(ctx, req, utils.UTCNow(), true)
}

// AdminPreviewQuote resolves a quote at an arbitrary evaluation time so a
// future pricing window can be inspected before it opens. Bypasses the cache:
// cached candidate sets are only valid for "now".
func (f *QuoteFlowImpl) AdminPreviewQuote(ctx context.Context, req *dto.AdminQuotePreviewRequest) (*dto.QuoteResponse, error) {
	at := utils.UTCNow()
	if req.At != nil {
		parsed, err := time.Parse(time.RFC3339, *req.At)
		if err != nil {
			return nil, NewBusinessError("QUOTE_INVALID_AT", "Evaluation time must be RFC3339", err)
		}
		at = parsed.UTC()
	}
	return f.resolveAt(ctx, &req.QuoteRequest, at, false)
}

func (f *QuoteFlowImpl) resolveAt(ctx context.Context, req *dto.QuoteRequest, at time.Time, useCache bool) (*dto.QuoteResponse, error) {
	if !models.IsValidRepairType(req.RepairType) {
		return nil, NewBusinessErrorf("QUOTE_INVALID_REPAIR_TYPE", "Unknown repair type %q", ErrInvalidRepairType, req.RepairType)
	}
	if req.ComplexityOverride != nil {
		if v := *req.ComplexityOverride; v < 0 || v != v || v > models.MultiplierCeiling {
			return nil, NewBusinessError("QUOTE_INVALID_MULTIPLIER", "Complexity override is out of range", ErrInvalidMultiplier)
		}
	}

	if req.DeviceModelID != nil {
		device, err := f.deviceModelRepo.ByID(ctx, *req.DeviceModelID)
		if err != nil {
			return nil, NewBusinessError("QUOTE_DEVICE_LOOKUP_FAILED", "Failed to look up device model", err)
		}
		if device == nil {
			return nil, NewBusinessError("QUOTE_DEVICE_NOT_FOUND", "Device model not found", ErrDeviceNotFound)
		}
		if !utils.IsTrue(device.IsActive) {
			return nil, NewBusinessError("QUOTE_DEVICE_INACTIVE", "Device model is inactive", ErrDeviceInactive)
		}
	}

	candidates, err := f.loadCandidates(ctx, req.RepairType, req.DeviceModelID, at, useCache)
	if err != nil {
		return nil, NewBusinessError("QUOTE_RULE_LOOKUP_FAILED", "Failed to look up pricing rules", err)
	}

	rule := SelectRule(candidates, at)
	if rule == nil {
		return nil, NewBusinessError("NO_PRICING_RULE_FOUND", "No pricing rule matches this request", ErrNoPricingRuleFound)
	}

	breakdown, ok := rule.CalculateQuote(models.QuoteContext{
		IsUrgent:           req.IsUrgent,
		ComplexityOverride: req.ComplexityOverride,
	})
	if !ok {
		return nil, NewBusinessErrorf("INVALID_MULTIPLIER", "Pricing rule %s carries an invalid multiplier", ErrInvalidMultiplier, rule.UUID)
	}

	return &dto.QuoteResponse{
		Message:    "Price resolved successfully",
		RuleUUID:   rule.UUID.String(),
		RepairType: rule.RepairType,
		FinalPrice: breakdown.FinalPrice,
		Currency:   breakdown.Currency,
		Breakdown:  ToBreakdownDTO(*breakdown),
		QuotedAt:   at.Format(time.RFC3339),
	}, nil
}

// loadCandidates serves the candidate rule set from cache when allowed,
// falling back to the repository and populating the cache on a miss.
func (f *QuoteFlowImpl) loadCandidates(ctx context.Context, repairType string, deviceModelID *uint, at time.Time, useCache bool) ([]*models.PricingRule, error) {
	if useCache && f.ruleCache != nil {
		if rules, ok := f.ruleCache.GetCandidates(ctx, repairType, deviceModelID); ok {
			return rules, nil
		}
	}

	rules, err := f.pricingRuleRepo.ListCandidates(ctx, repairType, deviceModelID, at)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	if useCache && f.ruleCache != nil {
		f.ruleCache.SetCandidates(ctx, repairType, deviceModelID, rules)
	}
	return rules, nil
}

// SelectRule picks the winning rule among candidates still valid at `at`.
// Device-specific rules beat generic ones regardless of recency. Overlapping
// rules with the same key are a data-integrity anomaly; the tie-break is
// latest ValidFrom, then highest ID (a documented policy default, see
// DESIGN.md, pending business sign-off).
func SelectRule(candidates []*models.PricingRule, at time.Time) *models.PricingRule {
	var best *models.PricingRule
	for _, r := range candidates {
		if r == nil || !utils.IsTrue(r.IsActive) || !r.MatchesAt(at) {
			continue
		}
		if best == nil {
			best = r
			continue
		}
		if r.IsDeviceSpecific() != best.IsDeviceSpecific() {
			if r.IsDeviceSpecific() {
				best = r
			}
			continue
		}
		if r.ValidFrom.After(best.ValidFrom) {
			best = r
			continue
		}
		if r.ValidFrom.Equal(best.ValidFrom) && r.ID > best.ID {
			best = r
		}
	}
	return best
}
