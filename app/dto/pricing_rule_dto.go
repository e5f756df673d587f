package dto

import (
	"github.com/shopspring/decimal"
)

// PricingRuleDTO is the API representation of a pricing rule.
type PricingRuleDTO struct {
	ID                   uint            `json:"id"`
	UUID                 string          `json:"uuid"`
	DeviceModelID        *uint           `json:"device_model_id,omitempty"`
	RepairType           string          `json:"repair_type"`
	BasePrice            decimal.Decimal `json:"base_price"`
	Currency             string          `json:"currency"`
	UrgencyMultiplier    float64         `json:"urgency_multiplier"`
	ComplexityMultiplier float64         `json:"complexity_multiplier"`
	MarketDemand         float64         `json:"market_demand"`
	SeasonalFactor       float64         `json:"seasonal_factor"`
	IsActive             bool            `json:"is_active"`
	ValidFrom            string          `json:"valid_from"`
	ValidUntil           *string         `json:"valid_until,omitempty"`
	CreatedAt            string          `json:"created_at"`
	UpdatedAt            string          `json:"updated_at"`
}

// CreatePricingRuleRequest is the payload for creating a pricing rule.
// Multipliers default to 1.0 when omitted. ValidFrom defaults to now.
type CreatePricingRuleRequest struct {
	DeviceModelID        *uint           `json:"device_model_id,omitempty"`
	RepairType           string          `json:"repair_type" validate:"required"`
	BasePrice            decimal.Decimal `json:"base_price"`
	Currency             string          `json:"currency,omitempty" validate:"omitempty,len=3"`
	UrgencyMultiplier    *float64        `json:"urgency_multiplier,omitempty"`
	ComplexityMultiplier *float64        `json:"complexity_multiplier,omitempty"`
	MarketDemand         *float64        `json:"market_demand,omitempty"`
	SeasonalFactor       *float64        `json:"seasonal_factor,omitempty"`
	ValidFrom            *string         `json:"valid_from,omitempty"`
	ValidUntil           *string         `json:"valid_until,omitempty"`
}

type CreatePricingRuleResponse struct {
	Message string         `json:"message"`
	Rule    PricingRuleDTO `json:"rule"`
}

// UpdatePricingRuleRequest carries a partial update plus the optimistic
// concurrency version. ExpectedUpdatedAt must echo the updated_at the client
// last fetched; a stale value is rejected as a conflict.
type UpdatePricingRuleRequest struct {
	ExpectedUpdatedAt    string           `json:"expected_updated_at" validate:"required"`
	BasePrice            *decimal.Decimal `json:"base_price,omitempty"`
	Currency             *string          `json:"currency,omitempty" validate:"omitempty,len=3"`
	UrgencyMultiplier    *float64         `json:"urgency_multiplier,omitempty"`
	ComplexityMultiplier *float64         `json:"complexity_multiplier,omitempty"`
	MarketDemand         *float64         `json:"market_demand,omitempty"`
	SeasonalFactor       *float64         `json:"seasonal_factor,omitempty"`
	ValidFrom            *string          `json:"valid_from,omitempty"`
	ValidUntil           *string          `json:"valid_until,omitempty"`
	ClearValidUntil      bool             `json:"clear_valid_until,omitempty"`
}

type UpdatePricingRuleResponse struct {
	Message string         `json:"message"`
	Rule    PricingRuleDTO `json:"rule"`
}

type DeactivatePricingRuleResponse struct {
	Message string         `json:"message"`
	Rule    PricingRuleDTO `json:"rule"`
}

// ListPricingRulesRequest collects the query-string filters of the admin list
// endpoint.
type ListPricingRulesRequest struct {
	Page          int     `json:"page"`
	PageSize      int     `json:"page_size"`
	RepairType    *string `json:"repair_type,omitempty"`
	DeviceModelID *uint   `json:"device_model_id,omitempty"`
	GenericOnly   bool    `json:"generic_only,omitempty"`
	IsActive      *bool   `json:"is_active,omitempty"`
	ActiveAt      *string `json:"active_at,omitempty"`
}

type ListPricingRulesResponse struct {
	Message    string           `json:"message"`
	Items      []PricingRuleDTO `json:"items"`
	Pagination PaginationDTO    `json:"pagination"`
}

type ListRepairTypesResponse struct {
	Message string   `json:"message"`
	Items   []string `json:"items"`
}
