package dto

import (
	"github.com/shopspring/decimal"
)

// QuoteRequest is the payload of the public price resolution endpoint.
// DeviceModelID is optional; without it only generic rules are considered.
type QuoteRequest struct {
	DeviceModelID      *uint    `json:"device_model_id,omitempty"`
	RepairType         string   `json:"repair_type" validate:"required"`
	IsUrgent           bool     `json:"is_urgent"`
	ComplexityOverride *float64 `json:"complexity_override,omitempty"`
}

// AdminQuotePreviewRequest is the admin variant that may pin the evaluation
// time, so a future pricing window can be previewed before it opens.
type AdminQuotePreviewRequest struct {
	QuoteRequest
	At *string `json:"at,omitempty"`
}

// PriceBreakdownDTO itemizes the factors behind a quote.
type PriceBreakdownDTO struct {
	BasePrice            decimal.Decimal `json:"base_price"`
	Currency             string          `json:"currency"`
	UrgencyMultiplier    float64         `json:"urgency_multiplier"`
	ComplexityMultiplier float64         `json:"complexity_multiplier"`
	MarketDemand         float64         `json:"market_demand"`
	SeasonalFactor       float64         `json:"seasonal_factor"`
	CompositeMultiplier  float64         `json:"composite_multiplier"`
}

type QuoteResponse struct {
	Message    string            `json:"message"`
	RuleUUID   string            `json:"rule_uuid"`
	RepairType string            `json:"repair_type"`
	FinalPrice decimal.Decimal   `json:"final_price"`
	Currency   string            `json:"currency"`
	Breakdown  PriceBreakdownDTO `json:"breakdown"`
	QuotedAt   string            `json:"quoted_at"`
}
