// Package models contains domain entities and business models for the pricing engine
package models

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Repair type constants (fixed enumeration shared with the booking platform)
const (
	RepairTypeScreenRepair       = "screen_repair"
	RepairTypeBatteryReplacement = "battery_replacement"
	RepairTypeWaterDamage        = "water_damage"
	RepairTypeDataRecovery       = "data_recovery"
	RepairTypeSoftwareIssue      = "software_issue"
	RepairTypeHardwareDiagnostic = "hardware_diagnostic"
	RepairTypeMotherboardRepair  = "motherboard_repair"
	RepairTypeCameraRepair       = "camera_repair"
	RepairTypeSpeakerRepair      = "speaker_repair"
	RepairTypeChargingPort       = "charging_port"
	RepairTypeButtonRepair       = "button_repair"
	RepairTypeCustomRepair       = "custom_repair"
)

// MultiplierCeiling is the sanity ceiling for every individual multiplier.
// Values above it are rejected at rule-write time, never clamped at quote time.
const MultiplierCeiling = 10.0

var validRepairTypes = map[string]bool{
	RepairTypeScreenRepair:       true,
	RepairTypeBatteryReplacement: true,
	RepairTypeWaterDamage:        true,
	RepairTypeDataRecovery:       true,
	RepairTypeSoftwareIssue:      true,
	RepairTypeHardwareDiagnostic: true,
	RepairTypeMotherboardRepair:  true,
	RepairTypeCameraRepair:       true,
	RepairTypeSpeakerRepair:      true,
	RepairTypeChargingPort:       true,
	RepairTypeButtonRepair:       true,
	RepairTypeCustomRepair:       true,
}

// IsValidRepairType reports whether s is a member of the repair type enumeration.
func IsValidRepairType(s string) bool {
	return validRepairTypes[s]
}

// RepairTypes returns the full repair type enumeration.
func RepairTypes() []string {
	return []string{
		RepairTypeScreenRepair,
		RepairTypeBatteryReplacement,
		RepairTypeWaterDamage,
		RepairTypeDataRecovery,
		RepairTypeSoftwareIssue,
		RepairTypeHardwareDiagnostic,
		RepairTypeMotherboardRepair,
		RepairTypeCameraRepair,
		RepairTypeSpeakerRepair,
		RepairTypeChargingPort,
		RepairTypeButtonRepair,
		RepairTypeCustomRepair,
	}
}

// currencyMinorUnits maps supported currency codes to their minor-unit decimal places.
var currencyMinorUnits = map[string]int32{
	"GBP": 2,
	"BRL": 2,
	"EUR": 2,
	"USD": 2,
}

const DefaultCurrency = "GBP"

// CurrencyMinorUnits returns the number of decimal places for a currency code,
// and whether the currency is supported.
func CurrencyMinorUnits(code string) (int32, bool) {
	places, ok := currencyMinorUnits[code]
	return places, ok
}

// PricingRule stores a pricing policy for a (device model, repair type) pair.
// A nil DeviceModelID makes the rule a generic fallback for its repair type.
// Rows are soft-deactivated (IsActive=false), never deleted, to preserve the
// historical pricing audit trail.
// Table: pricing_rules
type PricingRule struct {
	ID   uint      `gorm:"primaryKey" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_pricing_rules_uuid" json:"uuid"`

	DeviceModelID *uint        `gorm:"index:idx_pricing_rules_device_model_id" json:"device_model_id,omitempty"`
	DeviceModel   *DeviceModel `gorm:"foreignKey:DeviceModelID;references:ID" json:"device_model,omitempty"`
	RepairType    string       `gorm:"size:50;not null;index:idx_pricing_rules_repair_type" json:"repair_type"`

	BasePrice decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"base_price"`
	Currency  string          `gorm:"size:3;not null;default:'GBP'" json:"currency"`

	UrgencyMultiplier    float64 `gorm:"type:numeric(10,4);not null;default:1.0" json:"urgency_multiplier"`
	ComplexityMultiplier float64 `gorm:"type:numeric(10,4);not null;default:1.0" json:"complexity_multiplier"`
	MarketDemand         float64 `gorm:"type:numeric(10,4);not null;default:1.0" json:"market_demand"`
	SeasonalFactor       float64 `gorm:"type:numeric(10,4);not null;default:1.0" json:"seasonal_factor"`

	IsActive   *bool      `gorm:"default:true;index:idx_pricing_rules_is_active" json:"is_active"`
	ValidFrom  time.Time  `gorm:"not null;index:idx_pricing_rules_valid_from" json:"valid_from"`
	ValidUntil *time.Time `gorm:"index:idx_pricing_rules_valid_until" json:"valid_until,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_pricing_rules_created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (PricingRule) TableName() string {
	return "pricing_rules"
}

// PricingRuleFilter represents filter criteria for pricing rule queries
type PricingRuleFilter struct {
	ID            *uint
	UUID          *uuid.UUID
	DeviceModelID *uint
	GenericOnly   bool
	RepairType    *string
	IsActive      *bool
	ActiveAt      *time.Time
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

// MatchesAt reports whether the rule's validity window covers t.
// ValidFrom is inclusive, ValidUntil is exclusive.
func (r *PricingRule) MatchesAt(t time.Time) bool {
	if r.ValidFrom.After(t) {
		return false
	}
	if r.ValidUntil != nil && !t.Before(*r.ValidUntil) {
		return false
	}
	return true
}

// IsDeviceSpecific reports whether the rule targets a single device model.
func (r *PricingRule) IsDeviceSpecific() bool {
	return r.DeviceModelID != nil
}

// QuoteContext carries the request-side inputs of a price resolution.
// ComplexityOverride, when set, supersedes the rule's stored complexity
// multiplier (technician-assessed difficulty).
type QuoteContext struct {
	IsUrgent           bool
	ComplexityOverride *float64
}

// PriceBreakdown itemizes a computed quote so callers can render transparent
// pricing instead of a black-box number.
type PriceBreakdown struct {
	BasePrice            decimal.Decimal `json:"base_price"`
	Currency             string          `json:"currency"`
	UrgencyMultiplier    float64         `json:"urgency_multiplier"`
	ComplexityMultiplier float64         `json:"complexity_multiplier"`
	MarketDemand         float64         `json:"market_demand"`
	SeasonalFactor       float64         `json:"seasonal_factor"`
	CompositeMultiplier  float64         `json:"composite_multiplier"`
	FinalPrice           decimal.Decimal `json:"final_price"`
}

// validFactor rejects the values that must never reach a customer bill:
// negatives and non-finite floats from corrupted rows.
func validFactor(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// CompositeMultiplier resolves the single multiplier applied to the base price:
//
//	(urgency if urgent else 1.0) * effectiveComplexity * marketDemand * seasonalFactor
//
// It returns ok=false when any resolved factor is negative or non-finite;
// the engine surfaces that as an invalid-multiplier failure rather than
// silently defaulting to 1.0.
func (r *PricingRule) CompositeMultiplier(qc QuoteContext) (float64, bool) {
	urgency := 1.0
	if qc.IsUrgent {
		urgency = r.UrgencyMultiplier
	}

	complexity := r.ComplexityMultiplier
	if qc.ComplexityOverride != nil {
		complexity = *qc.ComplexityOverride
	}

	for _, f := range []float64{urgency, complexity, r.MarketDemand, r.SeasonalFactor} {
		if !validFactor(f) {
			return 0, false
		}
	}

	composite := urgency * complexity * r.MarketDemand * r.SeasonalFactor
	if !validFactor(composite) {
		return 0, false
	}
	return composite, true
}

// CalculateQuote computes the final price and its breakdown. The computation
// is pure and deterministic: the same rule and context always produce the
// same quote, which quote-then-confirm flows rely on.
// Rounding is half-up to the currency's minor unit.
func (r *PricingRule) CalculateQuote(qc QuoteContext) (*PriceBreakdown, bool) {
	composite, ok := r.CompositeMultiplier(qc)
	if !ok {
		return nil, false
	}
	if r.BasePrice.IsNegative() {
		return nil, false
	}

	places, ok := CurrencyMinorUnits(r.Currency)
	if !ok {
		places, _ = CurrencyMinorUnits(DefaultCurrency)
	}

	urgency := 1.0
	if qc.IsUrgent {
		urgency = r.UrgencyMultiplier
	}
	complexity := r.ComplexityMultiplier
	if qc.ComplexityOverride != nil {
		complexity = *qc.ComplexityOverride
	}

	raw := r.BasePrice.Mul(decimal.NewFromFloat(composite))
	// decimal.Round rounds half away from zero, which is half-up for the
	// non-negative prices this engine produces.
	final := raw.Round(places)

	return &PriceBreakdown{
		BasePrice:            r.BasePrice,
		Currency:             r.Currency,
		UrgencyMultiplier:    urgency,
		ComplexityMultiplier: complexity,
		MarketDemand:         r.MarketDemand,
		SeasonalFactor:       r.SeasonalFactor,
		CompositeMultiplier:  composite,
		FinalPrice:           final,
	}, true
}

// OverlapsWindow reports whether the rule's validity window intersects
// [from, until). A nil until means open-ended.
func (r *PricingRule) OverlapsWindow(from time.Time, until *time.Time) bool {
	if r.ValidUntil != nil && !r.ValidUntil.After(from) {
		return false
	}
	if until != nil && !until.After(r.ValidFrom) {
		return false
	}
	return true
}
