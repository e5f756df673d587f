// Package businessflow contains the business logic for the pricing engine.
package businessflow

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/revivatech/pricing-engine/app/dto"
	"github.com/revivatech/pricing-engine/models"
	"github.com/revivatech/pricing-engine/repository"
	"github.com/revivatech/pricing-engine/utils"
)

// ClientMetadata holds client-related information for audit logging
type ClientMetadata struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
	RequestID string `json:"request_id,omitempty"`
	AdminID   *uint  `json:"admin_id,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}
}

// MetadataFromContext rebuilds ClientMetadata from the request-scoped values
// handlers put into the context.
func MetadataFromContext(ctx context.Context) *ClientMetadata {
	md := &ClientMetadata{}
	if v, ok := ctx.Value(utils.IPAddressKey).(string); ok {
		md.IPAddress = v
	}
	if v, ok := ctx.Value(utils.UserAgentKey).(string); ok {
		md.UserAgent = v
	}
	if v, ok := ctx.Value(utils.RequestIDKey).(string); ok {
		md.RequestID = v
	}
	if v, ok := ctx.Value(utils.AdminIDKey).(uint); ok {
		md.AdminID = &v
	}
	return md
}

// recordAudit writes an audit entry for an administrative action. Audit
// failures are logged, never propagated: they must not fail the mutation
// they describe.
func recordAudit(ctx context.Context, auditRepo repository.AuditLogRepository, action string, entityUUID *string, description string, success bool, errMsg *string, extra map[string]any) {
	if auditRepo == nil {
		return
	}

	md := MetadataFromContext(ctx)

	var metadata json.RawMessage
	if len(extra) > 0 {
		if bs, err := json.Marshal(extra); err == nil {
			metadata = bs
		}
	}

	entry := &models.AuditLog{
		AdminID:      md.AdminID,
		Action:       action,
		EntityUUID:   entityUUID,
		Description:  utils.ToPtr(description),
		Success:      utils.ToPtr(success),
		ErrorMessage: errMsg,
		Metadata:     metadata,
		CreatedAt:    utils.UTCNow(),
	}
	if md.IPAddress != "" {
		entry.IPAddress = utils.ToPtr(md.IPAddress)
	}
	if md.UserAgent != "" {
		entry.UserAgent = utils.ToPtr(md.UserAgent)
	}
	if md.RequestID != "" {
		entry.RequestID = utils.ToPtr(md.RequestID)
	}

	if err := auditRepo.Save(ctx, entry); err != nil {
		log.Printf("failed to record audit entry for %s: %v", action, err)
	}
}

// ToPricingRuleDTO converts a pricing rule model to its API representation.
func ToPricingRuleDTO(rule models.PricingRule) dto.PricingRuleDTO {
	d := dto.PricingRuleDTO{
		ID:                   rule.ID,
		UUID:                 rule.UUID.String(),
		DeviceModelID:        rule.DeviceModelID,
		RepairType:           rule.RepairType,
		BasePrice:            rule.BasePrice,
		Currency:             rule.Currency,
		UrgencyMultiplier:    rule.UrgencyMultiplier,
		ComplexityMultiplier: rule.ComplexityMultiplier,
		MarketDemand:         rule.MarketDemand,
		SeasonalFactor:       rule.SeasonalFactor,
		IsActive:             utils.IsTrue(rule.IsActive),
		ValidFrom:            rule.ValidFrom.Format(time.RFC3339Nano),
		CreatedAt:            rule.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:            rule.UpdatedAt.Format(time.RFC3339Nano),
	}
	if rule.ValidUntil != nil {
		d.ValidUntil = utils.ToPtr(rule.ValidUntil.Format(time.RFC3339Nano))
	}
	return d
}

// ToDeviceModelDTO converts a device model to its API representation.
func ToDeviceModelDTO(dm models.DeviceModel) dto.DeviceModelDTO {
	return dto.DeviceModelDTO{
		ID:        dm.ID,
		UUID:      dm.UUID.String(),
		Brand:     dm.Brand,
		Name:      dm.Name,
		Category:  dm.Category,
		Year:      dm.Year,
		IsActive:  utils.IsTrue(dm.IsActive),
		CreatedAt: dm.CreatedAt.Format(time.RFC3339),
	}
}

// ToBreakdownDTO converts a computed price breakdown to its API representation.
func ToBreakdownDTO(b models.PriceBreakdown) dto.PriceBreakdownDTO {
	return dto.PriceBreakdownDTO{
		BasePrice:            b.BasePrice,
		Currency:             b.Currency,
		UrgencyMultiplier:    b.UrgencyMultiplier,
		ComplexityMultiplier: b.ComplexityMultiplier,
		MarketDemand:         b.MarketDemand,
		SeasonalFactor:       b.SeasonalFactor,
		CompositeMultiplier:  b.CompositeMultiplier,
	}
}
