package models

import (
	"encoding/json"
	"time"
)

// AuditLog records every administrative mutation of pricing data. Pricing
// rows are never hard-deleted, and this table keeps the who/when/what of
// each change alongside them.
type AuditLog struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	AdminID      *uint           `gorm:"index:idx_audit_admin_id" json:"admin_id,omitempty"`
	Admin        *Admin          `gorm:"foreignKey:AdminID;references:ID" json:"admin,omitempty"`
	Action       string          `gorm:"size:50;not null;index:idx_audit_action" json:"action"`
	EntityUUID   *string         `gorm:"size:36;index:idx_audit_entity_uuid" json:"entity_uuid,omitempty"`
	Description  *string         `gorm:"type:text" json:"description,omitempty"`
	IPAddress    *string         `gorm:"type:inet" json:"ip_address,omitempty"`
	UserAgent    *string         `gorm:"type:text" json:"user_agent,omitempty"`
	RequestID    *string         `gorm:"size:255;index:idx_audit_request_id" json:"request_id,omitempty"`
	Metadata     json.RawMessage `gorm:"type:jsonb" json:"metadata,omitempty"`
	Success      *bool           `gorm:"default:true;index:idx_audit_success" json:"success"`
	ErrorMessage *string         `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time       `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_audit_created_at" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}

// Audit action constants
const (
	AuditActionRuleCreated        = "pricing_rule_created"
	AuditActionRuleUpdated        = "pricing_rule_updated"
	AuditActionRuleDeactivated    = "pricing_rule_deactivated"
	AuditActionDeviceModelCreated = "device_model_created"
	AuditActionAdminLoginSuccess  = "admin_login_success"
	AuditActionAdminLoginFailed   = "admin_login_failed"
)

// AuditLogFilter represents filter criteria for audit log queries
type AuditLogFilter struct {
	ID            *uint
	AdminID       *uint
	Action        *string
	EntityUUID    *string
	Success       *bool
	RequestID     *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

func (a *AuditLog) IsFailed() bool {
	return a.Success != nil && !*a.Success
}
