// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/revivatech/pricing-engine/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// PricingRuleRepository defines operations for pricing rules
type PricingRuleRepository interface {
	Repository[models.PricingRule, models.PricingRuleFilter]
	ByUUID(ctx context.Context, uuid string) (*models.PricingRule, error)
	// ListCandidates returns the active rules matching a repair type at the
	// given instant whose device scope is either the requested device or
	// generic (nil). Device-specific rows sort before generic ones, then by
	// descending validity start and ID so the first row is the winner under
	// the last-valid-from tie-break policy.
	ListCandidates(ctx context.Context, repairType string, deviceModelID *uint, at time.Time) ([]*models.PricingRule, error)
	// ListOverlapping returns active rules with the same (device, repair type)
	// key whose validity window intersects [from, until), excluding excludeID.
	ListOverlapping(ctx context.Context, repairType string, deviceModelID *uint, from time.Time, until *time.Time, excludeID uint) ([]*models.PricingRule, error)
	// UpdateChecked applies the column changes to the rule row only if its
	// updated_at still equals expectedUpdatedAt, returning the number of rows
	// written. Zero rows on an existing rule signals a concurrent edit.
	UpdateChecked(ctx context.Context, id uint, expectedUpdatedAt time.Time, changes map[string]any) (int64, error)
}

// DeviceModelRepository defines operations for the device catalog
type DeviceModelRepository interface {
	Repository[models.DeviceModel, models.DeviceModelFilter]
	ByUUID(ctx context.Context, uuid string) (*models.DeviceModel, error)
}

// AdminRepository defines operations for admin accounts
type AdminRepository interface {
	Repository[models.Admin, models.AdminFilter]
	ByUsername(ctx context.Context, username string) (*models.Admin, error)
	UpdateLastLogin(ctx context.Context, adminID uint, at time.Time) error
}

// AuditLogRepository defines operations for audit logs
type AuditLogRepository interface {
	Repository[models.AuditLog, models.AuditLogFilter]
	ListByAction(ctx context.Context, action string, limit, offset int) ([]*models.AuditLog, error)
}
