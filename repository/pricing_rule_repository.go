package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/revivatech/pricing-engine/models"
	"gorm.io/gorm"
)

// PricingRuleRepositoryImpl implements PricingRuleRepository
type PricingRuleRepositoryImpl struct {
	*BaseRepository[models.PricingRule, models.PricingRuleFilter]
}

// NewPricingRuleRepository creates a new repository for pricing rules
func NewPricingRuleRepository(db *gorm.DB) PricingRuleRepository {
	return &PricingRuleRepositoryImpl{
		BaseRepository: NewBaseRepository[models.PricingRule, models.PricingRuleFilter](db),
	}
}

// ByUUID retrieves a pricing rule by UUID.
func (r *PricingRuleRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.PricingRule, error) {
	db := r.getDB(ctx)
	var rule models.PricingRule
	err := db.Where("uuid = ?", uuid).Last(&rule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find pricing rule by UUID %s: %w", uuid, err)
	}
	return &rule, nil
}

// ListCandidates returns the active rules that can price (deviceModelID, repairType)
// at instant `at`. ValidFrom is inclusive, ValidUntil exclusive. Device-specific
// rows come first, then latest valid_from, then highest id, so callers can take
// the head of the slice as the winning rule.
func (r *PricingRuleRepositoryImpl) ListCandidates(ctx context.Context, repairType string, deviceModelID *uint, at time.Time) ([]*models.PricingRule, error) {
	db := r.getDB(ctx)

	query := db.Model(&models.PricingRule{}).
		Where("repair_type = ?", repairType).
		Where("is_active = ?", true).
		Where("valid_from <= ?", at).
		Where("valid_until IS NULL OR valid_until > ?", at)

	if deviceModelID != nil {
		query = query.Where("device_model_id = ? OR device_model_id IS NULL", *deviceModelID)
	} else {
		query = query.Where("device_model_id IS NULL")
	}

	var rules []*models.PricingRule
	err := query.
		Order("device_model_id IS NULL ASC").
		Order("valid_from DESC").
		Order("id DESC").
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list candidate pricing rules: %w", err)
	}
	return rules, nil
}

// ListOverlapping returns active rules with the same (device, repair type) key
// whose window intersects [from, until). Used by the write path to keep the
// one-active-rule-per-key invariant.
func (r *PricingRuleRepositoryImpl) ListOverlapping(ctx context.Context, repairType string, deviceModelID *uint, from time.Time, until *time.Time, excludeID uint) ([]*models.PricingRule, error) {
	db := r.getDB(ctx)

	query := db.Model(&models.PricingRule{}).
		Where("repair_type = ?", repairType).
		Where("is_active = ?", true)

	if deviceModelID != nil {
		query = query.Where("device_model_id = ?", *deviceModelID)
	} else {
		query = query.Where("device_model_id IS NULL")
	}
	if excludeID != 0 {
		query = query.Where("id <> ?", excludeID)
	}

	// Window intersection: existing.valid_from < until AND (existing.valid_until IS NULL OR existing.valid_until > from)
	if until != nil {
		query = query.Where("valid_from < ?", *until)
	}
	query = query.Where("valid_until IS NULL OR valid_until > ?", from)

	var rules []*models.PricingRule
	if err := query.Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to list overlapping pricing rules: %w", err)
	}
	return rules, nil
}

// UpdateChecked writes the changes only when updated_at still matches the
// version the caller fetched. Zero affected rows on an existing rule means a
// concurrent edit won.
func (r *PricingRuleRepositoryImpl) UpdateChecked(ctx context.Context, id uint, expectedUpdatedAt time.Time, changes map[string]any) (int64, error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return 0, err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	res := db.Model(&models.PricingRule{}).
		Where("id = ? AND updated_at = ?", id, expectedUpdatedAt).
		Updates(changes)
	if res.Error != nil {
		err = fmt.Errorf("failed to update pricing rule %d: %w", id, res.Error)
		return 0, err
	}
	return res.RowsAffected, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *PricingRuleRepositoryImpl) applyFilter(db *gorm.DB, filter models.PricingRuleFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.DeviceModelID != nil {
		db = db.Where("device_model_id = ?", *filter.DeviceModelID)
	} else if filter.GenericOnly {
		db = db.Where("device_model_id IS NULL")
	}
	if filter.RepairType != nil {
		db = db.Where("repair_type = ?", *filter.RepairType)
	}
	if filter.IsActive != nil {
		db = db.Where("is_active = ?", *filter.IsActive)
	}
	if filter.ActiveAt != nil {
		db = db.Where("valid_from <= ?", *filter.ActiveAt).
			Where("valid_until IS NULL OR valid_until > ?", *filter.ActiveAt)
	}
	if filter.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		db = db.Where("created_at <= ?", *filter.CreatedBefore)
	}
	return db
}

// ByFilter retrieves pricing rules based on filter criteria.
func (r *PricingRuleRepositoryImpl) ByFilter(ctx context.Context, filter models.PricingRuleFilter, orderBy string, limit, offset int) ([]*models.PricingRule, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.PricingRule{})

	query = r.applyFilter(query, filter)

	if orderBy == "" {
		orderBy = "created_at DESC"
	}
	query = query.Order(orderBy)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var rules []*models.PricingRule
	if err := query.Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to list pricing rules: %w", err)
	}
	return rules, nil
}

// Count returns the number of pricing rules matching the filter.
func (r *PricingRuleRepositoryImpl) Count(ctx context.Context, filter models.PricingRuleFilter) (int64, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.PricingRule{})
	query = r.applyFilter(query, filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count pricing rules: %w", err)
	}
	return count, nil
}

// Exists checks if any pricing rule matching the filter exists.
func (r *PricingRuleRepositoryImpl) Exists(ctx context.Context, filter models.PricingRuleFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
