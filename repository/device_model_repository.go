package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/revivatech/pricing-engine/models"
	"gorm.io/gorm"
)

// DeviceModelRepositoryImpl implements DeviceModelRepository
type DeviceModelRepositoryImpl struct {
	*BaseRepository[models.DeviceModel, models.DeviceModelFilter]
}

// NewDeviceModelRepository creates a new repository for the device catalog
func NewDeviceModelRepository(db *gorm.DB) DeviceModelRepository {
	return &DeviceModelRepositoryImpl{
		BaseRepository: NewBaseRepository[models.DeviceModel, models.DeviceModelFilter](db),
	}
}

// ByUUID retrieves a device model by UUID.
func (r *DeviceModelRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.DeviceModel, error) {
	db := r.getDB(ctx)
	var dm models.DeviceModel
	err := db.Where("uuid = ?", uuid).Last(&dm).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find device model by UUID %s: %w", uuid, err)
	}
	return &dm, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *DeviceModelRepositoryImpl) applyFilter(db *gorm.DB, filter models.DeviceModelFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.Brand != nil {
		db = db.Where("brand = ?", *filter.Brand)
	}
	if filter.Category != nil {
		db = db.Where("category = ?", *filter.Category)
	}
	if filter.IsActive != nil {
		db = db.Where("is_active = ?", *filter.IsActive)
	}
	return db
}

// ByFilter retrieves device models based on filter criteria.
func (r *DeviceModelRepositoryImpl) ByFilter(ctx context.Context, filter models.DeviceModelFilter, orderBy string, limit, offset int) ([]*models.DeviceModel, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.DeviceModel{})

	query = r.applyFilter(query, filter)

	if orderBy == "" {
		orderBy = "brand ASC, name ASC"
	}
	query = query.Order(orderBy)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var rows []*models.DeviceModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list device models: %w", err)
	}
	return rows, nil
}

// Count returns the number of device models matching the filter.
func (r *DeviceModelRepositoryImpl) Count(ctx context.Context, filter models.DeviceModelFilter) (int64, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.DeviceModel{})
	query = r.applyFilter(query, filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count device models: %w", err)
	}
	return count, nil
}

// Exists checks if any device model matching the filter exists.
func (r *DeviceModelRepositoryImpl) Exists(ctx context.Context, filter models.DeviceModelFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
