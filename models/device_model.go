package models

import (
	"time"

	"github.com/google/uuid"
)

// Device category constants
const (
	DeviceCategorySmartphone = "smartphone"
	DeviceCategoryTablet     = "tablet"
	DeviceCategoryLaptop     = "laptop"
	DeviceCategoryDesktop    = "desktop"
	DeviceCategoryConsole    = "console"
	DeviceCategoryWearable   = "wearable"
)

var validDeviceCategories = map[string]bool{
	DeviceCategorySmartphone: true,
	DeviceCategoryTablet:     true,
	DeviceCategoryLaptop:     true,
	DeviceCategoryDesktop:    true,
	DeviceCategoryConsole:    true,
	DeviceCategoryWearable:   true,
}

// IsValidDeviceCategory reports whether s is a known device category.
func IsValidDeviceCategory(s string) bool {
	return validDeviceCategories[s]
}

// DeviceModel represents an entry in the device catalog. Quotes reference a
// device model to pick up device-specific pricing rules; the category feeds
// the generic-rule fallback.
// Table: device_models
type DeviceModel struct {
	ID   uint      `gorm:"primaryKey" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_device_models_uuid" json:"uuid"`

	Brand    string `gorm:"size:100;not null;index:idx_device_models_brand" json:"brand"`
	Name     string `gorm:"size:255;not null" json:"name"`
	Category string `gorm:"size:50;not null;index:idx_device_models_category" json:"category"`
	Year     *int   `json:"year,omitempty"`

	IsActive  *bool     `gorm:"default:true;index:idx_device_models_is_active" json:"is_active"`
	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_device_models_created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (DeviceModel) TableName() string {
	return "device_models"
}

// DeviceModelFilter represents filter criteria for device model queries
type DeviceModelFilter struct {
	ID       *uint
	UUID     *uuid.UUID
	Brand    *string
	Category *string
	IsActive *bool
}
