package testing

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/revivatech/pricing-engine/models"
	"github.com/revivatech/pricing-engine/utils"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestDeviceModel creates a device catalog entry with a randomized name
// so repeated calls never collide.
func (tf *TestFixtures) CreateTestDeviceModel(brand, category string) (*models.DeviceModel, error) {
	year := 2023
	device := &models.DeviceModel{
		UUID:     uuid.New(),
		Brand:    brand,
		Name:     fmt.Sprintf("Test Model %06d", rand.Intn(1000000)),
		Category: category,
		Year:     &year,
		IsActive: utils.ToPtr(true),
	}

	if err := tf.DB.DB.Create(device).Error; err != nil {
		return nil, fmt.Errorf("failed to create test device model: %w", err)
	}

	return device, nil
}

// CreateTestPricingRule creates an active pricing rule for the given repair
// type. A nil deviceModelID produces a generic fallback rule. The validity
// window opens an hour in the past and stays open-ended.
func (tf *TestFixtures) CreateTestPricingRule(repairType string, deviceModelID *uint, basePrice string) (*models.PricingRule, error) {
	rule := &models.PricingRule{
		UUID:                 uuid.New(),
		DeviceModelID:        deviceModelID,
		RepairType:           repairType,
		BasePrice:            decimal.RequireFromString(basePrice),
		Currency:             models.DefaultCurrency,
		UrgencyMultiplier:    1.5,
		ComplexityMultiplier: 1.0,
		MarketDemand:         1.0,
		SeasonalFactor:       1.0,
		IsActive:             utils.ToPtr(true),
		ValidFrom:            utils.UTCNow().Add(-1 * time.Hour),
	}

	if err := tf.DB.DB.Create(rule).Error; err != nil {
		return nil, fmt.Errorf("failed to create test pricing rule: %w", err)
	}

	return rule, nil
}

// CreateTestAdmin creates an active admin account whose password is the
// supplied plaintext, hashed with a low bcrypt cost to keep tests fast.
func (tf *TestFixtures) CreateTestAdmin(username, password string) (*models.Admin, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash test admin password: %w", err)
	}

	admin := &models.Admin{
		UUID:         uuid.New(),
		Username:     username,
		PasswordHash: string(hash),
		IsActive:     utils.ToPtr(true),
	}

	if err := tf.DB.DB.Create(admin).Error; err != nil {
		return nil, fmt.Errorf("failed to create test admin: %w", err)
	}

	return admin, nil
}
