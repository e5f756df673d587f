package businessflow

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revivatech/pricing-engine/app/dto"
	"github.com/revivatech/pricing-engine/models"
	"github.com/revivatech/pricing-engine/utils"
)

type adminFlowEnv struct {
	ruleRepo   *fakePricingRuleRepo
	deviceRepo *fakeDeviceModelRepo
	auditRepo  *fakeAuditRepo
	cache      *fakeRuleCache
	flow       PricingRuleAdminFlow
}

func newAdminFlowEnv() *adminFlowEnv {
	env := &adminFlowEnv{
		ruleRepo:   &fakePricingRuleRepo{},
		deviceRepo: &fakeDeviceModelRepo{},
		auditRepo:  &fakeAuditRepo{},
		cache:      newFakeRuleCache(),
	}
	env.flow = NewPricingRuleAdminFlow(env.ruleRepo, env.deviceRepo, env.auditRepo, env.cache)
	return env
}

func TestCreateRule(t *testing.T) {
	ctx := context.Background()

	t.Run("DefaultsApplied", func(t *testing.T) {
		env := newAdminFlowEnv()
		resp, err := env.flow.CreateRule(ctx, &dto.CreatePricingRuleRequest{
			RepairType: models.RepairTypeScreenRepair,
			BasePrice:  decimal.RequireFromString("120.00"),
		})
		require.NoError(t, err)
		assert.Equal(t, "GBP", resp.Rule.Currency)
		assert.Equal(t, 1.0, resp.Rule.UrgencyMultiplier)
		assert.Equal(t, 1.0, resp.Rule.ComplexityMultiplier)
		assert.Equal(t, 1.0, resp.Rule.MarketDemand)
		assert.Equal(t, 1.0, resp.Rule.SeasonalFactor)
		assert.True(t, resp.Rule.IsActive)
		assert.NotEmpty(t, resp.Rule.UUID)
		assert.Nil(t, resp.Rule.ValidUntil)

		// Write path invalidates the cache and records an audit entry.
		assert.Equal(t, 1, env.cache.invalidations)
		assert.Len(t, env.auditRepo.byAction(models.AuditActionRuleCreated), 1)
	})

	t.Run("ExplicitWindowAndMultipliers", func(t *testing.T) {
		env := newAdminFlowEnv()
		from := utils.UTCNow().Add(24 * time.Hour).Format(time.RFC3339)
		until := utils.UTCNow().Add(48 * time.Hour).Format(time.RFC3339)

		resp, err := env.flow.CreateRule(ctx, &dto.CreatePricingRuleRequest{
			RepairType:        models.RepairTypeWaterDamage,
			BasePrice:         decimal.RequireFromString("250.00"),
			Currency:          "EUR",
			UrgencyMultiplier: utils.ToPtr(2.0),
			SeasonalFactor:    utils.ToPtr(0.9),
			ValidFrom:         &from,
			ValidUntil:        &until,
		})
		require.NoError(t, err)
		assert.Equal(t, "EUR", resp.Rule.Currency)
		assert.Equal(t, 2.0, resp.Rule.UrgencyMultiplier)
		assert.Equal(t, 0.9, resp.Rule.SeasonalFactor)
		require.NotNil(t, resp.Rule.ValidUntil)
	})

	t.Run("UnknownRepairType", func(t *testing.T) {
		env := newAdminFlowEnv()
		_, err := env.flow.CreateRule(ctx, &dto.CreatePricingRuleRequest{
			RepairType: "flux_capacitor",
			BasePrice:  decimal.RequireFromString("10.00"),
		})
		require.Error(t, err)
		assert.True(t, IsInvalidRepairType(err))

		// Rejections are audited as failures.
		failures := env.auditRepo.byAction(models.AuditActionRuleCreated)
		require.Len(t, failures, 1)
		assert.True(t, failures[0].IsFailed())
	})

	t.Run("NegativeBasePrice", func(t *testing.T) {
		env := newAdminFlowEnv()
		_, err := env.flow.CreateRule(ctx, &dto.CreatePricingRuleRequest{
			RepairType: models.RepairTypeScreenRepair,
			BasePrice:  decimal.RequireFromString("-1.00"),
		})
		require.Error(t, err)
		assert.True(t, IsNegativeBasePrice(err))
	})

	t.Run("UnsupportedCurrency", func(t *testing.T) {
		env := newAdminFlowEnv()
		_, err := env.flow.CreateRule(ctx, &dto.CreatePricingRuleRequest{
			RepairType: models.RepairTypeScreenRepair,
			BasePrice:  decimal.RequireFromString("10.00"),
			Currency:   "XYZ",
		})
		require.Error(t, err)
		assert.True(t, IsUnsupportedCurrency(err))
	})

	t.Run("MultiplierAboveCeiling", func(t *testing.T) {
		env := newAdminFlowEnv()
		_, err := env.flow.CreateRule(ctx, &dto.CreatePricingRuleRequest{
			RepairType:   models.RepairTypeScreenRepair,
			BasePrice:    decimal.RequireFromString("10.00"),
			MarketDemand: utils.ToPtr(models.MultiplierCeiling + 0.1),
		})
		require.Error(t, err)
		assert.True(t, IsMultiplierOutOfRange(err))
	})

	t.Run("NegativeMultiplier", func(t *testing.T) {
		env := newAdminFlowEnv()
		_, err := env.flow.CreateRule(ctx, &dto.CreatePricingRuleRequest{
			RepairType:        models.RepairTypeScreenRepair,
			BasePrice:         decimal.RequireFromString("10.00"),
			UrgencyMultiplier: utils.ToPtr(-0.5),
		})
		require.Error(t, err)
		assert.True(t, IsMultiplierOutOfRange(err))
	})

	t.Run("WindowEndsBeforeItStarts", func(t *testing.T) {
		env := newAdminFlowEnv()
		from := utils.UTCNow().Add(48 * time.Hour).Format(time.RFC3339)
		until := utils.UTCNow().Add(24 * time.Hour).Format(time.RFC3339)
		_, err := env.flow.CreateRule(ctx, &dto.CreatePricingRuleRequest{
			RepairType: models.RepairTypeScreenRepair,
			BasePrice:  decimal.RequireFromString("10.00"),
			ValidFrom:  &from,
			ValidUntil: &until,
		})
		require.Error(t, err)
		assert.True(t, IsInvalidValidityWindow(err))
	})

	t.Run("OverlappingWindowRejected", func(t *testing.T) {
		env := newAdminFlowEnv()
		_, err := env.flow.CreateRule(ctx, &dto.CreatePricingRuleRequest{
			RepairType: models.RepairTypeScreenRepair,
			BasePrice:  decimal.RequireFromString("100.00"),
		})
		require.NoError(t, err)

		_, err = env.flow.CreateRule(ctx, &dto.CreatePricingRuleRequest{
			RepairType: models.RepairTypeScreenRepair,
			BasePrice:  decimal.RequireFromString("110.00"),
		})
		require.Error(t, err)
		assert.True(t, IsOverlappingRule(err))
	})

	t.Run("DisjointWindowAccepted", func(t *testing.T) {
		env := newAdminFlowEnv()
		firstFrom := utils.UTCNow().Format(time.RFC3339)
		firstUntil := utils.UTCNow().Add(24 * time.Hour).Format(time.RFC3339)
		_, err := env.flow.CreateRule(ctx, &dto.CreatePricingRuleRequest{
			RepairType: models.RepairTypeScreenRepair,
			BasePrice:  decimal.RequireFromString("100.00"),
			ValidFrom:  &firstFrom,
			ValidUntil: &firstUntil,
		})
		require.NoError(t, err)

		// The next window starts exactly where the first ends; ValidUntil is
		// exclusive, so this is not an overlap.
		_, err = env.flow.CreateRule(ctx, &dto.CreatePricingRuleRequest{
			RepairType: models.RepairTypeScreenRepair,
			BasePrice:  decimal.RequireFromString("110.00"),
			ValidFrom:  &firstUntil,
		})
		require.NoError(t, err)
	})

	t.Run("DeviceScopedDoesNotCollideWithGeneric", func(t *testing.T) {
		env := newAdminFlowEnv()
		device := &models.DeviceModel{
			Brand:    "Apple",
			Name:     "iPhone 15",
			Category: models.DeviceCategorySmartphone,
			IsActive: utils.ToPtr(true),
		}
		require.NoError(t, env.deviceRepo.Save(ctx, device))

		_, err := env.flow.CreateRule(ctx, &dto.CreatePricingRuleRequest{
			RepairType: models.RepairTypeScreenRepair,
			BasePrice:  decimal.RequireFromString("100.00"),
		})
		require.NoError(t, err)

		_, err = env.flow.CreateRule(ctx, &dto.CreatePricingRuleRequest{
			RepairType:    models.RepairTypeScreenRepair,
			DeviceModelID: &device.ID,
			BasePrice:     decimal.RequireFromString("149.00"),
		})
		require.NoError(t, err)
	})

	t.Run("UnknownDeviceRejected", func(t *testing.T) {
		env := newAdminFlowEnv()
		missing := uint(404)
		_, err := env.flow.CreateRule(ctx, &dto.CreatePricingRuleRequest{
			RepairType:    models.RepairTypeScreenRepair,
			DeviceModelID: &missing,
			BasePrice:     decimal.RequireFromString("10.00"),
		})
		require.Error(t, err)
		assert.True(t, IsDeviceNotFound(err))
	})
}

func TestUpdateRule(t *testing.T) {
	ctx := context.Background()

	seedRule := func(t *testing.T, env *adminFlowEnv) dto.PricingRuleDTO {
		resp, err := env.flow.CreateRule(ctx, &dto.CreatePricingRuleRequest{
			RepairType: models.RepairTypeScreenRepair,
			BasePrice:  decimal.RequireFromString("120.00"),
		})
		require.NoError(t, err)
		return resp.Rule
	}

	t.Run("UpdatesBasePrice", func(t *testing.T) {
		env := newAdminFlowEnv()
		rule := seedRule(t, env)

		resp, err := env.flow.UpdateRule(ctx, rule.UUID, &dto.UpdatePricingRuleRequest{
			ExpectedUpdatedAt: rule.UpdatedAt,
			BasePrice:         utils.ToPtr(decimal.RequireFromString("135.00")),
		})
		require.NoError(t, err)
		assert.Equal(t, "135.00", resp.Rule.BasePrice.StringFixed(2))
		assert.NotEqual(t, rule.UpdatedAt, resp.Rule.UpdatedAt)
		assert.Len(t, env.auditRepo.byAction(models.AuditActionRuleUpdated), 1)
	})

	t.Run("StaleVersionRejected", func(t *testing.T) {
		env := newAdminFlowEnv()
		rule := seedRule(t, env)

		// First writer wins.
		_, err := env.flow.UpdateRule(ctx, rule.UUID, &dto.UpdatePricingRuleRequest{
			ExpectedUpdatedAt: rule.UpdatedAt,
			MarketDemand:      utils.ToPtr(1.2),
		})
		require.NoError(t, err)

		// Second writer echoes the old version and must be rejected.
		_, err = env.flow.UpdateRule(ctx, rule.UUID, &dto.UpdatePricingRuleRequest{
			ExpectedUpdatedAt: rule.UpdatedAt,
			MarketDemand:      utils.ToPtr(1.4),
		})
		require.Error(t, err)
		assert.True(t, IsRuleConflict(err))
	})

	t.Run("VersionRequired", func(t *testing.T) {
		env := newAdminFlowEnv()
		rule := seedRule(t, env)

		_, err := env.flow.UpdateRule(ctx, rule.UUID, &dto.UpdatePricingRuleRequest{
			BasePrice: utils.ToPtr(decimal.RequireFromString("99.00")),
		})
		require.Error(t, err)
		assert.True(t, IsRuleVersionRequired(err))

		_, err = env.flow.UpdateRule(ctx, rule.UUID, &dto.UpdatePricingRuleRequest{
			ExpectedUpdatedAt: "not-a-timestamp",
			BasePrice:         utils.ToPtr(decimal.RequireFromString("99.00")),
		})
		require.Error(t, err)
		assert.True(t, IsRuleVersionRequired(err))
	})

	t.Run("EmptyUpdateRejected", func(t *testing.T) {
		env := newAdminFlowEnv()
		rule := seedRule(t, env)

		_, err := env.flow.UpdateRule(ctx, rule.UUID, &dto.UpdatePricingRuleRequest{
			ExpectedUpdatedAt: rule.UpdatedAt,
		})
		require.Error(t, err)
		assert.True(t, IsRuleUpdateEmpty(err))
	})

	t.Run("UnknownRule", func(t *testing.T) {
		env := newAdminFlowEnv()
		_, err := env.flow.UpdateRule(ctx, "3b7e2c1a-0000-0000-0000-000000000000", &dto.UpdatePricingRuleRequest{
			ExpectedUpdatedAt: utils.UTCNow().Format(time.RFC3339Nano),
			MarketDemand:      utils.ToPtr(1.1),
		})
		require.Error(t, err)
		assert.True(t, IsRuleNotFound(err))
	})

	t.Run("MultiplierValidatedOnUpdate", func(t *testing.T) {
		env := newAdminFlowEnv()
		rule := seedRule(t, env)

		_, err := env.flow.UpdateRule(ctx, rule.UUID, &dto.UpdatePricingRuleRequest{
			ExpectedUpdatedAt: rule.UpdatedAt,
			SeasonalFactor:    utils.ToPtr(models.MultiplierCeiling + 1),
		})
		require.Error(t, err)
		assert.True(t, IsMultiplierOutOfRange(err))
	})

	t.Run("WindowChangeCheckedForOverlap", func(t *testing.T) {
		env := newAdminFlowEnv()

		firstUntil := utils.UTCNow().Add(24 * time.Hour).Format(time.RFC3339)
		firstFrom := utils.UTCNow().Format(time.RFC3339)
		first, err := env.flow.CreateRule(ctx, &dto.CreatePricingRuleRequest{
			RepairType: models.RepairTypeScreenRepair,
			BasePrice:  decimal.RequireFromString("100.00"),
			ValidFrom:  &firstFrom,
			ValidUntil: &firstUntil,
		})
		require.NoError(t, err)

		second, err := env.flow.CreateRule(ctx, &dto.CreatePricingRuleRequest{
			RepairType: models.RepairTypeScreenRepair,
			BasePrice:  decimal.RequireFromString("110.00"),
			ValidFrom:  &firstUntil,
		})
		require.NoError(t, err)

		// Pulling the second window back into the first must be rejected.
		_, err = env.flow.UpdateRule(ctx, second.Rule.UUID, &dto.UpdatePricingRuleRequest{
			ExpectedUpdatedAt: second.Rule.UpdatedAt,
			ValidFrom:         &first.Rule.ValidFrom,
		})
		require.Error(t, err)
		assert.True(t, IsOverlappingRule(err))
	})

	t.Run("ClearValidUntil", func(t *testing.T) {
		env := newAdminFlowEnv()
		from := utils.UTCNow().Format(time.RFC3339)
		until := utils.UTCNow().Add(24 * time.Hour).Format(time.RFC3339)
		created, err := env.flow.CreateRule(ctx, &dto.CreatePricingRuleRequest{
			RepairType: models.RepairTypeScreenRepair,
			BasePrice:  decimal.RequireFromString("100.00"),
			ValidFrom:  &from,
			ValidUntil: &until,
		})
		require.NoError(t, err)
		require.NotNil(t, created.Rule.ValidUntil)

		resp, err := env.flow.UpdateRule(ctx, created.Rule.UUID, &dto.UpdatePricingRuleRequest{
			ExpectedUpdatedAt: created.Rule.UpdatedAt,
			ClearValidUntil:   true,
		})
		require.NoError(t, err)
		assert.Nil(t, resp.Rule.ValidUntil)
	})
}

func TestDeactivateRule(t *testing.T) {
	ctx := context.Background()

	t.Run("SoftDeactivates", func(t *testing.T) {
		env := newAdminFlowEnv()
		created, err := env.flow.CreateRule(ctx, &dto.CreatePricingRuleRequest{
			RepairType: models.RepairTypeScreenRepair,
			BasePrice:  decimal.RequireFromString("100.00"),
		})
		require.NoError(t, err)

		resp, err := env.flow.DeactivateRule(ctx, created.Rule.UUID)
		require.NoError(t, err)
		assert.False(t, resp.Rule.IsActive)

		// The row survives, only its flag changed.
		stored, err := env.ruleRepo.ByUUID(ctx, created.Rule.UUID)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.False(t, utils.IsTrue(stored.IsActive))
		assert.Len(t, env.auditRepo.byAction(models.AuditActionRuleDeactivated), 1)
	})

	t.Run("AlreadyInactive", func(t *testing.T) {
		env := newAdminFlowEnv()
		created, err := env.flow.CreateRule(ctx, &dto.CreatePricingRuleRequest{
			RepairType: models.RepairTypeScreenRepair,
			BasePrice:  decimal.RequireFromString("100.00"),
		})
		require.NoError(t, err)

		_, err = env.flow.DeactivateRule(ctx, created.Rule.UUID)
		require.NoError(t, err)

		_, err = env.flow.DeactivateRule(ctx, created.Rule.UUID)
		require.Error(t, err)
		assert.True(t, IsRuleAlreadyInactive(err))
	})

	t.Run("UnknownRule", func(t *testing.T) {
		env := newAdminFlowEnv()
		_, err := env.flow.DeactivateRule(ctx, "3b7e2c1a-0000-0000-0000-000000000000")
		require.Error(t, err)
		assert.True(t, IsRuleNotFound(err))
	})
}

func TestListRules(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, env *adminFlowEnv, repairTypes ...string) {
		for i, rt := range repairTypes {
			from := utils.UTCNow().Add(time.Duration(i*24) * time.Hour).Format(time.RFC3339)
			until := utils.UTCNow().Add(time.Duration((i+1)*24) * time.Hour).Format(time.RFC3339)
			_, err := env.flow.CreateRule(ctx, &dto.CreatePricingRuleRequest{
				RepairType: rt,
				BasePrice:  decimal.RequireFromString("50.00"),
				ValidFrom:  &from,
				ValidUntil: &until,
			})
			require.NoError(t, err)
		}
	}

	t.Run("PaginationDefaults", func(t *testing.T) {
		env := newAdminFlowEnv()
		seed(t, env, models.RepairTypeScreenRepair, models.RepairTypeWaterDamage, models.RepairTypeDataRecovery)

		resp, err := env.flow.ListRules(ctx, &dto.ListPricingRulesRequest{})
		require.NoError(t, err)
		assert.Equal(t, 1, resp.Pagination.Page)
		assert.Equal(t, utils.DefaultPageSize, resp.Pagination.PageSize)
		assert.Equal(t, int64(3), resp.Pagination.TotalItems)
		assert.Len(t, resp.Items, 3)
	})

	t.Run("PageSizeBounded", func(t *testing.T) {
		env := newAdminFlowEnv()
		_, err := env.flow.ListRules(ctx, &dto.ListPricingRulesRequest{PageSize: utils.MaxPageSize + 1})
		require.Error(t, err)
		assert.True(t, IsInvalidPageSize(err))

		_, err = env.flow.ListRules(ctx, &dto.ListPricingRulesRequest{Page: -1})
		require.Error(t, err)
		assert.True(t, IsInvalidPage(err))
	})

	t.Run("FilterByRepairType", func(t *testing.T) {
		env := newAdminFlowEnv()
		seed(t, env, models.RepairTypeScreenRepair, models.RepairTypeWaterDamage)

		resp, err := env.flow.ListRules(ctx, &dto.ListPricingRulesRequest{
			RepairType: utils.ToPtr(models.RepairTypeWaterDamage),
		})
		require.NoError(t, err)
		require.Len(t, resp.Items, 1)
		assert.Equal(t, models.RepairTypeWaterDamage, resp.Items[0].RepairType)
	})

	t.Run("InvalidFilterRepairType", func(t *testing.T) {
		env := newAdminFlowEnv()
		_, err := env.flow.ListRules(ctx, &dto.ListPricingRulesRequest{
			RepairType: utils.ToPtr("warp_drive"),
		})
		require.Error(t, err)
		assert.True(t, IsInvalidRepairType(err))
	})

	t.Run("InvalidActiveAt", func(t *testing.T) {
		env := newAdminFlowEnv()
		_, err := env.flow.ListRules(ctx, &dto.ListPricingRulesRequest{
			ActiveAt: utils.ToPtr("next tuesday"),
		})
		require.Error(t, err)
	})
}

func TestListRepairTypes(t *testing.T) {
	env := newAdminFlowEnv()
	resp := env.flow.ListRepairTypes(context.Background())
	assert.Len(t, resp.Items, 12)
	assert.Contains(t, resp.Items, models.RepairTypeScreenRepair)
	assert.Contains(t, resp.Items, models.RepairTypeCustomRepair)
}

func TestExportRules(t *testing.T) {
	ctx := context.Background()
	env := newAdminFlowEnv()

	_, err := env.flow.CreateRule(ctx, &dto.CreatePricingRuleRequest{
		RepairType: models.RepairTypeScreenRepair,
		BasePrice:  decimal.RequireFromString("120.00"),
	})
	require.NoError(t, err)

	filename, data, err := env.flow.ExportRules(ctx, &dto.ListPricingRulesRequest{})
	require.NoError(t, err)
	assert.Contains(t, filename, "pricing_rules_")
	assert.Contains(t, filename, ".xlsx")
	require.NotEmpty(t, data)
	// xlsx files are zip archives.
	assert.True(t, bytes.HasPrefix(data, []byte("PK")))
}
