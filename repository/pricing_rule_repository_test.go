package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revivatech/pricing-engine/models"
	testingutil "github.com/revivatech/pricing-engine/testing"
	"github.com/revivatech/pricing-engine/utils"
)

// setupDB provisions a throwaway Postgres database, skipping the test when no
// server is reachable (TEST_DB_* environment variables configure the target).
func setupDB(t *testing.T) *testingutil.TestDB {
	t.Helper()
	db, err := testingutil.SetupTestDB()
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := db.TeardownTestDB(); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	})
	return db
}

func TestPricingRuleRepository(t *testing.T) {
	testDB := setupDB(t)
	fixtures := testingutil.NewTestFixtures(testDB)
	repo := NewPricingRuleRepository(testDB.DB)
	ctx := context.Background()

	t.Run("ByUUID", func(t *testing.T) {
		require.NoError(t, testDB.ClearAllTables())
		rule, err := fixtures.CreateTestPricingRule(models.RepairTypeScreenRepair, nil, "120.00")
		require.NoError(t, err)

		found, err := repo.ByUUID(ctx, rule.UUID.String())
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, rule.ID, found.ID)

		missing, err := repo.ByUUID(ctx, uuid.New().String())
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("ListCandidatesOrdering", func(t *testing.T) {
		require.NoError(t, testDB.ClearAllTables())
		device, err := fixtures.CreateTestDeviceModel("Apple", models.DeviceCategorySmartphone)
		require.NoError(t, err)

		generic, err := fixtures.CreateTestPricingRule(models.RepairTypeScreenRepair, nil, "100.00")
		require.NoError(t, err)
		specific, err := fixtures.CreateTestPricingRule(models.RepairTypeScreenRepair, &device.ID, "149.00")
		require.NoError(t, err)

		candidates, err := repo.ListCandidates(ctx, models.RepairTypeScreenRepair, &device.ID, utils.UTCNow())
		require.NoError(t, err)
		require.Len(t, candidates, 2)
		// Device-specific rows sort first.
		assert.Equal(t, specific.ID, candidates[0].ID)
		assert.Equal(t, generic.ID, candidates[1].ID)

		// Without a device only the generic rule qualifies.
		candidates, err = repo.ListCandidates(ctx, models.RepairTypeScreenRepair, nil, utils.UTCNow())
		require.NoError(t, err)
		require.Len(t, candidates, 1)
		assert.Equal(t, generic.ID, candidates[0].ID)
	})

	t.Run("ListCandidatesWindowBounds", func(t *testing.T) {
		require.NoError(t, testDB.ClearAllTables())
		rule, err := fixtures.CreateTestPricingRule(models.RepairTypeBatteryReplacement, nil, "65.00")
		require.NoError(t, err)

		// Before the window opens nothing qualifies.
		candidates, err := repo.ListCandidates(ctx, models.RepairTypeBatteryReplacement, nil, rule.ValidFrom.Add(-time.Minute))
		require.NoError(t, err)
		assert.Empty(t, candidates)

		// The opening instant is inclusive.
		candidates, err = repo.ListCandidates(ctx, models.RepairTypeBatteryReplacement, nil, rule.ValidFrom)
		require.NoError(t, err)
		assert.Len(t, candidates, 1)
	})

	t.Run("ListOverlapping", func(t *testing.T) {
		require.NoError(t, testDB.ClearAllTables())
		rule, err := fixtures.CreateTestPricingRule(models.RepairTypeWaterDamage, nil, "200.00")
		require.NoError(t, err)

		// Open-ended rule intersects any future window.
		overlapping, err := repo.ListOverlapping(ctx, models.RepairTypeWaterDamage, nil, utils.UTCNow().Add(time.Hour), nil, 0)
		require.NoError(t, err)
		assert.Len(t, overlapping, 1)

		// Excluding the rule itself finds nothing.
		overlapping, err = repo.ListOverlapping(ctx, models.RepairTypeWaterDamage, nil, utils.UTCNow().Add(time.Hour), nil, rule.ID)
		require.NoError(t, err)
		assert.Empty(t, overlapping)

		// A device-scoped key never collides with the generic key.
		device, err := fixtures.CreateTestDeviceModel("Apple", models.DeviceCategorySmartphone)
		require.NoError(t, err)
		overlapping, err = repo.ListOverlapping(ctx, models.RepairTypeWaterDamage, &device.ID, utils.UTCNow(), nil, 0)
		require.NoError(t, err)
		assert.Empty(t, overlapping)
	})

	t.Run("UpdateChecked", func(t *testing.T) {
		require.NoError(t, testDB.ClearAllTables())
		created, err := fixtures.CreateTestPricingRule(models.RepairTypeScreenRepair, nil, "120.00")
		require.NoError(t, err)

		// Reload so expected_updated_at carries the database's precision.
		rule, err := repo.ByID(ctx, created.ID)
		require.NoError(t, err)
		require.NotNil(t, rule)

		rows, err := repo.UpdateChecked(ctx, rule.ID, rule.UpdatedAt, map[string]any{
			"base_price": decimal.RequireFromString("135.00"),
			"updated_at": utils.UTCNow(),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), rows)

		// The stale version must no longer match.
		rows, err = repo.UpdateChecked(ctx, rule.ID, rule.UpdatedAt, map[string]any{
			"base_price": decimal.RequireFromString("140.00"),
			"updated_at": utils.UTCNow(),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(0), rows)

		reloaded, err := repo.ByID(ctx, rule.ID)
		require.NoError(t, err)
		require.NotNil(t, reloaded)
		assert.Equal(t, "135.00", reloaded.BasePrice.StringFixed(2))
	})

	t.Run("FilterAndCount", func(t *testing.T) {
		require.NoError(t, testDB.ClearAllTables())
		_, err := fixtures.CreateTestPricingRule(models.RepairTypeScreenRepair, nil, "120.00")
		require.NoError(t, err)
		rule, err := fixtures.CreateTestPricingRule(models.RepairTypeWaterDamage, nil, "200.00")
		require.NoError(t, err)

		count, err := repo.Count(ctx, models.PricingRuleFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		rules, err := repo.ByFilter(ctx, models.PricingRuleFilter{
			RepairType: utils.ToPtr(models.RepairTypeWaterDamage),
		}, "", 0, 0)
		require.NoError(t, err)
		require.Len(t, rules, 1)
		assert.Equal(t, rule.ID, rules[0].ID)
	})

	t.Run("SoftDeactivationKeepsRow", func(t *testing.T) {
		require.NoError(t, testDB.ClearAllTables())
		rule, err := fixtures.CreateTestPricingRule(models.RepairTypeScreenRepair, nil, "120.00")
		require.NoError(t, err)

		rule.IsActive = utils.ToPtr(false)
		require.NoError(t, repo.Save(ctx, rule))

		reloaded, err := repo.ByID(ctx, rule.ID)
		require.NoError(t, err)
		require.NotNil(t, reloaded)
		assert.False(t, utils.IsTrue(reloaded.IsActive))

		// Deactivated rules drop out of candidate lookups.
		candidates, err := repo.ListCandidates(ctx, models.RepairTypeScreenRepair, nil, utils.UTCNow())
		require.NoError(t, err)
		assert.Empty(t, candidates)
	})
}

func TestAdminRepository(t *testing.T) {
	testDB := setupDB(t)
	fixtures := testingutil.NewTestFixtures(testDB)
	repo := NewAdminRepository(testDB.DB)
	ctx := context.Background()

	t.Run("ByUsername", func(t *testing.T) {
		require.NoError(t, testDB.ClearAllTables())
		admin, err := fixtures.CreateTestAdmin("ops", "TestPass123!")
		require.NoError(t, err)

		found, err := repo.ByUsername(ctx, "ops")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, admin.ID, found.ID)

		missing, err := repo.ByUsername(ctx, "ghost")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("UpdateLastLogin", func(t *testing.T) {
		require.NoError(t, testDB.ClearAllTables())
		admin, err := fixtures.CreateTestAdmin("ops", "TestPass123!")
		require.NoError(t, err)
		require.Nil(t, admin.LastLoginAt)

		now := utils.UTCNow()
		require.NoError(t, repo.UpdateLastLogin(ctx, admin.ID, now))

		reloaded, err := repo.ByID(ctx, admin.ID)
		require.NoError(t, err)
		require.NotNil(t, reloaded)
		require.NotNil(t, reloaded.LastLoginAt)
		assert.WithinDuration(t, now, *reloaded.LastLoginAt, time.Second)
	})
}
