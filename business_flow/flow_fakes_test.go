package businessflow

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/revivatech/pricing-engine/models"
	"github.com/revivatech/pricing-engine/utils"
)

// In-memory repository fakes so flow logic can be exercised without Postgres.

type fakePricingRuleRepo struct {
	rules          []*models.PricingRule
	nextID         uint
	saveErr        error
	candidateCalls int
}

func (f *fakePricingRuleRepo) ByID(ctx context.Context, id uint) (*models.PricingRule, error) {
	for _, r := range f.rules {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakePricingRuleRepo) ByUUID(ctx context.Context, uuid string) (*models.PricingRule, error) {
	for _, r := range f.rules {
		if r.UUID.String() == uuid {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakePricingRuleRepo) matches(r *models.PricingRule, filter models.PricingRuleFilter) bool {
	if filter.ID != nil && r.ID != *filter.ID {
		return false
	}
	if filter.DeviceModelID != nil {
		if r.DeviceModelID == nil || *r.DeviceModelID != *filter.DeviceModelID {
			return false
		}
	} else if filter.GenericOnly && r.DeviceModelID != nil {
		return false
	}
	if filter.RepairType != nil && r.RepairType != *filter.RepairType {
		return false
	}
	if filter.IsActive != nil && utils.IsTrue(r.IsActive) != *filter.IsActive {
		return false
	}
	if filter.ActiveAt != nil && !r.MatchesAt(*filter.ActiveAt) {
		return false
	}
	return true
}

func (f *fakePricingRuleRepo) ByFilter(ctx context.Context, filter models.PricingRuleFilter, orderBy string, limit, offset int) ([]*models.PricingRule, error) {
	var out []*models.PricingRule
	for _, r := range f.rules {
		if f.matches(r, filter) {
			out = append(out, r)
		}
	}
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakePricingRuleRepo) Save(ctx context.Context, rule *models.PricingRule) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	if rule.ID == 0 {
		f.nextID++
		rule.ID = f.nextID
		f.rules = append(f.rules, rule)
		return nil
	}
	for i, r := range f.rules {
		if r.ID == rule.ID {
			f.rules[i] = rule
			return nil
		}
	}
	f.rules = append(f.rules, rule)
	return nil
}

func (f *fakePricingRuleRepo) SaveBatch(ctx context.Context, rules []*models.PricingRule) error {
	for _, r := range rules {
		if err := f.Save(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakePricingRuleRepo) Count(ctx context.Context, filter models.PricingRuleFilter) (int64, error) {
	var count int64
	for _, r := range f.rules {
		if f.matches(r, filter) {
			count++
		}
	}
	return count, nil
}

func (f *fakePricingRuleRepo) Exists(ctx context.Context, filter models.PricingRuleFilter) (bool, error) {
	count, err := f.Count(ctx, filter)
	return count > 0, err
}

func (f *fakePricingRuleRepo) ListCandidates(ctx context.Context, repairType string, deviceModelID *uint, at time.Time) ([]*models.PricingRule, error) {
	f.candidateCalls++
	var out []*models.PricingRule
	for _, r := range f.rules {
		if r.RepairType != repairType || !utils.IsTrue(r.IsActive) || !r.MatchesAt(at) {
			continue
		}
		if r.DeviceModelID != nil {
			if deviceModelID == nil || *r.DeviceModelID != *deviceModelID {
				continue
			}
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakePricingRuleRepo) ListOverlapping(ctx context.Context, repairType string, deviceModelID *uint, from time.Time, until *time.Time, excludeID uint) ([]*models.PricingRule, error) {
	var out []*models.PricingRule
	for _, r := range f.rules {
		if r.RepairType != repairType || !utils.IsTrue(r.IsActive) {
			continue
		}
		if excludeID != 0 && r.ID == excludeID {
			continue
		}
		if (r.DeviceModelID == nil) != (deviceModelID == nil) {
			continue
		}
		if r.DeviceModelID != nil && *r.DeviceModelID != *deviceModelID {
			continue
		}
		if r.OverlapsWindow(from, until) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakePricingRuleRepo) UpdateChecked(ctx context.Context, id uint, expectedUpdatedAt time.Time, changes map[string]any) (int64, error) {
	for _, r := range f.rules {
		if r.ID != id {
			continue
		}
		if !r.UpdatedAt.Equal(expectedUpdatedAt) {
			return 0, nil
		}
		for k, v := range changes {
			switch k {
			case "base_price":
				r.BasePrice = v.(decimal.Decimal)
			case "currency":
				r.Currency = v.(string)
			case "urgency_multiplier":
				r.UrgencyMultiplier = v.(float64)
			case "complexity_multiplier":
				r.ComplexityMultiplier = v.(float64)
			case "market_demand":
				r.MarketDemand = v.(float64)
			case "seasonal_factor":
				r.SeasonalFactor = v.(float64)
			case "valid_from":
				r.ValidFrom = v.(time.Time)
			case "valid_until":
				if v == nil {
					r.ValidUntil = nil
				} else {
					t := v.(time.Time)
					r.ValidUntil = &t
				}
			case "is_active":
				r.IsActive = utils.ToPtr(v.(bool))
			case "updated_at":
				r.UpdatedAt = v.(time.Time)
			}
		}
		return 1, nil
	}
	return 0, nil
}

type fakeDeviceModelRepo struct {
	devices []*models.DeviceModel
	nextID  uint
}

func (f *fakeDeviceModelRepo) ByID(ctx context.Context, id uint) (*models.DeviceModel, error) {
	for _, d := range f.devices {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, nil
}

func (f *fakeDeviceModelRepo) ByUUID(ctx context.Context, uuid string) (*models.DeviceModel, error) {
	for _, d := range f.devices {
		if d.UUID.String() == uuid {
			return d, nil
		}
	}
	return nil, nil
}

func (f *fakeDeviceModelRepo) matches(d *models.DeviceModel, filter models.DeviceModelFilter) bool {
	if filter.ID != nil && d.ID != *filter.ID {
		return false
	}
	if filter.Brand != nil && d.Brand != *filter.Brand {
		return false
	}
	if filter.Category != nil && d.Category != *filter.Category {
		return false
	}
	if filter.IsActive != nil && utils.IsTrue(d.IsActive) != *filter.IsActive {
		return false
	}
	return true
}

func (f *fakeDeviceModelRepo) ByFilter(ctx context.Context, filter models.DeviceModelFilter, orderBy string, limit, offset int) ([]*models.DeviceModel, error) {
	var out []*models.DeviceModel
	for _, d := range f.devices {
		if f.matches(d, filter) {
			out = append(out, d)
		}
	}
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeDeviceModelRepo) Save(ctx context.Context, device *models.DeviceModel) error {
	if device.ID == 0 {
		f.nextID++
		device.ID = f.nextID
		f.devices = append(f.devices, device)
		return nil
	}
	for i, d := range f.devices {
		if d.ID == device.ID {
			f.devices[i] = device
			return nil
		}
	}
	f.devices = append(f.devices, device)
	return nil
}

func (f *fakeDeviceModelRepo) SaveBatch(ctx context.Context, devices []*models.DeviceModel) error {
	for _, d := range devices {
		if err := f.Save(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeDeviceModelRepo) Count(ctx context.Context, filter models.DeviceModelFilter) (int64, error) {
	var count int64
	for _, d := range f.devices {
		if f.matches(d, filter) {
			count++
		}
	}
	return count, nil
}

func (f *fakeDeviceModelRepo) Exists(ctx context.Context, filter models.DeviceModelFilter) (bool, error) {
	count, err := f.Count(ctx, filter)
	return count > 0, err
}

type fakeAdminRepo struct {
	admins         []*models.Admin
	nextID         uint
	lastLoginCalls int
}

func (f *fakeAdminRepo) ByID(ctx context.Context, id uint) (*models.Admin, error) {
	for _, a := range f.admins {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, nil
}

func (f *fakeAdminRepo) ByUsername(ctx context.Context, username string) (*models.Admin, error) {
	for _, a := range f.admins {
		if a.Username == username {
			return a, nil
		}
	}
	return nil, nil
}

func (f *fakeAdminRepo) ByFilter(ctx context.Context, filter models.AdminFilter, orderBy string, limit, offset int) ([]*models.Admin, error) {
	return f.admins, nil
}

func (f *fakeAdminRepo) Save(ctx context.Context, admin *models.Admin) error {
	if admin.ID == 0 {
		f.nextID++
		admin.ID = f.nextID
	}
	f.admins = append(f.admins, admin)
	return nil
}

func (f *fakeAdminRepo) SaveBatch(ctx context.Context, admins []*models.Admin) error {
	for _, a := range admins {
		if err := f.Save(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeAdminRepo) Count(ctx context.Context, filter models.AdminFilter) (int64, error) {
	return int64(len(f.admins)), nil
}

func (f *fakeAdminRepo) Exists(ctx context.Context, filter models.AdminFilter) (bool, error) {
	return len(f.admins) > 0, nil
}

func (f *fakeAdminRepo) UpdateLastLogin(ctx context.Context, adminID uint, at time.Time) error {
	f.lastLoginCalls++
	for _, a := range f.admins {
		if a.ID == adminID {
			a.LastLoginAt = &at
			return nil
		}
	}
	return nil
}

type fakeAuditRepo struct {
	entries []*models.AuditLog
}

func (f *fakeAuditRepo) ByID(ctx context.Context, id uint) (*models.AuditLog, error) {
	for _, e := range f.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, nil
}

func (f *fakeAuditRepo) ByFilter(ctx context.Context, filter models.AuditLogFilter, orderBy string, limit, offset int) ([]*models.AuditLog, error) {
	return f.entries, nil
}

func (f *fakeAuditRepo) Save(ctx context.Context, entry *models.AuditLog) error {
	entry.ID = uint(len(f.entries) + 1)
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAuditRepo) SaveBatch(ctx context.Context, entries []*models.AuditLog) error {
	for _, e := range entries {
		if err := f.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeAuditRepo) Count(ctx context.Context, filter models.AuditLogFilter) (int64, error) {
	return int64(len(f.entries)), nil
}

func (f *fakeAuditRepo) Exists(ctx context.Context, filter models.AuditLogFilter) (bool, error) {
	return len(f.entries) > 0, nil
}

func (f *fakeAuditRepo) ListByAction(ctx context.Context, action string, limit, offset int) ([]*models.AuditLog, error) {
	var out []*models.AuditLog
	for _, e := range f.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeAuditRepo) byAction(action string) []*models.AuditLog {
	out, _ := f.ListByAction(context.Background(), action, 0, 0)
	return out
}

type fakeRuleCache struct {
	entries       map[string][]*models.PricingRule
	invalidations int
	hits          int
	sets          int
}

func newFakeRuleCache() *fakeRuleCache {
	return &fakeRuleCache{entries: make(map[string][]*models.PricingRule)}
}

func cacheKey(repairType string, deviceModelID *uint) string {
	if deviceModelID == nil {
		return repairType + "|generic"
	}
	return fmt.Sprintf("%s|d%d", repairType, *deviceModelID)
}

func (f *fakeRuleCache) GetCandidates(ctx context.Context, repairType string, deviceModelID *uint) ([]*models.PricingRule, bool) {
	rules, ok := f.entries[cacheKey(repairType, deviceModelID)]
	if ok {
		f.hits++
	}
	return rules, ok
}

func (f *fakeRuleCache) SetCandidates(ctx context.Context, repairType string, deviceModelID *uint, rules []*models.PricingRule) {
	f.sets++
	f.entries[cacheKey(repairType, deviceModelID)] = rules
}

func (f *fakeRuleCache) Invalidate(ctx context.Context) error {
	f.invalidations++
	f.entries = make(map[string][]*models.PricingRule)
	return nil
}
