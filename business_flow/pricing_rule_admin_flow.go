package businessflow

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/revivatech/pricing-engine/app/dto"
	"github.com/revivatech/pricing-engine/app/services"
	"github.com/revivatech/pricing-engine/models"
	"github.com/revivatech/pricing-engine/repository"
	"github.com/revivatech/pricing-engine/utils"
)

// PricingRuleAdminFlow covers the administrative lifecycle of pricing rules.
type PricingRuleAdminFlow interface {
	CreateRule(ctx context.Context, req *dto.CreatePricingRuleRequest) (*dto.CreatePricingRuleResponse, error)
	UpdateRule(ctx context.Context, ruleUUID string, req *dto.UpdatePricingRuleRequest) (*dto.UpdatePricingRuleResponse, error)
	DeactivateRule(ctx context.Context, ruleUUID string) (*dto.DeactivatePricingRuleResponse, error)
	ListRules(ctx context.Context, req *dto.ListPricingRulesRequest) (*dto.ListPricingRulesResponse, error)
	ListRepairTypes(ctx context.Context) *dto.ListRepairTypesResponse
	ExportRules(ctx context.Context, req *dto.ListPricingRulesRequest) (string, []byte, error)
}

type PricingRuleAdminFlowImpl struct {
	pricingRuleRepo repository.PricingRuleRepository
	deviceModelRepo repository.DeviceModelRepository
	auditRepo       repository.AuditLogRepository
	ruleCache       services.RuleCache
}

func NewPricingRuleAdminFlow(
	pricingRuleRepo repository.PricingRuleRepository,
	deviceModelRepo repository.DeviceModelRepository,
	auditRepo repository.AuditLogRepository,
	ruleCache services.RuleCache,
) PricingRuleAdminFlow {
	return &PricingRuleAdminFlowImpl{
		pricingRuleRepo: pricingRuleRepo,
		deviceModelRepo: deviceModelRepo,
		auditRepo:       auditRepo,
		ruleCache:       ruleCache,
	}
}

// validateMultiplier enforces the write-time sanity band [0, ceiling].
func validateMultiplier(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > models.MultiplierCeiling {
		return NewBusinessErrorf("RULE_MULTIPLIER_OUT_OF_RANGE",
			"%s must be between 0 and %.1f", ErrMultiplierOutOfRange, name, models.MultiplierCeiling)
	}
	return nil
}

func parseWindowTime(field string, s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil, NewBusinessErrorf("RULE_INVALID_TIME", "%s must be RFC3339", err, field)
	}
	t = t.UTC()
	return &t, nil
}

// CreateRule validates and stores a new pricing rule. Rules whose key and
// validity window overlap an existing active rule are rejected at write time;
// the resolver's tie-break is a safety net for pre-existing data, not an
// invitation to create ambiguity.
func (f *PricingRuleAdminFlowImpl) CreateRule(ctx context.Context, req *dto.CreatePricingRuleRequest) (*dto.CreatePricingRuleResponse, error) {
	if !models.IsValidRepairType(req.RepairType) {
		err := NewBusinessErrorf("RULE_INVALID_REPAIR_TYPE", "Unknown repair type %q", ErrInvalidRepairType, req.RepairType)
		f.auditRuleFailure(ctx, models.AuditActionRuleCreated, nil, err)
		return nil, err
	}
	if req.BasePrice.IsNegative() {
		err := NewBusinessError("RULE_NEGATIVE_BASE_PRICE", "Base price must not be negative", ErrNegativeBasePrice)
		f.auditRuleFailure(ctx, models.AuditActionRuleCreated, nil, err)
		return nil, err
	}

	currency := req.Currency
	if currency == "" {
		currency = models.DefaultCurrency
	}
	if _, ok := models.CurrencyMinorUnits(currency); !ok {
		err := NewBusinessErrorf("RULE_UNSUPPORTED_CURRENCY", "Currency %q is not supported", ErrUnsupportedCurrency, currency)
		f.auditRuleFailure(ctx, models.AuditActionRuleCreated, nil, err)
		return nil, err
	}

	multipliers := map[string]float64{
		"urgency_multiplier":    valueOrOne(req.UrgencyMultiplier),
		"complexity_multiplier": valueOrOne(req.ComplexityMultiplier),
		"market_demand":         valueOrOne(req.MarketDemand),
		"seasonal_factor":       valueOrOne(req.SeasonalFactor),
	}
	for name, v := range multipliers {
		if err := validateMultiplier(name, v); err != nil {
			f.auditRuleFailure(ctx, models.AuditActionRuleCreated, nil, err)
			return nil, err
		}
	}

	validFromPtr, err := parseWindowTime("valid_from", req.ValidFrom)
	if err != nil {
		return nil, err
	}
	validFrom := utils.UTCNow()
	if validFromPtr != nil {
		validFrom = *validFromPtr
	}
	validUntil, err := parseWindowTime("valid_until", req.ValidUntil)
	if err != nil {
		return nil, err
	}
	if validUntil != nil && !validUntil.After(validFrom) {
		err := NewBusinessError("RULE_INVALID_WINDOW", "valid_until must be strictly after valid_from", ErrInvalidValidityWindow)
		f.auditRuleFailure(ctx, models.AuditActionRuleCreated, nil, err)
		return nil, err
	}

	if req.DeviceModelID != nil {
		device, err := f.deviceModelRepo.ByID(ctx, *req.DeviceModelID)
		if err != nil {
			return nil, NewBusinessError("RULE_DEVICE_LOOKUP_FAILED", "Failed to look up device model", err)
		}
		if device == nil {
			err := NewBusinessError("RULE_DEVICE_NOT_FOUND", "Device model not found", ErrDeviceNotFound)
			f.auditRuleFailure(ctx, models.AuditActionRuleCreated, nil, err)
			return nil, err
		}
	}

	overlapping, err := f.pricingRuleRepo.ListOverlapping(ctx, req.RepairType, req.DeviceModelID, validFrom, validUntil, 0)
	if err != nil {
		return nil, NewBusinessError("RULE_OVERLAP_CHECK_FAILED", "Failed to check for overlapping rules", err)
	}
	if len(overlapping) > 0 {
		err := NewBusinessErrorf("RULE_WINDOW_OVERLAP",
			"An active rule (%s) already covers this repair type and device in the requested window",
			ErrOverlappingRule, overlapping[0].UUID)
		f.auditRuleFailure(ctx, models.AuditActionRuleCreated, nil, err)
		return nil, err
	}

	now := utils.UTCNow()
	rule := &models.PricingRule{
		UUID:                 uuid.New(),
		DeviceModelID:        req.DeviceModelID,
		RepairType:           req.RepairType,
		BasePrice:            req.BasePrice,
		Currency:             currency,
		UrgencyMultiplier:    multipliers["urgency_multiplier"],
		ComplexityMultiplier: multipliers["complexity_multiplier"],
		MarketDemand:         multipliers["market_demand"],
		SeasonalFactor:       multipliers["seasonal_factor"],
		IsActive:             utils.ToPtr(true),
		ValidFrom:            validFrom,
		ValidUntil:           validUntil,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := f.pricingRuleRepo.Save(ctx, rule); err != nil {
		return nil, NewBusinessError("RULE_CREATE_FAILED", "Failed to create pricing rule", err)
	}

	f.invalidateCache(ctx)

	ruleUUID := rule.UUID.String()
	recordAudit(ctx, f.auditRepo, models.AuditActionRuleCreated, &ruleUUID,
		fmt.Sprintf("Created pricing rule for %s", rule.RepairType), true, nil,
		map[string]any{"repair_type": rule.RepairType, "device_model_id": rule.DeviceModelID, "base_price": rule.BasePrice})

	return &dto.CreatePricingRuleResponse{
		Message: "Pricing rule created successfully",
		Rule:    ToPricingRuleDTO(*rule),
	}, nil
}

// UpdateRule applies a partial update under optimistic concurrency control.
// The client echoes the updated_at it last read; if the row has moved on, the
// compare-and-set update writes zero rows and the edit is rejected as a
// conflict so the client can re-fetch and re-apply.
func (f *PricingRuleAdminFlowImpl) UpdateRule(ctx context.Context, ruleUUID string, req *dto.UpdatePricingRuleRequest) (*dto.UpdatePricingRuleResponse, error) {
	rule, err := f.pricingRuleRepo.ByUUID(ctx, ruleUUID)
	if err != nil {
		return nil, NewBusinessError("RULE_LOOKUP_FAILED", "Failed to look up pricing rule", err)
	}
	if rule == nil {
		return nil, NewBusinessError("RULE_NOT_FOUND", "Pricing rule not found", ErrRuleNotFound)
	}

	if req.ExpectedUpdatedAt == "" {
		return nil, NewBusinessError("RULE_VERSION_REQUIRED", "expected_updated_at is required", ErrRuleVersionRequired)
	}
	expectedUpdatedAt, err := time.Parse(time.RFC3339Nano, req.ExpectedUpdatedAt)
	if err != nil {
		return nil, NewBusinessError("RULE_VERSION_INVALID", "expected_updated_at must be RFC3339", ErrRuleVersionRequired)
	}

	changes := map[string]any{}

	if req.BasePrice != nil {
		if req.BasePrice.IsNegative() {
			return nil, NewBusinessError("RULE_NEGATIVE_BASE_PRICE", "Base price must not be negative", ErrNegativeBasePrice)
		}
		changes["base_price"] = *req.BasePrice
	}
	if req.Currency != nil {
		if _, ok := models.CurrencyMinorUnits(*req.Currency); !ok {
			return nil, NewBusinessErrorf("RULE_UNSUPPORTED_CURRENCY", "Currency %q is not supported", ErrUnsupportedCurrency, *req.Currency)
		}
		changes["currency"] = *req.Currency
	}

	for name, v := range map[string]*float64{
		"urgency_multiplier":    req.UrgencyMultiplier,
		"complexity_multiplier": req.ComplexityMultiplier,
		"market_demand":         req.MarketDemand,
		"seasonal_factor":       req.SeasonalFactor,
	} {
		if v == nil {
			continue
		}
		if err := validateMultiplier(name, *v); err != nil {
			return nil, err
		}
		changes[name] = *v
	}

	// Prospective validity window after the update, for ordering and overlap
	// checks.
	newValidFrom := rule.ValidFrom
	newValidUntil := rule.ValidUntil

	validFromPtr, err := parseWindowTime("valid_from", req.ValidFrom)
	if err != nil {
		return nil, err
	}
	if validFromPtr != nil {
		newValidFrom = *validFromPtr
		changes["valid_from"] = newValidFrom
	}
	if req.ClearValidUntil {
		newValidUntil = nil
		changes["valid_until"] = nil
	} else {
		validUntilPtr, err := parseWindowTime("valid_until", req.ValidUntil)
		if err != nil {
			return nil, err
		}
		if validUntilPtr != nil {
			newValidUntil = validUntilPtr
			changes["valid_until"] = *validUntilPtr
		}
	}
	if newValidUntil != nil && !newValidUntil.After(newValidFrom) {
		return nil, NewBusinessError("RULE_INVALID_WINDOW", "valid_until must be strictly after valid_from", ErrInvalidValidityWindow)
	}

	if len(changes) == 0 {
		return nil, NewBusinessError("RULE_UPDATE_EMPTY", "At least one field must be provided", ErrRuleUpdateEmpty)
	}

	if _, windowChanged := changes["valid_from"]; windowChanged || req.ClearValidUntil || req.ValidUntil != nil {
		overlapping, err := f.pricingRuleRepo.ListOverlapping(ctx, rule.RepairType, rule.DeviceModelID, newValidFrom, newValidUntil, rule.ID)
		if err != nil {
			return nil, NewBusinessError("RULE_OVERLAP_CHECK_FAILED", "Failed to check for overlapping rules", err)
		}
		if len(overlapping) > 0 {
			return nil, NewBusinessErrorf("RULE_WINDOW_OVERLAP",
				"An active rule (%s) already covers this repair type and device in the requested window",
				ErrOverlappingRule, overlapping[0].UUID)
		}
	}

	changes["updated_at"] = utils.UTCNow()

	rows, err := f.pricingRuleRepo.UpdateChecked(ctx, rule.ID, expectedUpdatedAt, changes)
	if err != nil {
		return nil, NewBusinessError("RULE_UPDATE_FAILED", "Failed to update pricing rule", err)
	}
	if rows == 0 {
		return nil, NewBusinessError("RULE_CONFLICT",
			"Pricing rule was modified concurrently; re-fetch and retry", ErrRuleConflict)
	}

	f.invalidateCache(ctx)

	updated, err := f.pricingRuleRepo.ByID(ctx, rule.ID)
	if err != nil || updated == nil {
		return nil, NewBusinessError("RULE_RELOAD_FAILED", "Failed to reload pricing rule", err)
	}

	recordAudit(ctx, f.auditRepo, models.AuditActionRuleUpdated, &ruleUUID,
		fmt.Sprintf("Updated pricing rule for %s", rule.RepairType), true, nil,
		map[string]any{"fields": changedFieldNames(changes)})

	return &dto.UpdatePricingRuleResponse{
		Message: "Pricing rule updated successfully",
		Rule:    ToPricingRuleDTO(*updated),
	}, nil
}

// DeactivateRule soft-deactivates a rule. Rows are never deleted, so the
// pricing history behind past quotes stays queryable.
func (f *PricingRuleAdminFlowImpl) DeactivateRule(ctx context.Context, ruleUUID string) (*dto.DeactivatePricingRuleResponse, error) {
	rule, err := f.pricingRuleRepo.ByUUID(ctx, ruleUUID)
	if err != nil {
		return nil, NewBusinessError("RULE_LOOKUP_FAILED", "Failed to look up pricing rule", err)
	}
	if rule == nil {
		return nil, NewBusinessError("RULE_NOT_FOUND", "Pricing rule not found", ErrRuleNotFound)
	}
	if !utils.IsTrue(rule.IsActive) {
		return nil, NewBusinessError("RULE_ALREADY_INACTIVE", "Pricing rule is already inactive", ErrRuleAlreadyInactive)
	}

	rule.IsActive = utils.ToPtr(false)
	rule.UpdatedAt = utils.UTCNow()
	if err := f.pricingRuleRepo.Save(ctx, rule); err != nil {
		return nil, NewBusinessError("RULE_DEACTIVATE_FAILED", "Failed to deactivate pricing rule", err)
	}

	f.invalidateCache(ctx)

	recordAudit(ctx, f.auditRepo, models.AuditActionRuleDeactivated, &ruleUUID,
		fmt.Sprintf("Deactivated pricing rule for %s", rule.RepairType), true, nil, nil)

	return &dto.DeactivatePricingRuleResponse{
		Message: "Pricing rule deactivated successfully",
		Rule:    ToPricingRuleDTO(*rule),
	}, nil
}

// ListRules returns a filtered, paginated rule listing for the admin panel.
func (f *PricingRuleAdminFlowImpl) ListRules(ctx context.Context, req *dto.ListPricingRulesRequest) (*dto.ListPricingRulesResponse, error) {
	page, pageSize, err := normalizePagination(req.Page, req.PageSize)
	if err != nil {
		return nil, err
	}

	filter, err := f.buildListFilter(req)
	if err != nil {
		return nil, err
	}

	total, err := f.pricingRuleRepo.Count(ctx, *filter)
	if err != nil {
		return nil, NewBusinessError("RULE_LIST_FAILED", "Failed to count pricing rules", err)
	}

	rules, err := f.pricingRuleRepo.ByFilter(ctx, *filter, "created_at DESC", pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, NewBusinessError("RULE_LIST_FAILED", "Failed to list pricing rules", err)
	}

	items := make([]dto.PricingRuleDTO, 0, len(rules))
	for _, r := range rules {
		items = append(items, ToPricingRuleDTO(*r))
	}

	return &dto.ListPricingRulesResponse{
		Message:    "Pricing rules retrieved successfully",
		Items:      items,
		Pagination: dto.NewPaginationDTO(page, pageSize, total),
	}, nil
}

// ListRepairTypes returns the repair type enumeration. The set is fixed at
// compile time, so there is nothing to fail.
func (f *PricingRuleAdminFlowImpl) ListRepairTypes(ctx context.Context) *dto.ListRepairTypesResponse {
	return &dto.ListRepairTypesResponse{
		Message: "Repair types retrieved successfully",
		Items:   models.RepairTypes(),
	}
}

// ExportRules renders the filtered rule set as an xlsx workbook for offline
// review. Export is unpaginated on purpose.
func (f *PricingRuleAdminFlowImpl) ExportRules(ctx context.Context, req *dto.ListPricingRulesRequest) (string, []byte, error) {
	filter, err := f.buildListFilter(req)
	if err != nil {
		return "", nil, err
	}

	rules, err := f.pricingRuleRepo.ByFilter(ctx, *filter, "repair_type ASC, valid_from ASC", 0, 0)
	if err != nil {
		return "", nil, NewBusinessError("RULE_EXPORT_FAILED", "Failed to list pricing rules", err)
	}

	file := excelize.NewFile()
	defer func() {
		if err := file.Close(); err != nil {
			log.Printf("failed to close export workbook: %v", err)
		}
	}()

	const sheet = "pricing_rules"
	index, err := file.NewSheet(sheet)
	if err != nil {
		return "", nil, NewBusinessError("RULE_EXPORT_FAILED", "Failed to create worksheet", err)
	}
	file.SetActiveSheet(index)
	if err := file.DeleteSheet("Sheet1"); err != nil {
		log.Printf("failed to drop default sheet: %v", err)
	}

	headers := []string{
		"ID", "UUID", "Device Model ID", "Repair Type", "Base Price", "Currency",
		"Urgency", "Complexity", "Market Demand", "Seasonal", "Active",
		"Valid From", "Valid Until", "Updated At",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := file.SetCellValue(sheet, cell, h); err != nil {
			return "", nil, NewBusinessError("RULE_EXPORT_FAILED", "Failed to write header row", err)
		}
	}

	for rowIdx, r := range rules {
		deviceID := ""
		if r.DeviceModelID != nil {
			deviceID = fmt.Sprintf("%d", *r.DeviceModelID)
		}
		validUntil := ""
		if r.ValidUntil != nil {
			validUntil = r.ValidUntil.Format(time.RFC3339)
		}
		values := []any{
			r.ID, r.UUID.String(), deviceID, r.RepairType,
			r.BasePrice.StringFixed(2), r.Currency,
			r.UrgencyMultiplier, r.ComplexityMultiplier, r.MarketDemand, r.SeasonalFactor,
			utils.IsTrue(r.IsActive),
			r.ValidFrom.Format(time.RFC3339), validUntil,
			r.UpdatedAt.Format(time.RFC3339),
		}
		for colIdx, v := range values {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err := file.SetCellValue(sheet, cell, v); err != nil {
				return "", nil, NewBusinessError("RULE_EXPORT_FAILED", "Failed to write rule row", err)
			}
		}
	}

	buf, err := file.WriteToBuffer()
	if err != nil {
		return "", nil, NewBusinessError("RULE_EXPORT_FAILED", "Failed to serialize workbook", err)
	}

	filename := fmt.Sprintf("pricing_rules_%s.xlsx", utils.UTCNow().Format("20060102_150405"))
	return filename, buf.Bytes(), nil
}

func (f *PricingRuleAdminFlowImpl) buildListFilter(req *dto.ListPricingRulesRequest) (*models.PricingRuleFilter, error) {
	filter := &models.PricingRuleFilter{
		RepairType:    req.RepairType,
		DeviceModelID: req.DeviceModelID,
		GenericOnly:   req.GenericOnly,
		IsActive:      req.IsActive,
	}
	if req.RepairType != nil && !models.IsValidRepairType(*req.RepairType) {
		return nil, NewBusinessErrorf("RULE_INVALID_REPAIR_TYPE", "Unknown repair type %q", ErrInvalidRepairType, *req.RepairType)
	}
	if req.ActiveAt != nil {
		at, err := time.Parse(time.RFC3339, *req.ActiveAt)
		if err != nil {
			return nil, NewBusinessError("RULE_INVALID_TIME", "active_at must be RFC3339", err)
		}
		filter.ActiveAt = utils.ToPtr(at.UTC())
	}
	return filter, nil
}

func (f *PricingRuleAdminFlowImpl) invalidateCache(ctx context.Context) {
	if f.ruleCache == nil {
		return
	}
	if err := f.ruleCache.Invalidate(ctx); err != nil {
		// The short TTL bounds staleness when the bump fails.
		log.Printf("rule cache invalidation failed: %v", err)
	}
}

func (f *PricingRuleAdminFlowImpl) auditRuleFailure(ctx context.Context, action string, entityUUID *string, err error) {
	msg := err.Error()
	recordAudit(ctx, f.auditRepo, action, entityUUID, "Pricing rule mutation rejected", false, &msg, nil)
}

func normalizePagination(page, pageSize int) (int, int, error) {
	if page == 0 {
		page = 1
	}
	if page < 1 {
		return 0, 0, NewBusinessError("INVALID_PAGE", "Page must be at least 1", ErrInvalidPage)
	}
	if pageSize == 0 {
		pageSize = utils.DefaultPageSize
	}
	if pageSize < 1 || pageSize > utils.MaxPageSize {
		return 0, 0, NewBusinessErrorf("INVALID_PAGE_SIZE", "Page size must be between 1 and %d", ErrInvalidPageSize, utils.MaxPageSize)
	}
	return page, pageSize, nil
}

func valueOrOne(v *float64) float64 {
	if v == nil {
		return 1.0
	}
	return *v
}

func changedFieldNames(changes map[string]any) []string {
	names := make([]string, 0, len(changes))
	for name := range changes {
		if name == "updated_at" {
			continue
		}
		names = append(names, name)
	}
	return names
}
