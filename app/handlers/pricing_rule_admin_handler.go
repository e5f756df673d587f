package handlers

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/revivatech/pricing-engine/app/dto"
	"github.com/revivatech/pricing-engine/app/middleware"
	businessflow "github.com/revivatech/pricing-engine/business_flow"
	"github.com/revivatech/pricing-engine/utils"
)

// PricingRuleAdminHandlerInterface defines admin endpoints for pricing rules.
type PricingRuleAdminHandlerInterface interface {
	CreatePricingRule(c fiber.Ctx) error
	UpdatePricingRule(c fiber.Ctx) error
	DeactivatePricingRule(c fiber.Ctx) error
	ListPricingRules(c fiber.Ctx) error
	ExportPricingRules(c fiber.Ctx) error
	PreviewQuote(c fiber.Ctx) error
}

// PricingRuleAdminHandler implements admin endpoints for pricing rules.
type PricingRuleAdminHandler struct {
	ruleFlow  businessflow.PricingRuleAdminFlow
	quoteFlow businessflow.QuoteFlow
	validator *validator.Validate
}

func NewPricingRuleAdminHandler(ruleFlow businessflow.PricingRuleAdminFlow, quoteFlow businessflow.QuoteFlow) PricingRuleAdminHandlerInterface {
	return &PricingRuleAdminHandler{
		ruleFlow:  ruleFlow,
		quoteFlow: quoteFlow,
		validator: validator.New(),
	}
}

func (h *PricingRuleAdminHandler) ErrorResponse(c fiber.Ctx, status int, message, code string, details any) error {
	return c.Status(status).JSON(dto.APIResponse{Success: false, Message: message, Error: dto.ErrorDetail{Code: code, Details: details}})
}

func (h *PricingRuleAdminHandler) SuccessResponse(c fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(dto.APIResponse{Success: true, Message: message, Data: data})
}

// CreatePricingRule creates a pricing rule.
// @Summary Create Pricing Rule (Admin)
// @Description Create a pricing rule for a repair type, optionally scoped to a device model
// @Tags Admin Pricing Rules
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.CreatePricingRuleRequest true "Pricing rule payload"
// @Success 201 {object} dto.APIResponse{data=dto.CreatePricingRuleResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 404 {object} dto.APIResponse "Device model not found"
// @Failure 500 {object} dto.APIResponse "Creation failed"
// @Router /api/v1/admin/pricing-rules [post]
func (h *PricingRuleAdminHandler) CreatePricingRule(c fiber.Ctx) error {
	var req dto.CreatePricingRuleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, e := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(e))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	res, err := h.ruleFlow.CreateRule(h.createRequestContext(c, "/api/v1/admin/pricing-rules"), &req)
	if err != nil {
		return h.mapRuleError(c, err, "Create pricing rule failed", "RULE_CREATE_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Pricing rule created", res)
}

// UpdatePricingRule applies a partial update under optimistic concurrency.
// @Summary Update Pricing Rule (Admin)
// @Description Update a pricing rule; expected_updated_at must echo the last fetched updated_at
// @Tags Admin Pricing Rules
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param uuid path string true "Pricing rule UUID"
// @Param request body dto.UpdatePricingRuleRequest true "Partial update payload"
// @Success 200 {object} dto.APIResponse{data=dto.UpdatePricingRuleResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 404 {object} dto.APIResponse "Rule not found"
// @Failure 409 {object} dto.APIResponse "Concurrent modification"
// @Failure 500 {object} dto.APIResponse "Update failed"
// @Router /api/v1/admin/pricing-rules/{uuid} [patch]
func (h *PricingRuleAdminHandler) UpdatePricingRule(c fiber.Ctx) error {
	ruleUUID := c.Params("uuid")
	if ruleUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Pricing rule UUID is required", "MISSING_RULE_UUID", nil)
	}

	var req dto.UpdatePricingRuleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, e := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(e))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	res, err := h.ruleFlow.UpdateRule(h.createRequestContext(c, "/api/v1/admin/pricing-rules/:uuid"), ruleUUID, &req)
	if err != nil {
		return h.mapRuleError(c, err, "Update pricing rule failed", "RULE_UPDATE_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Pricing rule updated", res)
}

// DeactivatePricingRule soft-deactivates a rule.
// @Summary Deactivate Pricing Rule (Admin)
// @Description Deactivate a pricing rule; rows are never deleted
// @Tags Admin Pricing Rules
// @Produce json
// @Security BearerAuth
// @Param uuid path string true "Pricing rule UUID"
// @Success 200 {object} dto.APIResponse{data=dto.DeactivatePricingRuleResponse}
// @Failure 404 {object} dto.APIResponse "Rule not found"
// @Failure 409 {object} dto.APIResponse "Rule already inactive"
// @Failure 500 {object} dto.APIResponse "Deactivation failed"
// @Router /api/v1/admin/pricing-rules/{uuid} [delete]
func (h *PricingRuleAdminHandler) DeactivatePricingRule(c fiber.Ctx) error {
	ruleUUID := c.Params("uuid")
	if ruleUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Pricing rule UUID is required", "MISSING_RULE_UUID", nil)
	}

	res, err := h.ruleFlow.DeactivateRule(h.createRequestContext(c, "/api/v1/admin/pricing-rules/:uuid"), ruleUUID)
	if err != nil {
		return h.mapRuleError(c, err, "Deactivate pricing rule failed", "RULE_DEACTIVATE_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Pricing rule deactivated", res)
}

// ListPricingRules returns a filtered, paginated rule listing.
// @Summary List Pricing Rules (Admin)
// @Description List pricing rules with optional repair type, device, and activity filters
// @Tags Admin Pricing Rules
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number (default 1)"
// @Param page_size query int false "Page size (default 20, max 100)"
// @Param repair_type query string false "Filter by repair type"
// @Param device_model_id query int false "Filter by device model ID"
// @Param generic_only query bool false "Only generic (device-agnostic) rules"
// @Param is_active query bool false "Filter by active flag"
// @Param active_at query string false "Only rules whose window covers this RFC3339 instant"
// @Success 200 {object} dto.APIResponse{data=dto.ListPricingRulesResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "List failed"
// @Router /api/v1/admin/pricing-rules [get]
func (h *PricingRuleAdminHandler) ListPricingRules(c fiber.Ctx) error {
	req, err := h.parseListRequest(c)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_QUERY", err.Error())
	}

	res, err := h.ruleFlow.ListRules(h.createRequestContext(c, "/api/v1/admin/pricing-rules"), req)
	if err != nil {
		return h.mapRuleError(c, err, "List pricing rules failed", "RULE_LIST_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Pricing rules retrieved", res)
}

// ExportPricingRules downloads the filtered rule set as an xlsx workbook.
// @Summary Export Pricing Rules (Admin)
// @Description Download pricing rules as an Excel workbook
// @Tags Admin Pricing Rules
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security BearerAuth
// @Param repair_type query string false "Filter by repair type"
// @Param device_model_id query int false "Filter by device model ID"
// @Param is_active query bool false "Filter by active flag"
// @Success 200 {file} binary "Excel file"
// @Failure 500 {object} dto.APIResponse "Export failed"
// @Router /api/v1/admin/pricing-rules/export [get]
func (h *PricingRuleAdminHandler) ExportPricingRules(c fiber.Ctx) error {
	req, err := h.parseListRequest(c)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_QUERY", err.Error())
	}

	filename, content, err := h.ruleFlow.ExportRules(h.createRequestContext(c, "/api/v1/admin/pricing-rules/export"), req)
	if err != nil {
		return h.mapRuleError(c, err, "Export pricing rules failed", "RULE_EXPORT_FAILED")
	}

	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	return c.Send(content)
}

// PreviewQuote resolves a quote at a pinned evaluation time.
// @Summary Preview Quote (Admin)
// @Description Resolve a quote as of an arbitrary instant, so future pricing windows can be verified
// @Tags Admin Pricing Rules
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.AdminQuotePreviewRequest true "Preview request"
// @Success 200 {object} dto.APIResponse{data=dto.QuoteResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 404 {object} dto.APIResponse "No pricing rule found"
// @Failure 500 {object} dto.APIResponse "Preview failed"
// @Router /api/v1/admin/pricing-rules/preview [post]
func (h *PricingRuleAdminHandler) PreviewQuote(c fiber.Ctx) error {
	var req dto.AdminQuotePreviewRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, e := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(e))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	res, err := h.quoteFlow.AdminPreviewQuote(h.createRequestContext(c, "/api/v1/admin/pricing-rules/preview"), &req)
	if err != nil {
		if businessflow.IsNoPricingRuleFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "No pricing rule matches this request", "NO_PRICING_RULE_FOUND", nil)
		}
		if businessflow.IsInvalidMultiplier(err) {
			return h.ErrorResponse(c, fiber.StatusUnprocessableEntity, "The matched pricing rule carries an invalid multiplier", "INVALID_MULTIPLIER", nil)
		}
		return h.mapRuleError(c, err, "Quote preview failed", "QUOTE_PREVIEW_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Quote previewed", res)
}

func (h *PricingRuleAdminHandler) parseListRequest(c fiber.Ctx) (*dto.ListPricingRulesRequest, error) {
	req := &dto.ListPricingRulesRequest{}

	if v := c.Query("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil {
			return nil, err
		}
		req.Page = page
	}
	if v := c.Query("page_size"); v != "" {
		pageSize, err := strconv.Atoi(v)
		if err != nil {
			return nil, err
		}
		req.PageSize = pageSize
	}
	if v := c.Query("repair_type"); v != "" {
		req.RepairType = utils.ToPtr(v)
	}
	if v := c.Query("device_model_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, err
		}
		req.DeviceModelID = utils.ToPtr(uint(id))
	}
	if v := c.Query("generic_only"); v != "" {
		genericOnly, err := strconv.ParseBool(v)
		if err != nil {
			return nil, err
		}
		req.GenericOnly = genericOnly
	}
	if v := c.Query("is_active"); v != "" {
		isActive, err := strconv.ParseBool(v)
		if err != nil {
			return nil, err
		}
		req.IsActive = utils.ToPtr(isActive)
	}
	if v := c.Query("active_at"); v != "" {
		req.ActiveAt = utils.ToPtr(v)
	}

	return req, nil
}

func (h *PricingRuleAdminHandler) mapRuleError(c fiber.Ctx, err error, logMessage, fallbackCode string) error {
	if businessflow.IsRuleNotFound(err) {
		return h.ErrorResponse(c, fiber.StatusNotFound, "Pricing rule not found", "RULE_NOT_FOUND", nil)
	}
	if businessflow.IsDeviceNotFound(err) {
		return h.ErrorResponse(c, fiber.StatusNotFound, "Device model not found", "DEVICE_NOT_FOUND", nil)
	}
	if businessflow.IsRuleConflict(err) {
		return h.ErrorResponse(c, fiber.StatusConflict, "Pricing rule was modified concurrently; re-fetch and retry", "RULE_CONFLICT", nil)
	}
	if businessflow.IsRuleAlreadyInactive(err) {
		return h.ErrorResponse(c, fiber.StatusConflict, "Pricing rule is already inactive", "RULE_ALREADY_INACTIVE", nil)
	}
	if businessflow.IsValidationError(err) {
		var be *businessflow.BusinessError
		code := "VALIDATION_ERROR"
		message := "Validation failed"
		if errors.As(err, &be) {
			code = be.Code
			message = be.Message
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, message, code, nil)
	}
	log.Println(logMessage+":", err)
	return h.ErrorResponse(c, fiber.StatusInternalServerError, logMessage, fallbackCode, nil)
}

// createRequestContext mirrors other handlers for request-scoped values
func (h *PricingRuleAdminHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return h.createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}

func (h *PricingRuleAdminHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)
	if adminID, ok := middleware.GetAdminIDFromContext(c); ok {
		ctx = context.WithValue(ctx, utils.AdminIDKey, adminID)
	}
	return ctx
}
