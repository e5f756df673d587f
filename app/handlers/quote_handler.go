package handlers

import (
	"context"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/revivatech/pricing-engine/app/dto"
	"github.com/revivatech/pricing-engine/app/middleware"
	businessflow "github.com/revivatech/pricing-engine/business_flow"
	"github.com/revivatech/pricing-engine/utils"
)

// QuoteHandlerInterface defines the public price resolution endpoints.
type QuoteHandlerInterface interface {
	ResolveQuote(c fiber.Ctx) error
	ListRepairTypes(c fiber.Ctx) error
}

// QuoteHandler implements the public quote endpoints.
type QuoteHandler struct {
	quoteFlow businessflow.QuoteFlow
	ruleFlow  businessflow.PricingRuleAdminFlow
	validator *validator.Validate
}

func NewQuoteHandler(quoteFlow businessflow.QuoteFlow, ruleFlow businessflow.PricingRuleAdminFlow) QuoteHandlerInterface {
	return &QuoteHandler{
		quoteFlow: quoteFlow,
		ruleFlow:  ruleFlow,
		validator: validator.New(),
	}
}

func (h *QuoteHandler) ErrorResponse(c fiber.Ctx, status int, message, code string, details any) error {
	return c.Status(status).JSON(dto.APIResponse{Success: false, Message: message, Error: dto.ErrorDetail{Code: code, Details: details}})
}

func (h *QuoteHandler) SuccessResponse(c fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(dto.APIResponse{Success: true, Message: message, Data: data})
}

// ResolveQuote computes a repair price quote with a transparent breakdown.
// @Summary Resolve Price Quote
// @Description Resolve the final repair price for a device and repair type, with a multiplier breakdown
// @Tags Quotes
// @Accept json
// @Produce json
// @Param request body dto.QuoteRequest true "Quote request"
// @Success 200 {object} dto.APIResponse{data=dto.QuoteResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 404 {object} dto.APIResponse "No pricing rule found"
// @Failure 422 {object} dto.APIResponse "Invalid multiplier on the matched rule"
// @Failure 500 {object} dto.APIResponse "Quote resolution failed"
// @Router /api/v1/quotes [post]
func (h *QuoteHandler) ResolveQuote(c fiber.Ctx) error {
	var req dto.QuoteRequest
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

	res, err := h.quoteFlow.ResolvePrice(h.createRequestContext(c, "/api/v1/quotes"), &req)
	if err != nil {
		middleware.RecordQuote(req.RepairType, "error")
		return h.mapQuoteError(c, err)
	}

	middleware.RecordQuote(req.RepairType, "resolved")
	return h.SuccessResponse(c, fiber.StatusOK, "Price resolved", res)
}

// ListRepairTypes returns the fixed repair type enumeration.
// @Summary List Repair Types
// @Description Retrieve the repair types accepted by the quote endpoint
// @Tags Quotes
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.ListRepairTypesResponse}
// @Router /api/v1/repair-types [get]
func (h *QuoteHandler) ListRepairTypes(c fiber.Ctx) error {
	res := h.ruleFlow.ListRepairTypes(h.createRequestContext(c, "/api/v1/repair-types"))
	return h.SuccessResponse(c, fiber.StatusOK, "Repair types retrieved", res)
}

func (h *QuoteHandler) mapQuoteError(c fiber.Ctx, err error) error {
	if businessflow.IsNoPricingRuleFound(err) {
		return h.ErrorResponse(c, fiber.StatusNotFound, "No pricing rule matches this request", "NO_PRICING_RULE_FOUND", nil)
	}
	if businessflow.IsInvalidMultiplier(err) {
		return h.ErrorResponse(c, fiber.StatusUnprocessableEntity, "The matched pricing rule carries an invalid multiplier", "INVALID_MULTIPLIER", nil)
	}
	if businessflow.IsInvalidRepairType(err) {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Unknown repair type", "INVALID_REPAIR_TYPE", nil)
	}
	if businessflow.IsDeviceNotFound(err) {
		return h.ErrorResponse(c, fiber.StatusNotFound, "Device model not found", "DEVICE_NOT_FOUND", nil)
	}
	if businessflow.IsDeviceInactive(err) {
		return h.ErrorResponse(c, fiber.StatusUnprocessableEntity, "Device model is inactive", "DEVICE_INACTIVE", nil)
	}
	log.Println("Quote resolution failed:", err)
	return h.ErrorResponse(c, fiber.StatusInternalServerError, "Quote resolution failed", "QUOTE_FAILED", nil)
}

// createRequestContext mirrors other handlers for request-scoped values
func (h *QuoteHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return h.createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}

func (h *QuoteHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)
	return ctx
}
