package handlers

import (
	"context"
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

// DeviceModelHandlerInterface defines the device catalog endpoints.
type DeviceModelHandlerInterface interface {
	CreateDeviceModel(c fiber.Ctx) error
	ListDeviceModels(c fiber.Ctx) error
	AdminListDeviceModels(c fiber.Ctx) error
}

// DeviceModelHandler implements the device catalog endpoints.
type DeviceModelHandler struct {
	flow      businessflow.DeviceModelFlow
	validator *validator.Validate
}

func NewDeviceModelHandler(flow businessflow.DeviceModelFlow) DeviceModelHandlerInterface {
	return &DeviceModelHandler{
		flow:      flow,
		validator: validator.New(),
	}
}

func (h *DeviceModelHandler) ErrorResponse(c fiber.Ctx, status int, message, code string, details any) error {
	return c.Status(status).JSON(dto.APIResponse{Success: false, Message: message, Error: dto.ErrorDetail{Code: code, Details: details}})
}

func (h *DeviceModelHandler) SuccessResponse(c fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(dto.APIResponse{Success: true, Message: message, Data: data})
}

// CreateDeviceModel adds a device catalog entry.
// @Summary Create Device Model (Admin)
// @Description Add a device model so device-specific pricing rules can target it
// @Tags Admin Device Models
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.CreateDeviceModelRequest true "Device model payload"
// @Success 201 {object} dto.APIResponse{data=dto.CreateDeviceModelResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "Creation failed"
// @Router /api/v1/admin/device-models [post]
func (h *DeviceModelHandler) CreateDeviceModel(c fiber.Ctx) error {
	var req dto.CreateDeviceModelRequest
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

	res, err := h.flow.CreateDeviceModel(h.createRequestContext(c, "/api/v1/admin/device-models"), &req)
	if err != nil {
		if businessflow.IsValidationError(err) || businessflow.IsDeviceCategoryInvalid(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", err.Error())
		}
		log.Println("Create device model failed:", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Create device model failed", "DEVICE_CREATE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Device model created", res)
}

// ListDeviceModels returns the active device catalog for public quote forms.
// @Summary List Device Models
// @Description List active device models with optional brand/category filters
// @Tags Device Models
// @Produce json
// @Param page query int false "Page number (default 1)"
// @Param page_size query int false "Page size (default 20, max 100)"
// @Param brand query string false "Filter by brand"
// @Param category query string false "Filter by category"
// @Success 200 {object} dto.APIResponse{data=dto.ListDeviceModelsResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "List failed"
// @Router /api/v1/device-models [get]
func (h *DeviceModelHandler) ListDeviceModels(c fiber.Ctx) error {
	return h.listDeviceModels(c, "/api/v1/device-models", true)
}

// AdminListDeviceModels returns the full catalog including inactive entries.
// @Summary List Device Models (Admin)
// @Description List all device models, including deactivated ones
// @Tags Admin Device Models
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number (default 1)"
// @Param page_size query int false "Page size (default 20, max 100)"
// @Param brand query string false "Filter by brand"
// @Param category query string false "Filter by category"
// @Success 200 {object} dto.APIResponse{data=dto.ListDeviceModelsResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "List failed"
// @Router /api/v1/admin/device-models [get]
func (h *DeviceModelHandler) AdminListDeviceModels(c fiber.Ctx) error {
	return h.listDeviceModels(c, "/api/v1/admin/device-models", false)
}

func (h *DeviceModelHandler) listDeviceModels(c fiber.Ctx, endpoint string, activeOnly bool) error {
	page := 0
	if v := c.Query("page"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid page", "INVALID_QUERY", nil)
		}
		page = parsed
	}
	pageSize := 0
	if v := c.Query("page_size"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid page size", "INVALID_QUERY", nil)
		}
		pageSize = parsed
	}
	var brand, category *string
	if v := c.Query("brand"); v != "" {
		brand = utils.ToPtr(v)
	}
	if v := c.Query("category"); v != "" {
		category = utils.ToPtr(v)
	}

	res, err := h.flow.ListDeviceModels(h.createRequestContext(c, endpoint), page, pageSize, brand, category, activeOnly)
	if err != nil {
		if businessflow.IsValidationError(err) || businessflow.IsDeviceCategoryInvalid(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", err.Error())
		}
		log.Println("List device models failed:", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "List device models failed", "DEVICE_LIST_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Device models retrieved", res)
}

// createRequestContext mirrors other handlers for request-scoped values
func (h *DeviceModelHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return h.createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}

func (h *DeviceModelHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
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
