package handlers

import (
	"context"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/revivatech/pricing-engine/app/dto"
	businessflow "github.com/revivatech/pricing-engine/business_flow"
	"github.com/revivatech/pricing-engine/utils"
)

// AuthAdminHandlerInterface defines admin authentication endpoints.
type AuthAdminHandlerInterface interface {
	Login(c fiber.Ctx) error
	Refresh(c fiber.Ctx) error
}

// AuthAdminHandler implements admin authentication endpoints.
type AuthAdminHandler struct {
	flow      businessflow.AdminAuthFlow
	validator *validator.Validate
}

func NewAuthAdminHandler(flow businessflow.AdminAuthFlow) AuthAdminHandlerInterface {
	return &AuthAdminHandler{
		flow:      flow,
		validator: validator.New(),
	}
}

func (h *AuthAdminHandler) ErrorResponse(c fiber.Ctx, status int, message, code string, details any) error {
	return c.Status(status).JSON(dto.APIResponse{Success: false, Message: message, Error: dto.ErrorDetail{Code: code, Details: details}})
}

func (h *AuthAdminHandler) SuccessResponse(c fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(dto.APIResponse{Success: true, Message: message, Data: data})
}

// Login authenticates an admin with username and password.
// @Summary Admin Login
// @Description Authenticate an admin and issue a JWT token pair
// @Tags Admin Auth
// @Accept json
// @Produce json
// @Param request body dto.AdminLoginRequest true "Credentials"
// @Success 200 {object} dto.APIResponse{data=dto.AdminLoginResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 401 {object} dto.APIResponse "Invalid credentials"
// @Failure 500 {object} dto.APIResponse "Login failed"
// @Router /api/v1/admin/auth/login [post]
func (h *AuthAdminHandler) Login(c fiber.Ctx) error {
	var req dto.AdminLoginRequest
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

	res, err := h.flow.Login(h.createRequestContext(c, "/api/v1/admin/auth/login"), &req)
	if err != nil {
		// Unknown username, wrong password, and inactive account all map to the
		// same response so the endpoint does not leak which usernames exist.
		if businessflow.IsAdminNotFound(err) || businessflow.IsIncorrectPassword(err) || businessflow.IsAdminInactive(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid username or password", "INVALID_CREDENTIALS", nil)
		}
		log.Println("Admin login failed:", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Login failed", "LOGIN_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Login successful", res)
}

// Refresh exchanges a refresh token for a new token pair.
// @Summary Refresh Admin Session
// @Description Exchange a valid refresh token for a fresh token pair
// @Tags Admin Auth
// @Accept json
// @Produce json
// @Param request body dto.AdminRefreshRequest true "Refresh token"
// @Success 200 {object} dto.APIResponse{data=dto.AdminSessionDTO}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 401 {object} dto.APIResponse "Invalid refresh token"
// @Router /api/v1/admin/auth/refresh [post]
func (h *AuthAdminHandler) Refresh(c fiber.Ctx) error {
	var req dto.AdminRefreshRequest
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

	res, err := h.flow.RefreshSession(h.createRequestContext(c, "/api/v1/admin/auth/refresh"), req.RefreshToken)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid or expired refresh token", "INVALID_REFRESH_TOKEN", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Session refreshed", res)
}

// createRequestContext mirrors other handlers for request-scoped values
func (h *AuthAdminHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return h.createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}

func (h *AuthAdminHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)
	return ctx
}
