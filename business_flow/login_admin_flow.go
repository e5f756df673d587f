package businessflow

import (
	"context"
	"log"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/revivatech/pricing-engine/app/dto"
	"github.com/revivatech/pricing-engine/app/services"
	"github.com/revivatech/pricing-engine/models"
	"github.com/revivatech/pricing-engine/repository"
	"github.com/revivatech/pricing-engine/utils"
)

// AdminAuthFlow authenticates operators of the pricing admin panel.
type AdminAuthFlow interface {
	Login(ctx context.Context, req *dto.AdminLoginRequest) (*dto.AdminLoginResponse, error)
	RefreshSession(ctx context.Context, refreshToken string) (*dto.AdminSessionDTO, error)
}

type AdminAuthFlowImpl struct {
	adminRepo    repository.AdminRepository
	auditRepo    repository.AuditLogRepository
	tokenService services.TokenService
}

func NewAdminAuthFlow(
	adminRepo repository.AdminRepository,
	auditRepo repository.AuditLogRepository,
	tokenService services.TokenService,
) AdminAuthFlow {
	return &AdminAuthFlowImpl{
		adminRepo:    adminRepo,
		auditRepo:    auditRepo,
		tokenService: tokenService,
	}
}

// Login verifies the credentials, stamps last_login_at and issues a token
// pair. Unknown usernames and wrong passwords produce the same audit action
// and the handler maps both to the same response, so the endpoint does not
// leak which usernames exist.
func (f *AdminAuthFlowImpl) Login(ctx context.Context, req *dto.AdminLoginRequest) (*dto.AdminLoginResponse, error) {
	admin, err := f.adminRepo.ByUsername(ctx, req.Username)
	if err != nil {
		return nil, NewBusinessError("ADMIN_LOOKUP_FAILED", "Failed to look up admin account", err)
	}
	if admin == nil {
		f.auditLoginFailure(ctx, req.Username, ErrAdminNotFound)
		return nil, NewBusinessError("ADMIN_LOGIN_FAILED", "Invalid username or password", ErrAdminNotFound)
	}
	if !utils.IsTrue(admin.IsActive) {
		f.auditLoginFailure(ctx, req.Username, ErrAdminInactive)
		return nil, NewBusinessError("ADMIN_LOGIN_FAILED", "Admin account is inactive", ErrAdminInactive)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(req.Password)); err != nil {
		f.auditLoginFailure(ctx, req.Username, ErrIncorrectPassword)
		return nil, NewBusinessError("ADMIN_LOGIN_FAILED", "Invalid username or password", ErrIncorrectPassword)
	}

	now := utils.UTCNow()
	if err := f.adminRepo.UpdateLastLogin(ctx, admin.ID, now); err != nil {
		// Stamping failures must not block a valid login.
		log.Printf("failed to stamp last login for admin %d: %v", admin.ID, err)
	}
	admin.LastLoginAt = &now

	accessToken, refreshToken, err := f.tokenService.GenerateAdminTokens(admin.ID)
	if err != nil {
		return nil, NewBusinessError("ADMIN_TOKEN_FAILED", "Failed to issue session tokens", err)
	}

	adminUUID := admin.UUID.String()
	recordAudit(ctx, f.auditRepo, models.AuditActionAdminLoginSuccess, &adminUUID,
		"Admin logged in", true, nil, map[string]any{"username": admin.Username})

	return &dto.AdminLoginResponse{
		Message: "Login successful",
		Admin:   toAdminDTO(admin),
		Session: dto.AdminSessionDTO{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			TokenType:    "Bearer",
			ExpiresIn:    int(utils.AccessTokenTTL.Seconds()),
		},
	}, nil
}

// RefreshSession exchanges a valid refresh token for a fresh token pair.
func (f *AdminAuthFlowImpl) RefreshSession(ctx context.Context, refreshToken string) (*dto.AdminSessionDTO, error) {
	accessToken, newRefreshToken, err := f.tokenService.RefreshAdminToken(refreshToken)
	if err != nil {
		return nil, NewBusinessError("ADMIN_REFRESH_FAILED", "Invalid or expired refresh token", err)
	}
	return &dto.AdminSessionDTO{
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(utils.AccessTokenTTL.Seconds()),
	}, nil
}

func (f *AdminAuthFlowImpl) auditLoginFailure(ctx context.Context, username string, cause error) {
	msg := cause.Error()
	recordAudit(ctx, f.auditRepo, models.AuditActionAdminLoginFailed, nil,
		"Admin login rejected", false, &msg, map[string]any{"username": username})
}

func toAdminDTO(admin *models.Admin) dto.AdminDTO {
	d := dto.AdminDTO{
		ID:       admin.ID,
		UUID:     admin.UUID.String(),
		Username: admin.Username,
		IsActive: utils.IsTrue(admin.IsActive),
	}
	if admin.LastLoginAt != nil {
		d.LastLoginAt = utils.ToPtr(admin.LastLoginAt.Format(time.RFC3339))
	}
	return d
}
