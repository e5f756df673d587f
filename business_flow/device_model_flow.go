package businessflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/revivatech/pricing-engine/app/dto"
	"github.com/revivatech/pricing-engine/models"
	"github.com/revivatech/pricing-engine/repository"
	"github.com/revivatech/pricing-engine/utils"
)

// DeviceModelFlow manages the device catalog that pricing rules hang off.
type DeviceModelFlow interface {
	CreateDeviceModel(ctx context.Context, req *dto.CreateDeviceModelRequest) (*dto.CreateDeviceModelResponse, error)
	ListDeviceModels(ctx context.Context, page, pageSize int, brand, category *string, activeOnly bool) (*dto.ListDeviceModelsResponse, error)
}

type DeviceModelFlowImpl struct {
	deviceModelRepo repository.DeviceModelRepository
	auditRepo       repository.AuditLogRepository
}

func NewDeviceModelFlow(
	deviceModelRepo repository.DeviceModelRepository,
	auditRepo repository.AuditLogRepository,
) DeviceModelFlow {
	return &DeviceModelFlowImpl{
		deviceModelRepo: deviceModelRepo,
		auditRepo:       auditRepo,
	}
}

// CreateDeviceModel adds a catalog entry so device-specific rules can target it.
func (f *DeviceModelFlowImpl) CreateDeviceModel(ctx context.Context, req *dto.CreateDeviceModelRequest) (*dto.CreateDeviceModelResponse, error) {
	brand := strings.TrimSpace(req.Brand)
	name := strings.TrimSpace(req.Name)
	if brand == "" {
		return nil, NewBusinessError("DEVICE_BRAND_REQUIRED", "Device brand is required", ErrDeviceBrandRequired)
	}
	if name == "" {
		return nil, NewBusinessError("DEVICE_NAME_REQUIRED", "Device name is required", ErrDeviceNameRequired)
	}
	if !models.IsValidDeviceCategory(req.Category) {
		return nil, NewBusinessErrorf("DEVICE_INVALID_CATEGORY", "Unknown device category %q", ErrDeviceCategoryInvalid, req.Category)
	}

	now := utils.UTCNow()
	device := &models.DeviceModel{
		UUID:      uuid.New(),
		Brand:     brand,
		Name:      name,
		Category:  req.Category,
		Year:      req.Year,
		IsActive:  utils.ToPtr(true),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := f.deviceModelRepo.Save(ctx, device); err != nil {
		return nil, NewBusinessError("DEVICE_CREATE_FAILED", "Failed to create device model", err)
	}

	deviceUUID := device.UUID.String()
	recordAudit(ctx, f.auditRepo, models.AuditActionDeviceModelCreated, &deviceUUID,
		fmt.Sprintf("Created device model %s %s", device.Brand, device.Name), true, nil,
		map[string]any{"brand": device.Brand, "name": device.Name, "category": device.Category})

	return &dto.CreateDeviceModelResponse{
		Message: "Device model created successfully",
		Device:  ToDeviceModelDTO(*device),
	}, nil
}

// ListDeviceModels returns a paginated catalog listing. The public endpoint
// passes activeOnly=true; admins can see deactivated entries too.
func (f *DeviceModelFlowImpl) ListDeviceModels(ctx context.Context, page, pageSize int, brand, category *string, activeOnly bool) (*dto.ListDeviceModelsResponse, error) {
	page, pageSize, err := normalizePagination(page, pageSize)
	if err != nil {
		return nil, err
	}

	if category != nil && !models.IsValidDeviceCategory(*category) {
		return nil, NewBusinessErrorf("DEVICE_INVALID_CATEGORY", "Unknown device category %q", ErrDeviceCategoryInvalid, *category)
	}

	filter := models.DeviceModelFilter{
		Brand:    brand,
		Category: category,
	}
	if activeOnly {
		filter.IsActive = utils.ToPtr(true)
	}

	total, err := f.deviceModelRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("DEVICE_LIST_FAILED", "Failed to count device models", err)
	}

	devices, err := f.deviceModelRepo.ByFilter(ctx, filter, "brand ASC, name ASC", pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, NewBusinessError("DEVICE_LIST_FAILED", "Failed to list device models", err)
	}

	items := make([]dto.DeviceModelDTO, 0, len(devices))
	for _, d := range devices {
		items = append(items, ToDeviceModelDTO(*d))
	}

	return &dto.ListDeviceModelsResponse{
		Message:    "Device models retrieved successfully",
		Items:      items,
		Pagination: dto.NewPaginationDTO(page, pageSize, total),
	}, nil
}
