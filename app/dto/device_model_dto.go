package dto

// DeviceModelDTO is the API representation of a device catalog entry.
type DeviceModelDTO struct {
	ID        uint   `json:"id"`
	UUID      string `json:"uuid"`
	Brand     string `json:"brand"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	Year      *int   `json:"year,omitempty"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at"`
}

// CreateDeviceModelRequest is the admin payload for adding a catalog entry.
type CreateDeviceModelRequest struct {
	Brand    string `json:"brand" validate:"required,max=100"`
	Name     string `json:"name" validate:"required,max=255"`
	Category string `json:"category" validate:"required"`
	Year     *int   `json:"year,omitempty" validate:"omitempty,gte=1970,lte=2100"`
}

type CreateDeviceModelResponse struct {
	Message string         `json:"message"`
	Device  DeviceModelDTO `json:"device"`
}

type ListDeviceModelsResponse struct {
	Message    string           `json:"message"`
	Items      []DeviceModelDTO `json:"items"`
	Pagination PaginationDTO    `json:"pagination"`
}
