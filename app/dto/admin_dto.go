package dto

// AdminLoginRequest is the credential payload for admin authentication.
type AdminLoginRequest struct {
	Username string `json:"username" validate:"required,max=255"`
	Password string `json:"password" validate:"required,min=8"`
}

// AdminRefreshRequest exchanges a refresh token for a new session.
type AdminRefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// AdminDTO is the API representation of an admin account.
type AdminDTO struct {
	ID          uint    `json:"id"`
	UUID        string  `json:"uuid"`
	Username    string  `json:"username"`
	IsActive    bool    `json:"is_active"`
	LastLoginAt *string `json:"last_login_at,omitempty"`
}

// AdminSessionDTO carries the issued token pair.
type AdminSessionDTO struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

type AdminLoginResponse struct {
	Message string          `json:"message"`
	Admin   AdminDTO        `json:"admin"`
	Session AdminSessionDTO `json:"session"`
}
