// Package businessflow contains the core business logic and use cases for the pricing engine
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Quote resolution errors
	ErrNoPricingRuleFound = errors.New("no pricing rule found")
	ErrInvalidMultiplier  = errors.New("invalid multiplier")
	ErrDeviceNotFound     = errors.New("device model not found")
	ErrDeviceInactive     = errors.New("device model is inactive")

	// Rule validation errors
	ErrInvalidRepairType       = errors.New("invalid repair type")
	ErrNegativeBasePrice       = errors.New("base price must not be negative")
	ErrUnsupportedCurrency     = errors.New("unsupported currency code")
	ErrMultiplierOutOfRange    = errors.New("multiplier must be between 0 and the sanity ceiling")
	ErrInvalidValidityWindow   = errors.New("valid_until must be after valid_from")
	ErrOverlappingRule         = errors.New("an active rule already covers this key and window")
	ErrRuleNotFound            = errors.New("pricing rule not found")
	ErrRuleConflict            = errors.New("pricing rule was modified concurrently")
	ErrRuleAlreadyInactive     = errors.New("pricing rule is already inactive")
	ErrRuleUpdateEmpty         = errors.New("at least one field must be provided for update")
	ErrRuleVersionRequired     = errors.New("expected_updated_at is required")
	ErrDeviceCategoryInvalid   = errors.New("invalid device category")
	ErrDeviceBrandRequired     = errors.New("device brand is required")
	ErrDeviceNameRequired      = errors.New("device name is required")

	// Admin auth errors
	ErrAdminNotFound     = errors.New("admin not found")
	ErrAdminInactive     = errors.New("admin account is inactive")
	ErrIncorrectPassword = errors.New("incorrect password")

	// Filter errors
	ErrInvalidPage     = errors.New("page must be at least 1")
	ErrInvalidPageSize = errors.New("page size must be between 1 and 100")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsNoPricingRuleFound(err error) bool {
	return errors.Is(err, ErrNoPricingRuleFound)
}

func IsInvalidMultiplier(err error) bool {
	return errors.Is(err, ErrInvalidMultiplier)
}

func IsDeviceNotFound(err error) bool {
	return errors.Is(err, ErrDeviceNotFound)
}

func IsDeviceInactive(err error) bool {
	return errors.Is(err, ErrDeviceInactive)
}

func IsInvalidRepairType(err error) bool {
	return errors.Is(err, ErrInvalidRepairType)
}

func IsNegativeBasePrice(err error) bool {
	return errors.Is(err, ErrNegativeBasePrice)
}

func IsUnsupportedCurrency(err error) bool {
	return errors.Is(err, ErrUnsupportedCurrency)
}

func IsMultiplierOutOfRange(err error) bool {
	return errors.Is(err, ErrMultiplierOutOfRange)
}

func IsInvalidValidityWindow(err error) bool {
	return errors.Is(err, ErrInvalidValidityWindow)
}

func IsOverlappingRule(err error) bool {
	return errors.Is(err, ErrOverlappingRule)
}

func IsRuleNotFound(err error) bool {
	return errors.Is(err, ErrRuleNotFound)
}

func IsRuleConflict(err error) bool {
	return errors.Is(err, ErrRuleConflict)
}

func IsRuleAlreadyInactive(err error) bool {
	return errors.Is(err, ErrRuleAlreadyInactive)
}

func IsRuleUpdateEmpty(err error) bool {
	return errors.Is(err, ErrRuleUpdateEmpty)
}

func IsRuleVersionRequired(err error) bool {
	return errors.Is(err, ErrRuleVersionRequired)
}

func IsDeviceCategoryInvalid(err error) bool {
	return errors.Is(err, ErrDeviceCategoryInvalid)
}

func IsAdminNotFound(err error) bool {
	return errors.Is(err, ErrAdminNotFound)
}

func IsAdminInactive(err error) bool {
	return errors.Is(err, ErrAdminInactive)
}

func IsIncorrectPassword(err error) bool {
	return errors.Is(err, ErrIncorrectPassword)
}

func IsInvalidPage(err error) bool {
	return errors.Is(err, ErrInvalidPage)
}

func IsInvalidPageSize(err error) bool {
	return errors.Is(err, ErrInvalidPageSize)
}

// IsValidationError groups the write-time validation failures so handlers can
// map them to a single HTTP 400 family.
func IsValidationError(err error) bool {
	return IsInvalidRepairType(err) ||
		IsNegativeBasePrice(err) ||
		IsUnsupportedCurrency(err) ||
		IsMultiplierOutOfRange(err) ||
		IsInvalidValidityWindow(err) ||
		IsOverlappingRule(err) ||
		IsRuleUpdateEmpty(err) ||
		IsRuleVersionRequired(err) ||
		IsDeviceCategoryInvalid(err) ||
		errors.Is(err, ErrDeviceBrandRequired) ||
		errors.Is(err, ErrDeviceNameRequired) ||
		IsInvalidPage(err) ||
		IsInvalidPageSize(err)
}
