package auth

import "errors"

// Sentinel errors.
var (
	ErrTokenInvalid  = errors.New("invalid token")
	ErrForbidden     = errors.New("insufficient permissions")
	ErrTenantDenied  = errors.New("tenant not permitted for this token")
	ErrInvalidRole   = errors.New("invalid role")
	ErrMissingSecret = errors.New("signing secret is empty")
)
