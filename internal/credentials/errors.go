package credentials

import "errors"

// Domain errors for the credential store.
var (
	// ErrInvalidTenantID is returned for empty tenant IDs or IDs that would
	// resolve outside the base directory.
	ErrInvalidTenantID = errors.New("credentials: invalid tenant id")
)
