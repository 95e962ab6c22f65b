package auth

import (
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AllTenants grants access to every tenant when present in Claims.Tenants.
const AllTenants = "*"

const defaultTokenTTL = 30 * 24 * time.Hour

// Claims extends the registered JWT claims with the caller's role and
// tenant scope.
type Claims struct {
	jwt.RegisteredClaims
	Role    Role     `json:"role"`
	Tenants []string `json:"tenants,omitempty"`
}

// Identity describes the holder of a token to be issued.
type Identity struct {
	// Subject names the calling system, e.g. "billing-service".
	Subject string
	Role    Role
	Tenants []string
}

// GenerateToken signs an API token for id.
// A non-positive ttl falls back to 30 days.
func GenerateToken(id Identity, secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}
	if !IsValidRole(id.Role) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, id.Role)
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Role:    id.Role,
		Tenants: id.Tenants,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a token's signature, expiry and required fields.
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if !IsValidRole(claims.Role) {
		return nil, fmt.Errorf("%w: bad role %q", ErrTokenInvalid, claims.Role)
	}
	return claims, nil
}

// Can reports whether the token's role grants perm.
func (c *Claims) Can(perm Permission) bool {
	return HasPermission(c.Role, perm)
}

// CanAccessTenant reports whether the token may act on tenantID.
func (c *Claims) CanAccessTenant(tenantID string) bool {
	if c.Role == RoleAdmin {
		return true
	}
	return slices.Contains(c.Tenants, AllTenants) || slices.Contains(c.Tenants, tenantID)
}

// Authorize checks both the permission and the tenant scope.
// An empty tenantID checks the permission only.
func (c *Claims) Authorize(perm Permission, tenantID string) error {
	if !c.Can(perm) {
		return fmt.Errorf("%w: %s requires %s", ErrForbidden, c.Role, perm)
	}
	if tenantID != "" && !c.CanAccessTenant(tenantID) {
		return fmt.Errorf("%w: %s", ErrTenantDenied, tenantID)
	}
	return nil
}
