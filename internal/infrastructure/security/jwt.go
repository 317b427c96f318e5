// Package security provides the admin credential used against the TractStack backend
package security

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const (
	adminTokenTTL     = 24 * time.Hour
	adminTokenRefresh = 5 * time.Minute
)

// ErrMissingSecret is returned when a tenant has no JWT secret configured.
var ErrMissingSecret = errors.New("tenant JWT secret is not configured")

// AdminTokenSource mints and caches the admin_auth bearer token the backend's
// analytics routes require. Tokens are reused until shortly before expiry.
type AdminTokenSource struct {
	mu       sync.Mutex
	secret   []byte
	tenantID string
	token    string
	expires  time.Time
	now      func() time.Time
}

// NewAdminTokenSource creates a token source for one tenant.
func NewAdminTokenSource(tenantID, jwtSecret string) *AdminTokenSource {
	return &AdminTokenSource{
		secret:   []byte(jwtSecret),
		tenantID: tenantID,
		now:      time.Now,
	}
}

// Token returns a valid signed token, minting a new one when needed.
func (s *AdminTokenSource) Token() (string, error) {
	if len(s.secret) == 0 {
		return "", ErrMissingSecret
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if s.token != "" && now.Add(adminTokenRefresh).Before(s.expires) {
		return s.token, nil
	}

	expires := now.Add(adminTokenTTL)
	claims := jwt.MapClaims{
		"role":     "admin",
		"tenantId": s.tenantID,
		"type":     "admin_auth",
		"jti":      GenerateULID(),
		"iat":      now.Unix(),
		"exp":      expires.Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", err
	}

	s.token = signed
	s.expires = expires
	return signed, nil
}

// ValidateJWT validates a JWT token and returns the claims
func ValidateJWT(tokenString, jwtSecret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}
