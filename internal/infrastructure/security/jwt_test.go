package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminTokenSource_MintsAdminClaims(t *testing.T) {
	src := NewAdminTokenSource("acme", "s3cret")

	token, err := src.Token()
	require.NoError(t, err)

	claims, err := ValidateJWT(token, "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "admin", claims["role"])
	assert.Equal(t, "acme", claims["tenantId"])
	assert.Equal(t, "admin_auth", claims["type"])
}

func TestAdminTokenSource_ReusesUntilNearExpiry(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	src := NewAdminTokenSource("acme", "s3cret")
	src.now = func() time.Time { return now }

	first, err := src.Token()
	require.NoError(t, err)

	now = now.Add(time.Hour)
	second, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	now = now.Add(23 * time.Hour)
	third, err := src.Token()
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}

func TestAdminTokenSource_MissingSecret(t *testing.T) {
	_, err := NewAdminTokenSource("acme", "").Token()
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestValidateJWT_WrongSecret(t *testing.T) {
	token, err := NewAdminTokenSource("acme", "right").Token()
	require.NoError(t, err)

	_, err = ValidateJWT(token, "wrong")
	assert.Error(t, err)
}
