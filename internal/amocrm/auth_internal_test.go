package amocrm

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, now.Add(time.Hour), tokenExpiry(&tokenResponse{ExpiresIn: 3600}, now))

	exp := now.Add(10 * time.Hour)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("any"))
	require.NoError(t, err)
	assert.Equal(t, exp.Unix(), tokenExpiry(&tokenResponse{AccessToken: signed}, now).Unix())

	assert.Equal(t, now.Add(fallbackTokenTTL), tokenExpiry(&tokenResponse{AccessToken: "opaque"}, now))
}
