package jwt

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	svc := NewService("secret", time.Minute)
	shopID := uuid.New()

	token, err := svc.GenerateAccessToken(shopID, RoleOwner)
	require.NoError(t, err)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, shopID, claims.ShopID)
	assert.Equal(t, RoleOwner, claims.Role)
}

func TestExpiredAndForeignTokens(t *testing.T) {
	expired := NewService("secret", -time.Minute)
	token, err := expired.GenerateAccessToken(uuid.New(), RoleOwner)
	require.NoError(t, err)

	_, err = expired.ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)

	other := NewService("other-secret", time.Minute)
	token, err = other.GenerateAccessToken(uuid.New(), RoleOwner)
	require.NoError(t, err)

	_, err = NewService("secret", time.Minute).ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
