package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func testClaims() Claims {
	venueID := uuid.New()
	return Claims{
		UserID:          "u-1",
		VenueID:         venueID,
		Role:            "server",
		AllowedVenueIDs: []uuid.UUID{venueID},
		ExpiresAt:       t0.Add(time.Hour).Unix(),
	}
}

func TestSignVerifyRoundtrip(t *testing.T) {
	codec := NewCodec([]byte("secret"))
	claims := testClaims()

	token, err := codec.Sign(claims)
	require.NoError(t, err)

	got, err := codec.Verify(token, t0)
	require.NoError(t, err)
	assert.Equal(t, claims, got)
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	codec := NewCodec([]byte("secret"))
	token, err := codec.Sign(testClaims())
	require.NoError(t, err)

	_, err = codec.Verify("x"+token, t0)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	token, err := NewCodec([]byte("secret")).Sign(testClaims())
	require.NoError(t, err)

	_, err = NewCodec([]byte("other")).Verify(token, t0)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyRejectsMalformedToken(t *testing.T) {
	codec := NewCodec([]byte("secret"))

	_, err := codec.Verify("not-a-token", t0)
	assert.ErrorIs(t, err, ErrMalformedToken)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	codec := NewCodec([]byte("secret"))
	token, err := codec.Sign(testClaims())
	require.NoError(t, err)

	_, err = codec.Verify(token, t0.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestAllowsVenue(t *testing.T) {
	claims := testClaims()
	assert.True(t, claims.AllowsVenue(claims.VenueID))
	assert.False(t, claims.AllowsVenue(uuid.New()))
}

func TestCanOverride(t *testing.T) {
	assert.False(t, Claims{Role: "server"}.CanOverride())
	assert.False(t, Claims{Role: "cook"}.CanOverride())
	assert.True(t, Claims{Role: "manager"}.CanOverride())
	assert.True(t, Claims{Role: "admin"}.CanOverride())
}
