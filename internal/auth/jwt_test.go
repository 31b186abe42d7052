package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/helpdesk/internal/auth"
)

func TestJWT_IssueAndValidateRoundTrip(t *testing.T) {
	t.Parallel()

	secret := "test-secret-key-very-long-and-secure"

	tests := []struct {
		name string
		role string
	}{
		{name: "admin token", role: auth.RoleAdmin},
		{name: "viewer token", role: auth.RoleViewer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			token, err := auth.IssueToken(secret, "ops@example.com", tt.role, 5*time.Minute)
			require.NoError(t, err)
			require.NotEmpty(t, token)

			claims, err := auth.ValidateToken(secret, token)
			require.NoError(t, err)
			require.NotNil(t, claims)

			assert.Equal(t, "ops@example.com", claims.Subject)
			assert.Equal(t, tt.role, claims.Role)
			assert.Equal(t, "helpdesk", claims.Issuer)
			assert.NotNil(t, claims.IssuedAt)
			assert.NotNil(t, claims.ExpiresAt)
		})
	}
}

func TestJWT_UnknownRoleRejected(t *testing.T) {
	t.Parallel()

	token, err := auth.IssueToken("secret", "someone", "root", time.Minute)

	require.ErrorIs(t, err, auth.ErrInvalidRole)
	assert.Empty(t, token)
}

func TestJWT_ExpiredTokenRejected(t *testing.T) {
	t.Parallel()

	secret := "test-secret-key"

	// Issue a token that has already expired (negative TTL).
	token, err := auth.IssueToken(secret, "ops", auth.RoleAdmin, -1*time.Second)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := auth.ValidateToken(secret, token)
	require.Error(t, err)
	assert.Nil(t, claims)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestJWT_InvalidSecretRejected(t *testing.T) {
	t.Parallel()

	token, err := auth.IssueToken("correct-secret", "ops", auth.RoleAdmin, 5*time.Minute)
	require.NoError(t, err)

	// Validate with a different secret.
	claims, err := auth.ValidateToken("wrong-secret", token)
	require.Error(t, err)
	assert.Nil(t, claims)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestJWT_ForeignIssuerRejected(t *testing.T) {
	t.Parallel()

	secret := "shared-secret"
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
		Role: auth.RoleAdmin,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)

	got, err := auth.ValidateToken(secret, token)
	require.ErrorIs(t, err, auth.ErrInvalidToken)
	assert.Nil(t, got)
}

func TestJWT_NoneAlgorithmRejected(t *testing.T) {
	t.Parallel()

	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "helpdesk"},
		Role:             auth.RoleAdmin,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	got, err := auth.ValidateToken("secret", token)
	require.ErrorIs(t, err, auth.ErrInvalidToken)
	assert.Nil(t, got)
}

func TestJWT_MalformedTokenRejected(t *testing.T) {
	t.Parallel()

	claims, err := auth.ValidateToken("secret", "not.a.valid.jwt.token")
	require.Error(t, err)
	assert.Nil(t, claims)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}
