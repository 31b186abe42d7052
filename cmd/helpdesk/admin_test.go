package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/helpdesk/internal/auth"
	"github.com/gosuda/helpdesk/internal/secrets"
)

const testJWTSecret = "test-secret-that-is-at-least-32-bytes-long"

func TestTokenCmd(t *testing.T) {
	t.Setenv("HELPDESK_ADMIN_JWT_SECRET", testJWTSecret)

	var out bytes.Buffer
	cmd := tokenCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"ops", "--role", "admin"})

	require.NoError(t, cmd.Execute())

	claims, err := auth.ValidateToken(testJWTSecret, strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, auth.RoleAdmin, claims.Role)
}

func TestTokenCmd_Errors(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		args   []string
	}{
		{name: "short secret", secret: "short", args: []string{"ops"}},
		{name: "unknown role", secret: testJWTSecret, args: []string{"ops", "--role", "owner"}},
		{name: "missing subject", secret: testJWTSecret, args: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HELPDESK_ADMIN_JWT_SECRET", tt.secret)

			cmd := tokenCmd()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs(tt.args)

			assert.Error(t, cmd.Execute())
		})
	}
}

func TestKeygenCmd(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	cmd := keygenCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	raw := strings.TrimSpace(strings.TrimPrefix(lines[0], "key:"))
	hash := strings.TrimSpace(strings.TrimPrefix(lines[1], "hash:"))

	keys, err := auth.NewKeyVerifier([]string{hash})
	require.NoError(t, err)
	assert.NoError(t, keys.Verify(raw))
}

func TestKeygenCmd_Memory(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	cmd := keygenCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--memory"})

	require.NoError(t, cmd.Execute())

	_, err := secrets.NewVaultFromBase64(strings.TrimSpace(out.String()))
	assert.NoError(t, err)
}
