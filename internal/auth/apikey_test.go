package auth_test

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/helpdesk/internal/auth"
)

func TestGenerateAPIKey(t *testing.T) {
	t.Parallel()

	raw, hash, err := auth.GenerateAPIKey()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(raw, "hd_"))
	assert.Len(t, raw, len("hd_")+32)

	sum := sha256.Sum256([]byte(raw))
	assert.Equal(t, hex.EncodeToString(sum[:]), hash)
	assert.Equal(t, hash, auth.HashAPIKey(raw))

	other, _, err := auth.GenerateAPIKey()
	require.NoError(t, err)
	assert.NotEqual(t, raw, other)
}

func TestKeyVerifier(t *testing.T) {
	t.Parallel()

	rawA, hashA, err := auth.GenerateAPIKey()
	require.NoError(t, err)
	rawB, hashB, err := auth.GenerateAPIKey()
	require.NoError(t, err)

	v, err := auth.NewKeyVerifier([]string{hashA, " " + hashB + " "})
	require.NoError(t, err)

	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{name: "first key", key: rawA},
		{name: "second key", key: rawB},
		{name: "wrong key", key: "hd_00000000000000000000000000000000", wantErr: true},
		{name: "missing prefix", key: strings.TrimPrefix(rawA, "hd_"), wantErr: true},
		{name: "empty", key: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := v.Verify(tt.key)
			if tt.wantErr {
				require.ErrorIs(t, err, auth.ErrInvalidAPIKey)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestKeyVerifier_NoKeysRejectsEverything(t *testing.T) {
	t.Parallel()

	raw, _, err := auth.GenerateAPIKey()
	require.NoError(t, err)

	v, err := auth.NewKeyVerifier(nil)
	require.NoError(t, err)

	require.ErrorIs(t, v.Verify(raw), auth.ErrInvalidAPIKey)
}

func TestNewKeyVerifier_MalformedHash(t *testing.T) {
	t.Parallel()

	tests := []string{"not-hex", "abcd", strings.Repeat("zz", 32)}
	for _, h := range tests {
		_, err := auth.NewKeyVerifier([]string{h})
		require.Error(t, err, h)
	}
}
