package v1_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gosuda/helpdesk/internal/agent"
	"github.com/gosuda/helpdesk/internal/domain"
	"github.com/gosuda/helpdesk/internal/server/middleware"
)

// ---------------------------------------------------------------------------
// Context helpers: inject role into context for DoCtx
// ---------------------------------------------------------------------------

func roleCtx(role string) context.Context {
	return context.WithValue(context.Background(), middleware.ContextKeyUserRole, role)
}

func adminCtx() context.Context  { return roleCtx(middleware.RoleAdmin) }
func viewerCtx() context.Context { return roleCtx(middleware.RoleViewer) }

// ---------------------------------------------------------------------------
// Mock ChannelService
// ---------------------------------------------------------------------------

type mockChannels struct {
	statsFunc func(channelID string) (agent.ChannelStatus, bool)
	resetFunc func(channelID string) bool
	tools     []string
}

func (m *mockChannels) Stats(channelID string) (agent.ChannelStatus, bool) {
	return m.statsFunc(channelID)
}

func (m *mockChannels) ResetSession(channelID string) bool {
	return m.resetFunc(channelID)
}

func (m *mockChannels) Tools() []string { return m.tools }

// ---------------------------------------------------------------------------
// Mock RunLogReader
// ---------------------------------------------------------------------------

type mockRunLogs struct {
	listFunc func(ctx context.Context, channelID string, limit, offset int) ([]*domain.RunLogEntry, error)
}

func (m *mockRunLogs) ListByChannel(ctx context.Context, channelID string, limit, offset int) ([]*domain.RunLogEntry, error) {
	return m.listFunc(ctx, channelID, limit, offset)
}

// ---------------------------------------------------------------------------
// Mock APIKeyVerifier
// ---------------------------------------------------------------------------

type mockKeys struct {
	valid string
}

func (m *mockKeys) Verify(raw string) error {
	if raw != m.valid {
		return errors.New("invalid api key")
	}
	return nil
}

// parseErrorBody decodes a huma problem response and returns its detail.
func parseErrorBody(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	detail, _ := body["detail"].(string)
	return detail
}
