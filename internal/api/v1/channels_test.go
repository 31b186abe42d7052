package v1_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/gosuda/helpdesk/internal/api/v1"
	"github.com/gosuda/helpdesk/internal/agent"
	"github.com/gosuda/helpdesk/internal/domain"
)

// ---------------------------------------------------------------------------
// GET /channels/{channelID}/stats
// ---------------------------------------------------------------------------

func TestGetChannelStats(t *testing.T) {
	t.Parallel()

	t.Run("happy_path", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		channels := &mockChannels{
			statsFunc: func(channelID string) (agent.ChannelStatus, bool) {
				assert.Equal(t, "C1", channelID)
				return agent.ChannelStatus{
					Stats: domain.Stats{
						TotalCost:      0.0009,
						MessageCount:   2,
						InputTokens:    200,
						OutputTokens:   20,
						TicketsCreated: 1,
						CreatedAt:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
					},
					Busy:    true,
					Pending: 3,
				}, true
			},
		}

		v1.RegisterChannelRoutes(api, channels, nil)

		resp := api.GetCtx(viewerCtx(), "/channels/C1/stats")
		require.Equal(t, http.StatusOK, resp.Code)

		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.InDelta(t, 0.0009, body["total_cost"], 1e-12)
		assert.InDelta(t, 2, body["message_count"], 0)
		assert.InDelta(t, 200, body["input_tokens"], 0)
		assert.InDelta(t, 20, body["output_tokens"], 0)
		assert.InDelta(t, 1, body["tickets_created"], 0)
		assert.Equal(t, true, body["busy"])
		assert.InDelta(t, 3, body["pending"], 0)
	})

	t.Run("unknown_channel_404", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		channels := &mockChannels{
			statsFunc: func(string) (agent.ChannelStatus, bool) { return agent.ChannelStatus{}, false },
		}

		v1.RegisterChannelRoutes(api, channels, nil)

		resp := api.GetCtx(viewerCtx(), "/channels/C404/stats")
		assert.Equal(t, http.StatusNotFound, resp.Code)
		assert.Contains(t, parseErrorBody(t, resp), "no active session")
	})
}

// ---------------------------------------------------------------------------
// DELETE /channels/{channelID}/session
// ---------------------------------------------------------------------------

func TestResetChannelSession(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		ctx        context.Context
		exists     bool
		wantStatus int
		wantCalled bool
	}{
		{name: "admin_resets", ctx: adminCtx(), exists: true, wantStatus: http.StatusNoContent, wantCalled: true},
		{name: "admin_unknown_channel", ctx: adminCtx(), exists: false, wantStatus: http.StatusNotFound, wantCalled: true},
		{name: "viewer_forbidden", ctx: viewerCtx(), exists: true, wantStatus: http.StatusForbidden},
		{name: "no_role_forbidden", ctx: context.Background(), exists: true, wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, api := humatest.New(t)
			called := false
			channels := &mockChannels{
				resetFunc: func(channelID string) bool {
					called = true
					assert.Equal(t, "C1", channelID)
					return tt.exists
				},
			}

			v1.RegisterChannelRoutes(api, channels, nil)

			resp := api.DeleteCtx(tt.ctx, "/channels/C1/session")
			assert.Equal(t, tt.wantStatus, resp.Code)
			assert.Equal(t, tt.wantCalled, called)
		})
	}
}

// ---------------------------------------------------------------------------
// GET /channels/{channelID}/log
// ---------------------------------------------------------------------------

func TestListRunLog(t *testing.T) {
	t.Parallel()

	t.Run("happy_path_with_pagination", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		runID := uuid.New()
		logs := &mockRunLogs{
			listFunc: func(_ context.Context, channelID string, limit, offset int) ([]*domain.RunLogEntry, error) {
				assert.Equal(t, "C1", channelID)
				assert.Equal(t, 10, limit)
				assert.Equal(t, 5, offset)
				return []*domain.RunLogEntry{
					{ID: uuid.New(), RunID: runID, ChannelID: "C1", EntryType: "outcome", Content: "answered"},
					{ID: uuid.New(), RunID: runID, ChannelID: "C1", EntryType: "user", Content: "hi"},
				}, nil
			},
		}

		v1.RegisterChannelRoutes(api, &mockChannels{}, logs)

		resp := api.GetCtx(viewerCtx(), "/channels/C1/log?limit=10&offset=5")
		require.Equal(t, http.StatusOK, resp.Code)

		var body []domain.RunLogEntry
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.Len(t, body, 2)
		assert.Equal(t, "outcome", body[0].EntryType)
		assert.Equal(t, runID, body[1].RunID)
	})

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		logs := &mockRunLogs{
			listFunc: func(_ context.Context, _ string, limit, offset int) ([]*domain.RunLogEntry, error) {
				assert.Equal(t, 100, limit)
				assert.Equal(t, 0, offset)
				return nil, nil
			},
		}

		v1.RegisterChannelRoutes(api, &mockChannels{}, logs)

		resp := api.GetCtx(viewerCtx(), "/channels/C1/log")
		require.Equal(t, http.StatusOK, resp.Code)
		assert.JSONEq(t, "[]", resp.Body.String())
	})

	t.Run("limit_out_of_range_422", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		v1.RegisterChannelRoutes(api, &mockChannels{}, &mockRunLogs{})

		resp := api.GetCtx(viewerCtx(), "/channels/C1/log?limit=0")
		assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	})

	t.Run("store_error_500", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		logs := &mockRunLogs{
			listFunc: func(context.Context, string, int, int) ([]*domain.RunLogEntry, error) {
				return nil, errors.New("connection refused")
			},
		}

		v1.RegisterChannelRoutes(api, &mockChannels{}, logs)

		resp := api.GetCtx(viewerCtx(), "/channels/C1/log")
		assert.Equal(t, http.StatusInternalServerError, resp.Code)
	})

	t.Run("no_database_501", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		v1.RegisterChannelRoutes(api, &mockChannels{}, nil)

		resp := api.GetCtx(viewerCtx(), "/channels/C1/log")
		assert.Equal(t, http.StatusNotImplemented, resp.Code)
	})
}

// ---------------------------------------------------------------------------
// GET /tools
// ---------------------------------------------------------------------------

func TestListTools(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		tools []string
		want  string
	}{
		{name: "registered_tools", tools: []string{"check_env_vars", "query_logs"}, want: `{"tools":["check_env_vars","query_logs"]}`},
		{name: "no_tools", tools: nil, want: `{"tools":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, api := humatest.New(t)
			v1.RegisterToolRoutes(api, &mockChannels{tools: tt.tools})

			resp := api.GetCtx(viewerCtx(), "/tools")
			require.Equal(t, http.StatusOK, resp.Code)

			var body map[string]any
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			delete(body, "$schema")
			raw, err := json.Marshal(body)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(raw))
		})
	}
}
