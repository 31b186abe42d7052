package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/helpdesk/internal/agent"
	"github.com/gosuda/helpdesk/internal/domain"
	"github.com/gosuda/helpdesk/internal/server/middleware"
)

type GetChannelStatsInput struct {
	ChannelID string `path:"channelID" minLength:"1" maxLength:"64" doc:"Chat channel ID"`
}

type GetChannelStatsOutput struct {
	Body agent.ChannelStatus
}

type ResetChannelSessionInput struct {
	ChannelID string `path:"channelID" minLength:"1" maxLength:"64" doc:"Chat channel ID"`
}

type ListRunLogInput struct {
	ChannelID string `path:"channelID" minLength:"1" maxLength:"64" doc:"Chat channel ID"`
	Limit     int    `query:"limit" minimum:"1" maximum:"500" default:"100" doc:"Max results"`
	Offset    int    `query:"offset" minimum:"0" default:"0" doc:"Offset for pagination"`
}

type ListRunLogOutput struct {
	Body []*domain.RunLogEntry
}

// RegisterChannelRoutes exposes session statistics, reset and the run log.
// runLogs may be nil when no database is configured.
func RegisterChannelRoutes(api huma.API, channels ChannelService, runLogs RunLogReader) {
	huma.Register(api, huma.Operation{
		OperationID: "get-channel-stats",
		Method:      http.MethodGet,
		Path:        "/channels/{channelID}/stats",
		Summary:     "Get usage statistics for a channel session",
		Tags:        []string{"Channels"},
	}, func(_ context.Context, input *GetChannelStatsInput) (*GetChannelStatsOutput, error) {
		status, ok := channels.Stats(input.ChannelID)
		if !ok {
			return nil, huma.Error404NotFound("no active session for channel")
		}
		return &GetChannelStatsOutput{Body: status}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reset-channel-session",
		Method:      http.MethodDelete,
		Path:        "/channels/{channelID}/session",
		Summary:     "Discard a channel's conversation session",
		Tags:        []string{"Channels"},
	}, func(ctx context.Context, input *ResetChannelSessionInput) (*struct{}, error) {
		if !middleware.IsAdmin(ctx) {
			return nil, huma.Error403Forbidden("admin role required")
		}

		if !channels.ResetSession(input.ChannelID) {
			return nil, huma.Error404NotFound("no active session for channel")
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-channel-run-log",
		Method:      http.MethodGet,
		Path:        "/channels/{channelID}/log",
		Summary:     "List audit entries of a channel's reasoning runs, newest first",
		Tags:        []string{"Channels"},
	}, func(ctx context.Context, input *ListRunLogInput) (*ListRunLogOutput, error) {
		if runLogs == nil {
			return nil, huma.Error501NotImplemented("run log storage is not configured")
		}

		entries, err := runLogs.ListByChannel(ctx, input.ChannelID, input.Limit, input.Offset)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list run log", err)
		}
		if entries == nil {
			entries = []*domain.RunLogEntry{}
		}

		return &ListRunLogOutput{Body: entries}, nil
	})
}
