package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

type ListToolsOutput struct {
	Body struct {
		Tools []string `json:"tools" doc:"Names of the tools the assistant may call"`
	}
}

func RegisterToolRoutes(api huma.API, channels ChannelService) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tools",
		Method:      http.MethodGet,
		Path:        "/tools",
		Summary:     "List registered assistant tools",
		Tags:        []string{"Tools"},
	}, func(_ context.Context, _ *struct{}) (*ListToolsOutput, error) {
		out := &ListToolsOutput{}
		out.Body.Tools = channels.Tools()
		if out.Body.Tools == nil {
			out.Body.Tools = []string{}
		}
		return out, nil
	})
}
