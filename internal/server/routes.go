package server

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	v1 "github.com/gosuda/helpdesk/internal/api/v1"
	"github.com/gosuda/helpdesk/internal/api/ws"
	"github.com/gosuda/helpdesk/internal/config"
	hdslack "github.com/gosuda/helpdesk/internal/messenger/slack"
	"github.com/gosuda/helpdesk/internal/server/middleware"
)

func registerAuthRoutes(api huma.API, keys middleware.APIKeyVerifier, cfg *config.Config) {
	v1.RegisterAuthRoutes(api, keys, cfg.Admin.JWTSecret, cfg.Admin.TokenTTL)
}

func registerAPIRoutes(api huma.API, deps Deps) {
	v1.RegisterChannelRoutes(api, deps.Channels, deps.RunLogs)
	v1.RegisterToolRoutes(api, deps.Channels)
}

func registerWSRoutes(r chi.Router, hub *ws.Hub) {
	r.Get("/channels/{channelID}", hub.ServeChannel)
}

func registerSlackRoutes(r chi.Router, handler *hdslack.Handler) {
	r.Post("/events", handler.HandleEvents)
}
