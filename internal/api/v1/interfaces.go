package v1

import (
	"context"

	"github.com/gosuda/helpdesk/internal/agent"
	"github.com/gosuda/helpdesk/internal/domain"
)

// ChannelService abstracts the per-channel operations exposed over HTTP.
// *agent.Orchestrator satisfies this interface.
type ChannelService interface {
	Stats(channelID string) (agent.ChannelStatus, bool)
	ResetSession(channelID string) bool
	Tools() []string
}

// RunLogReader reads the audit trail of reasoning runs.
// *postgres.RunLogRepo satisfies this interface.
type RunLogReader interface {
	ListByChannel(ctx context.Context, channelID string, limit, offset int) ([]*domain.RunLogEntry, error)
}

// APIKeyVerifier checks a raw API key.
// *auth.KeyVerifier satisfies this interface.
type APIKeyVerifier interface {
	Verify(rawKey string) error
}

var _ ChannelService = (*agent.Orchestrator)(nil) //nolint:gochecknoglobals // compile-time check
