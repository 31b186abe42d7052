package agent

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/helpdesk/internal/domain"
)

// RunRecorder receives a transcript of every run. Implementations must not
// block the run for long and must swallow their own failures.
type RunRecorder interface {
	Record(ctx context.Context, runID uuid.UUID, channelID, entryType, content string)
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, uuid.UUID, string, string, string) {}

// AuditRecorder appends run transcripts to a RunLogRepository.
type AuditRecorder struct {
	repo    domain.RunLogRepository
	timeout time.Duration
}

// NewAuditRecorder creates a RunRecorder backed by repo.
func NewAuditRecorder(repo domain.RunLogRepository) *AuditRecorder {
	return &AuditRecorder{repo: repo, timeout: 5 * time.Second}
}

// Record appends one entry. Failures are logged and dropped.
func (a *AuditRecorder) Record(ctx context.Context, runID uuid.UUID, channelID, entryType, content string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()

	entry := &domain.RunLogEntry{
		ID:        uuid.New(),
		RunID:     runID,
		ChannelID: channelID,
		EntryType: entryType,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if err := a.repo.Append(ctx, entry); err != nil {
		log.Warn().Err(err).Str("run_id", runID.String()).Str("entry_type", entryType).Msg("agent: audit append failed")
	}
}
