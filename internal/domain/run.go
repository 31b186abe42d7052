package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RunState is the state of a single reasoning run.
type RunState string

const (
	RunStateAwaitingModel  RunState = "awaiting_model"
	RunStateExecutingTools RunState = "executing_tools"
	RunStateDone           RunState = "done"
	RunStateAbortedLimit   RunState = "aborted_limit"
	RunStateFailed         RunState = "failed"
)

// ValidTransition checks if a run state transition is allowed.
// Allowed: awaiting_model->{executing_tools,done,aborted_limit,failed},
// executing_tools->{awaiting_model,aborted_limit}.
func (s RunState) ValidTransition(to RunState) bool {
	switch s {
	case RunStateAwaitingModel:
		return to == RunStateExecutingTools || to == RunStateDone ||
			to == RunStateAbortedLimit || to == RunStateFailed
	case RunStateExecutingTools:
		return to == RunStateAwaitingModel || to == RunStateAbortedLimit
	default:
		return false
	}
}

// Terminal reports whether no further transitions are possible.
func (s RunState) Terminal() bool {
	return s == RunStateDone || s == RunStateAbortedLimit || s == RunStateFailed
}

// Outcome classifies what a finished run accomplished for the user.
type Outcome string

const (
	OutcomeAnswered      Outcome = "answered"
	OutcomeSilent        Outcome = "silent"
	OutcomeTicketCreated Outcome = "ticket_created"
	OutcomeTimedOut      Outcome = "timed_out"
	OutcomeFailed        Outcome = "failed"
)

// RunLogEntry records a single event of a reasoning run for audit.
type RunLogEntry struct {
	ID        uuid.UUID `json:"id"`
	RunID     uuid.UUID `json:"run_id"`
	ChannelID string    `json:"channel_id"`
	EntryType string    `json:"entry_type"` // "user", "assistant", "tool_call", "tool_result", "error", "outcome"
	Content   string    `json:"content"`    // the actual text/JSON payload
	CreatedAt time.Time `json:"created_at"`
}

// RunLogRepository stores ordered audit entries per run. It is write-mostly;
// entries are never read back into a live session.
type RunLogRepository interface {
	Append(ctx context.Context, entry *RunLogEntry) error
	ListByChannel(ctx context.Context, channelID string, limit, offset int) ([]*RunLogEntry, error)
}
