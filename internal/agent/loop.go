package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/helpdesk/internal/domain"
	"github.com/gosuda/helpdesk/internal/messenger"
	"github.com/gosuda/helpdesk/internal/session"
	"github.com/gosuda/helpdesk/internal/tool"
)

const (
	// DefaultMaxTurns bounds the number of model calls in one run.
	DefaultMaxTurns = 50
	// DefaultSilentMarker is the literal the model emits to stay silent.
	DefaultSilentMarker = "[NO_REPLY]"

	// TimeoutMessage is delivered when a run exhausts its turn budget.
	TimeoutMessage = "Analysis timed out: I hit my step limit before reaching an answer. Try narrowing the question or ask again."
)

// ErrModel wraps failures of the model call that ended a run.
var ErrModel = errors.New("agent: model call failed") //nolint:gochecknoglobals // sentinel error

// LoopConfig tunes a Loop.
type LoopConfig struct {
	MaxTurns        int
	SilentMarker    string
	SystemPrompt    string
	HistoryMaxTurns int // 0 keeps the full history
	Pricing         domain.Pricing
}

// RunResult describes a finished run.
type RunResult struct {
	RunID     uuid.UUID
	State     domain.RunState
	Outcome   domain.Outcome
	Text      string // final model text, including suppressed text
	Turns     int    // number of model calls made
	Delivered int    // number of chunks handed to Delivery
	Ticket    *tool.Ticket
}

// Loop drives one message from the user to a final answer, calling tools in
// between as the model requests.
type Loop struct {
	model    Model
	tools    ToolExecutor
	delivery messenger.Delivery
	recorder RunRecorder
	cfg      LoopConfig
}

// LoopOption configures optional Loop collaborators.
type LoopOption func(*Loop)

// WithRecorder sets the transcript recorder.
func WithRecorder(r RunRecorder) LoopOption {
	return func(l *Loop) { l.recorder = r }
}

// NewLoop creates a Loop. Zero config fields take their defaults.
func NewLoop(model Model, tools ToolExecutor, delivery messenger.Delivery, cfg LoopConfig, opts ...LoopOption) *Loop {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.SilentMarker == "" {
		cfg.SilentMarker = DefaultSilentMarker
	}
	l := &Loop{
		model:    model,
		tools:    tools,
		delivery: delivery,
		recorder: nopRecorder{},
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// run is the mutable state of a single Run call.
type run struct {
	*RunResult
	sess   *session.Session
	target messenger.Target
}

func (r *run) transition(to domain.RunState) {
	if !r.State.ValidTransition(to) {
		log.Error().Str("run_id", r.RunID.String()).Str("from", string(r.State)).Str("to", string(to)).
			Msg("agent: invalid run state transition")
	}
	r.State = to
}

// Run processes msg against sess. The caller must hold the channel's
// processing lock for the whole call. A model failure ends the run with a
// best-effort error notice to the channel and is returned wrapped in ErrModel.
// Tool failures never end the run.
func (l *Loop) Run(ctx context.Context, sess *session.Session, msg domain.InboundMessage) (*RunResult, error) {
	r := &run{
		RunResult: &RunResult{
			RunID:   uuid.New(),
			State:   domain.RunStateAwaitingModel,
			Outcome: domain.OutcomeAnswered,
		},
		sess:   sess,
		target: messenger.Target{ChannelID: msg.ChannelID, ThreadTS: msg.ThreadTS},
	}
	logger := log.With().Str("run_id", r.RunID.String()).Str("channel_id", msg.ChannelID).Logger()
	ctx = tool.WithChannel(ctx, msg.ChannelID)

	sess.Append(domain.UserTurn(msg.Text, msg.Images))
	l.recorder.Record(ctx, r.RunID, msg.ChannelID, "user", msg.Text)

	toolDefs := l.tools.Definitions()

	for {
		if r.Turns >= l.cfg.MaxTurns {
			r.transition(domain.RunStateAbortedLimit)
			r.Outcome = domain.OutcomeTimedOut
			r.Text = TimeoutMessage
			logger.Warn().Int("turns", r.Turns).Msg("agent: turn limit reached")
			l.deliver(ctx, r, TimeoutMessage)
			l.recorder.Record(ctx, r.RunID, msg.ChannelID, "outcome", string(r.Outcome))
			return r.RunResult, nil
		}
		r.Turns++

		history := sess.History()
		if trimmed := windowHistory(history, l.cfg.HistoryMaxTurns); len(trimmed) < len(history) {
			sess.ReplaceHistory(trimmed)
			history = trimmed
		}

		completion, err := l.model.Complete(ctx, CompletionRequest{
			System:  l.cfg.SystemPrompt,
			History: history,
			Tools:   toolDefs,
		})
		if err != nil {
			r.transition(domain.RunStateFailed)
			r.Outcome = domain.OutcomeFailed
			logger.Error().Err(err).Int("turn", r.Turns).Msg("agent: model call failed")
			l.deliver(ctx, r, "Something broke: "+err.Error())
			l.recorder.Record(ctx, r.RunID, msg.ChannelID, "error", err.Error())
			return r.RunResult, fmt.Errorf("agent.Loop.Run: %w: %w", ErrModel, err)
		}

		cost := l.cfg.Pricing.Cost(completion.Usage)
		sess.RecordCost(completion.Usage, cost)
		logger.Debug().
			Int("turn", r.Turns).
			Int64("input_tokens", completion.Usage.InputTokens).
			Int64("output_tokens", completion.Usage.OutputTokens).
			Float64("cost_usd", cost).
			Int("tool_calls", len(completion.ToolCalls)).
			Msg("agent: model responded")

		text := l.emitSegments(ctx, r, completion.Segments)
		assistant := domain.Turn{
			Role:      domain.RoleAssistant,
			Text:      text,
			ToolCalls: completion.ToolCalls,
		}
		if text != "" {
			l.recorder.Record(ctx, r.RunID, msg.ChannelID, "assistant", text)
		}

		if len(completion.ToolCalls) == 0 {
			sess.Append(assistant)
			r.transition(domain.RunStateDone)
			r.Text = text
			if r.Outcome == domain.OutcomeAnswered && l.suppressed(text) {
				r.Outcome = domain.OutcomeSilent
			}
			logger.Info().Int("turns", r.Turns).Str("outcome", string(r.Outcome)).Msg("agent: run finished")
			l.recorder.Record(ctx, r.RunID, msg.ChannelID, "outcome", string(r.Outcome))
			return r.RunResult, nil
		}

		r.transition(domain.RunStateExecutingTools)
		results := l.executeTools(ctx, r, completion.ToolCalls)
		sess.Append(assistant, domain.Turn{Role: domain.RoleToolResult, ToolResults: results})
		r.transition(domain.RunStateAwaitingModel)
	}
}

// emitSegments delivers every non-blank, non-suppressed segment in order,
// exactly as the model produced it, and returns the full text of the response.
func (l *Loop) emitSegments(ctx context.Context, r *run, segments []string) string {
	kept := make([]string, 0, len(segments))
	for _, seg := range segments {
		if strings.TrimSpace(seg) == "" {
			continue
		}
		kept = append(kept, seg)
		if l.suppressed(seg) {
			log.Debug().Str("run_id", r.RunID.String()).Msg("agent: segment suppressed by silent marker")
			continue
		}
		l.deliver(ctx, r, seg)
	}
	return strings.Join(kept, "\n\n")
}

func (l *Loop) suppressed(text string) bool {
	return strings.TrimSpace(text) != "" && strings.Contains(text, l.cfg.SilentMarker)
}

func (l *Loop) deliver(ctx context.Context, r *run, text string) {
	r.Delivered++
	if err := l.delivery.Deliver(ctx, r.target, text); err != nil {
		log.Warn().Err(err).Str("run_id", r.RunID.String()).Str("channel_id", r.target.ChannelID).
			Msg("agent: delivery failed")
	}
}

// executeTools runs invocations sequentially in the requested order. Errors
// become error-flagged results for the model to react to.
func (l *Loop) executeTools(ctx context.Context, r *run, calls []domain.ToolInvocation) []domain.ToolResult {
	results := make([]domain.ToolResult, 0, len(calls))
	for _, call := range calls {
		if call.ID == "" {
			call.ID = "call_" + uuid.NewString()
		}
		l.recorder.Record(ctx, r.RunID, r.target.ChannelID, "tool_call", formatCall(call))

		content, err := l.tools.Execute(ctx, call)
		res := domain.ToolResult{InvocationID: call.ID, Content: content}
		if err != nil {
			res.Content = err.Error()
			res.IsError = true
			log.Warn().Err(err).Str("run_id", r.RunID.String()).Str("tool", call.Name).Msg("agent: tool failed")
		} else if call.Name == tool.CreateTicketName {
			l.ticketCreated(r, content)
		}

		l.recorder.Record(ctx, r.RunID, r.target.ChannelID, "tool_result", res.Content)
		results = append(results, res)
	}
	return results
}

// ticketCreated marks the run as having produced a ticket for the user.
func (l *Loop) ticketCreated(r *run, content string) {
	r.Outcome = domain.OutcomeTicketCreated
	r.sess.RecordTicket()
	if t, ok := tool.ParseTicket(content); ok {
		r.Ticket = t
		log.Info().Str("run_id", r.RunID.String()).Str("ticket", t.Identifier).Msg("agent: ticket created")
	}
}

func formatCall(call domain.ToolInvocation) string {
	b, err := json.Marshal(call)
	if err != nil {
		return call.Name
	}
	return string(b)
}
