package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/helpdesk/internal/domain"
	"github.com/gosuda/helpdesk/internal/messenger"
	"github.com/gosuda/helpdesk/internal/queue"
	"github.com/gosuda/helpdesk/internal/session"
	"github.com/gosuda/helpdesk/internal/tool"
)

// ResetConfirmation is posted after a user resets their channel.
const ResetConfirmation = "Conversation cleared. Starting fresh."

// TicketNotifier is told about every ticket a run creates.
// *notify.Escalation satisfies this interface.
type TicketNotifier interface {
	TicketCreated(ctx context.Context, source messenger.Target, ticket *tool.Ticket) error
}

// ChannelStatus is the externally visible state of a channel.
type ChannelStatus struct {
	domain.Stats
	Busy    bool `json:"busy"`
	Pending int  `json:"pending"`
}

// Orchestrator is the entry point for inbound chat messages. It owns the
// session store and the per-channel queue and hands each message to the Loop
// while holding that channel's processing lock.
type Orchestrator struct {
	sessions *session.Store
	queue    *queue.Queue
	loop     *Loop
	delivery messenger.Delivery
	notifier TicketNotifier
}

// OrchestratorOption configures optional Orchestrator collaborators.
type OrchestratorOption func(*Orchestrator)

// WithTicketNotifier sets the notifier for created tickets.
func WithTicketNotifier(n TicketNotifier) OrchestratorOption {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithQueueOptions forwards options to the underlying queue.
func WithQueueOptions(opts ...queue.Option) OrchestratorOption {
	return func(o *Orchestrator) {
		o.queue = queue.New(o.handle, opts...)
	}
}

func NewOrchestrator(sessions *session.Store, loop *Loop, delivery messenger.Delivery, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		sessions: sessions,
		loop:     loop,
		delivery: delivery,
	}
	o.queue = queue.New(o.handle)
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit accepts an inbound message without blocking. The message runs as
// soon as every earlier message for the same channel has finished; the
// returned channel yields its final text.
func (o *Orchestrator) Submit(ctx context.Context, msg domain.InboundMessage) <-chan queue.Result {
	o.sessions.Touch(msg.ChannelID)
	return o.queue.Submit(ctx, msg)
}

// Do is Submit followed by a wait for the result.
func (o *Orchestrator) Do(ctx context.Context, msg domain.InboundMessage) (string, error) {
	o.sessions.Touch(msg.ChannelID)
	return o.queue.Do(ctx, msg)
}

// ResetSession discards the channel's history and stats. A run already in
// progress finishes against the discarded session. It reports whether a
// session existed.
func (o *Orchestrator) ResetSession(channelID string) bool {
	return o.sessions.Evict(channelID)
}

// Reset clears the channel and confirms to the user.
func (o *Orchestrator) Reset(ctx context.Context, target messenger.Target) {
	o.ResetSession(target.ChannelID)
	if err := o.delivery.Deliver(ctx, target, ResetConfirmation); err != nil {
		log.Warn().Err(err).Str("channel_id", target.ChannelID).Msg("agent: reset confirmation failed")
	}
}

// Stats returns the channel's accounting and queue state.
func (o *Orchestrator) Stats(channelID string) (ChannelStatus, bool) {
	stats, ok := o.sessions.Stats(channelID)
	if !ok {
		return ChannelStatus{}, false
	}
	return ChannelStatus{
		Stats:   stats,
		Busy:    o.queue.Busy(channelID),
		Pending: o.queue.Pending(channelID),
	}, true
}

// Tools returns the names of the tools offered to the model.
func (o *Orchestrator) Tools() []string {
	defs := o.loop.tools.Definitions()
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names
}

// Shutdown stops accepting messages, waits for in-flight runs until ctx ends,
// and drops all sessions.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	err := o.queue.Close(ctx)
	o.sessions.Close()
	if err != nil {
		return fmt.Errorf("agent.Orchestrator.Shutdown: %w", err)
	}
	return nil
}

// handle runs one message while the queue holds the channel lock.
func (o *Orchestrator) handle(ctx context.Context, msg domain.InboundMessage) (string, error) {
	sess := o.sessions.Acquire(msg.ChannelID)
	defer o.sessions.Release(sess)

	sess.RecordMessage()

	start := time.Now()
	res, err := o.loop.Run(ctx, sess, msg)
	if err != nil {
		return "", fmt.Errorf("agent.Orchestrator.handle(%q): %w", msg.ChannelID, err)
	}

	log.Info().
		Str("channel_id", msg.ChannelID).
		Str("run_id", res.RunID.String()).
		Str("outcome", string(res.Outcome)).
		Int("turns", res.Turns).
		Dur("elapsed", time.Since(start)).
		Msg("agent: message handled")

	if res.Ticket != nil && o.notifier != nil {
		target := messenger.Target{ChannelID: msg.ChannelID, ThreadTS: msg.ThreadTS}
		if notifyErr := o.notifier.TicketCreated(ctx, target, res.Ticket); notifyErr != nil {
			log.Warn().Err(notifyErr).Str("ticket", res.Ticket.Identifier).Msg("agent: ticket notification failed")
		}
	}

	if res.Outcome == domain.OutcomeSilent {
		return "", nil
	}
	return strings.TrimSpace(res.Text), nil
}
