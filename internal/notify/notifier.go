package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/helpdesk/internal/messenger"
	"github.com/gosuda/helpdesk/internal/tool"
)

// ErrPlatformNotFound is returned when a messenger platform is not registered.
var ErrPlatformNotFound = errors.New("notify: platform not found") //nolint:gochecknoglobals // sentinel error

// MessengerRegistry maps platform names to Messenger implementations.
type MessengerRegistry interface {
	Get(platform string) (messenger.Messenger, bool)
}

// Escalation announces created tickets in the team's escalation channels.
type Escalation struct {
	messengers MessengerRegistry
	platform   string
	channels   []string
}

// New creates an Escalation that posts through the platform's messenger to
// every channel in channels.
func New(messengers MessengerRegistry, platform string, channels []string) *Escalation {
	return &Escalation{
		messengers: messengers,
		platform:   platform,
		channels:   channels,
	}
}

// TicketCreated posts a short announcement of ticket to each escalation
// channel. Falls back to logging if none are configured.
func (n *Escalation) TicketCreated(ctx context.Context, source messenger.Target, ticket *tool.Ticket) error {
	message := FormatTicket(source, ticket)

	if len(n.channels) == 0 {
		log.Info().Str("ticket", ticket.Identifier).Str("channel_id", source.ChannelID).Msg("notify: no escalation channels configured")
		return nil
	}

	var errs []error
	for _, ch := range n.channels {
		if ch == source.ChannelID {
			continue
		}
		if err := n.NotifyVia(ctx, n.platform, ch, message); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("notify.Escalation.TicketCreated: %w", err)
	}
	return nil
}

// NotifyVia sends a message using a specific platform and channel directly.
func (n *Escalation) NotifyVia(ctx context.Context, platform, channelID, message string) error {
	msg, ok := n.messengers.Get(platform)
	if !ok {
		return fmt.Errorf("notify.Escalation.NotifyVia: platform %q: %w", platform, ErrPlatformNotFound)
	}

	if _, err := msg.SendMessage(ctx, channelID, "", message); err != nil {
		return fmt.Errorf("notify.Escalation.NotifyVia: send: %w", err)
	}

	return nil
}

// FormatTicket renders the escalation announcement for ticket.
func FormatTicket(source messenger.Target, ticket *tool.Ticket) string {
	name := ticket.Identifier
	if name == "" {
		name = ticket.ID
	}
	text := fmt.Sprintf("New ticket %s opened from <#%s>", name, source.ChannelID)
	if ticket.URL != "" {
		text += ": " + ticket.URL
	}
	return text
}
