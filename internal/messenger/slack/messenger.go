package slack

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	slacklib "github.com/slack-go/slack"

	"github.com/gosuda/helpdesk/internal/messenger"
)

// MaxMessageLength is the longest text Slack accepts in one message.
const MaxMessageLength = 40000

// SlackAPI abstracts the subset of the Slack client used by SlackMessenger.
// This allows testing without real HTTP calls.
type SlackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slacklib.MsgOption) (string, string, error)
}

// SlackMessenger implements messenger.Messenger for Slack.
type SlackMessenger struct {
	api      SlackAPI
	maxChunk int
}

// Compile-time interface check.
var _ messenger.Messenger = (*SlackMessenger)(nil) //nolint:gochecknoglobals // compile-time check

// NewSlackMessenger creates a SlackMessenger with the given API client.
func NewSlackMessenger(api SlackAPI) *SlackMessenger {
	return &SlackMessenger{api: api, maxChunk: MaxMessageLength}
}

// SendMessage posts text to a Slack channel, threaded under threadTS when it
// is set. Text longer than MaxMessageLength goes out as several messages; the
// timestamp of the last one is returned.
func (m *SlackMessenger) SendMessage(ctx context.Context, channelID, threadTS, text string) (messenger.MessageID, error) {
	var ts string
	for _, chunk := range SplitMessage(text, m.maxChunk) {
		opts := []slacklib.MsgOption{slacklib.MsgOptionText(chunk, false)}
		if threadTS != "" {
			opts = append(opts, slacklib.MsgOptionTS(threadTS))
		}

		var err error
		_, ts, err = m.api.PostMessageContext(ctx, channelID, opts...)
		if err != nil {
			return "", fmt.Errorf("slack.SlackMessenger.SendMessage: %w", err)
		}
	}

	return messenger.MessageID(ts), nil
}

// SendBlocks posts a Block Kit message with fallback text for notifications.
func (m *SlackMessenger) SendBlocks(ctx context.Context, channelID, threadTS, fallback string, blocks []slacklib.Block) (messenger.MessageID, error) {
	opts := []slacklib.MsgOption{
		slacklib.MsgOptionText(fallback, false),
		slacklib.MsgOptionBlocks(blocks...),
	}
	if threadTS != "" {
		opts = append(opts, slacklib.MsgOptionTS(threadTS))
	}

	_, ts, err := m.api.PostMessageContext(ctx, channelID, opts...)
	if err != nil {
		return "", fmt.Errorf("slack.SlackMessenger.SendBlocks: %w", err)
	}

	return messenger.MessageID(ts), nil
}

// Platform returns the messenger platform identifier.
func (m *SlackMessenger) Platform() string {
	return "slack"
}

// SplitMessage cuts text into chunks of at most limit bytes, preferring line
// breaks and never splitting a UTF-8 sequence. Empty text yields one empty chunk.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(text) > limit {
		cut := strings.LastIndexByte(text[:limit], '\n')
		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			if cut == 0 {
				cut = limit
			}
		}
		chunks = append(chunks, text[:cut])
		text = strings.TrimPrefix(text[cut:], "\n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
