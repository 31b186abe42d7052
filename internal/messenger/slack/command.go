package slack

import (
	"regexp"
	"strings"
)

// CommandAction represents the type of parsed command.
type CommandAction string

const (
	// CommandActionAsk is a regular message for the assistant.
	CommandActionAsk CommandAction = "ask"
	// CommandActionReset clears the channel's conversation.
	CommandActionReset CommandAction = "reset"
	// CommandActionStats reports the channel's usage.
	CommandActionStats CommandAction = "stats"
	// CommandActionHelp indicates a help request.
	CommandActionHelp CommandAction = "help"
	// CommandActionUnknown indicates an empty message.
	CommandActionUnknown CommandAction = "unknown"
)

// Command represents a parsed user message from Slack.
type Command struct {
	Action    CommandAction
	Text      string // message with the bot mention removed
	Mentioned bool
	Raw       string // original text
}

// mentionPattern matches Slack-encoded user mentions (<@U12345> or <@U12345|name>).
var mentionPattern = regexp.MustCompile(`<@([A-Z0-9]+)(?:\|[^>]*)?>`) //nolint:gochecknoglobals // compiled regexp

// ParseCommand strips mentions of botUserID from text and classifies the rest.
// Keywords only count as commands when they are the entire message. An empty
// botUserID strips every mention.
func ParseCommand(text, botUserID string) Command {
	cmd := Command{
		Action: CommandActionUnknown,
		Raw:    text,
	}

	stripped := mentionPattern.ReplaceAllStringFunc(text, func(m string) string {
		id := mentionPattern.FindStringSubmatch(m)[1]
		if botUserID == "" || id == botUserID {
			cmd.Mentioned = true
			return ""
		}
		return m
	})
	stripped = strings.TrimSpace(stripped)
	if stripped == "" {
		return cmd
	}
	cmd.Text = stripped

	switch strings.ToLower(stripped) {
	case "reset", "/reset", "!reset":
		cmd.Action = CommandActionReset
	case "stats", "status":
		cmd.Action = CommandActionStats
	case "help":
		cmd.Action = CommandActionHelp
	default:
		cmd.Action = CommandActionAsk
	}
	return cmd
}
