package slack

import (
	"fmt"

	slacklib "github.com/slack-go/slack"

	"github.com/gosuda/helpdesk/internal/agent"
)

// HelpText lists the commands understood in a channel.
const HelpText = "Ask me anything about the services I can see. Commands:\n" +
	"• `reset` clears this channel's conversation\n" +
	"• `stats` shows usage for this channel\n" +
	"• `help` shows this message"

// BuildStatsBlocks builds Slack Block Kit blocks for a channel usage report.
func BuildStatsBlocks(status agent.ChannelStatus) []slacklib.Block {
	header := slacklib.NewSectionBlock(
		slacklib.NewTextBlockObject(slacklib.MarkdownType, "*Channel usage*", false, false),
		nil,
		nil,
	)

	fields := []*slacklib.TextBlockObject{
		markdownField("Messages", fmt.Sprintf("%d", status.MessageCount)),
		markdownField("Cost", fmt.Sprintf("$%.4f", status.TotalCost)),
		markdownField("Tokens in / out", fmt.Sprintf("%d / %d", status.InputTokens, status.OutputTokens)),
		markdownField("Tickets", fmt.Sprintf("%d", status.TicketsCreated)),
	}
	body := slacklib.NewSectionBlock(nil, fields, nil)

	since := slacklib.NewContextBlock("",
		slacklib.NewTextBlockObject(slacklib.MarkdownType,
			"Session started "+status.CreatedAt.UTC().Format("2006-01-02 15:04 MST"), false, false),
	)

	return []slacklib.Block{header, body, since}
}

// StatsFallback is the plain-text rendering of BuildStatsBlocks.
func StatsFallback(status agent.ChannelStatus) string {
	return fmt.Sprintf("Messages: %d, cost: $%.4f, tokens: %d in / %d out, tickets: %d",
		status.MessageCount, status.TotalCost, status.InputTokens, status.OutputTokens, status.TicketsCreated)
}

func markdownField(label, value string) *slacklib.TextBlockObject {
	return slacklib.NewTextBlockObject(slacklib.MarkdownType, "*"+label+"*\n"+value, false, false)
}
