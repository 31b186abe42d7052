package slack_test

import (
	"testing"
	"time"

	slacklib "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/helpdesk/internal/agent"
	"github.com/gosuda/helpdesk/internal/domain"
	hdslack "github.com/gosuda/helpdesk/internal/messenger/slack"
)

func TestBuildStatsBlocks(t *testing.T) {
	t.Parallel()

	status := agent.ChannelStatus{Stats: domain.Stats{
		TotalCost:      0.0123,
		MessageCount:   4,
		InputTokens:    1200,
		OutputTokens:   300,
		TicketsCreated: 1,
		CreatedAt:      time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC),
	}}

	blocks := hdslack.BuildStatsBlocks(status)

	require.Len(t, blocks, 3)
	assert.Equal(t, slacklib.MBTSection, blocks[0].BlockType())
	assert.Equal(t, slacklib.MBTSection, blocks[1].BlockType())
	assert.Equal(t, slacklib.MBTContext, blocks[2].BlockType())

	section, ok := blocks[1].(*slacklib.SectionBlock)
	require.True(t, ok)
	require.Len(t, section.Fields, 4)
	assert.Equal(t, "*Messages*\n4", section.Fields[0].Text)
	assert.Equal(t, "*Cost*\n$0.0123", section.Fields[1].Text)
	assert.Equal(t, "*Tokens in / out*\n1200 / 300", section.Fields[2].Text)
	assert.Equal(t, "*Tickets*\n1", section.Fields[3].Text)

	ctxBlock, ok := blocks[2].(*slacklib.ContextBlock)
	require.True(t, ok)
	require.Len(t, ctxBlock.ContextElements.Elements, 1)
	text, ok := ctxBlock.ContextElements.Elements[0].(*slacklib.TextBlockObject)
	require.True(t, ok)
	assert.Equal(t, "Session started 2026-01-02 03:04 UTC", text.Text)
}

func TestStatsFallback(t *testing.T) {
	t.Parallel()

	status := agent.ChannelStatus{Stats: domain.Stats{TotalCost: 0.5, MessageCount: 2, InputTokens: 10, OutputTokens: 5}}

	assert.Equal(t, "Messages: 2, cost: $0.5000, tokens: 10 in / 5 out, tickets: 0", hdslack.StatsFallback(status))
}
