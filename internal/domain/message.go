package domain

// InboundMessage is a chat message addressed to the bot.
type InboundMessage struct {
	ChannelID string
	UserID    string
	Text      string
	Images    []Image
	// ThreadTS is the delivery target hint: replies go to this thread when set.
	ThreadTS string
}
