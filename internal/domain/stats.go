package domain

import "time"

// Usage is the token consumption reported for a single model call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Pricing converts token usage into dollars using per-million-token rates.
type Pricing struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// Cost returns the dollar cost of u. The result is never negative for
// non-negative token counts and rates.
func (p Pricing) Cost(u Usage) float64 {
	return float64(u.InputTokens)*p.InputPerMTok/1_000_000 +
		float64(u.OutputTokens)*p.OutputPerMTok/1_000_000
}

// Stats is the accounting snapshot for a channel session. All counters only grow.
type Stats struct {
	TotalCost      float64   `json:"total_cost"`
	MessageCount   int       `json:"message_count"`
	InputTokens    int64     `json:"input_tokens"`
	OutputTokens   int64     `json:"output_tokens"`
	TicketsCreated int       `json:"tickets_created"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}
